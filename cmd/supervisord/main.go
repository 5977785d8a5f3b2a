// Command supervisord is the process supervisor's entry point: CLI
// parsing, run-directory layout, and wiring of the reactor against a
// freshly loaded configuration (spec.md §6).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gosv/supervisord/internal/config"
	"github.com/gosv/supervisord/internal/logging"
	"github.com/gosv/supervisord/internal/reactor"
	"github.com/gosv/supervisord/internal/registry"
)

const (
	controlFileName = "control"
	statusFileName  = "status"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var runDir string
	var debug bool

	root := &cobra.Command{
		Use:           "supervisord [--run-dir PATH] <config_file>",
		Short:         "single-host process supervisor",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			if len(posArgs) != 1 {
				return usageErr{fmt.Errorf("expected exactly one config file argument")}
			}
			return execute(posArgs[0], runDir, debug)
		},
	}
	root.Flags().StringVar(&runDir, "run-dir", defaultRunDir(), "run directory (control fifo, status file)")
	root.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageErr{err}
	})
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		if isUsageError(err) {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return 0
}

func defaultRunDir() string {
	return filepath.Join("/run", "supervisord")
}

// usageErr marks errors that map to exit code 1 (spec.md §6).
type usageErr struct{ error }

func isUsageError(err error) bool {
	_, ok := err.(usageErr)
	return ok
}

func execute(configPath, runDir string, debug bool) error {
	log, err := logging.New(debug)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("run-dir %s: %w", runDir, err)
	}

	f, err := config.Load(configPath)
	if err != nil {
		return err
	}

	reg := registry.New(registry.DefaultGracePeriod, log)
	for _, svc := range f.Services {
		if _, err := reg.NewService(svc.Name, registry.Command{Path: svc.Command, Args: svc.Args}); err != nil {
			return fmt.Errorf("startup: %w", err)
		}
	}

	controlPath := filepath.Join(runDir, controlFileName)
	statusPath := filepath.Join(runDir, statusFileName)

	r, err := reactor.New(reg, controlPath, statusPath, configPath, log)
	if err != nil {
		return fmt.Errorf("reactor init: %w", err)
	}
	defer r.Close()

	log.Info("supervisord starting",
		zap.String("run_dir", runDir),
		zap.Int("services", len(f.Services)),
		zap.Int("pid", os.Getpid()),
	)

	if err := r.Run(); err != nil {
		return fmt.Errorf("reactor: %w", err)
	}
	log.Info("supervisord exiting cleanly")
	return nil
}
