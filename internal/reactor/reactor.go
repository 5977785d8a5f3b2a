// Package reactor implements the single-threaded event multiplexer that
// ties signal intake, the tick source, the control channel, and the
// service registry together (spec.md §2 "Reactor", §4.5).
//
// Grounded structurally on original_source/src/main.rs's epoll+signalfd+
// timerfd loop, generalised to also multiplex the control FIFO and the
// supplemented fsnotify self-pipe (SPEC_FULL.md §4.6), and to dispatch
// through internal/registry instead of main.rs's two hardcoded services.
package reactor

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/gosv/supervisord/internal/config"
	"github.com/gosv/supervisord/internal/control"
	"github.com/gosv/supervisord/internal/registry"
	"github.com/gosv/supervisord/internal/reload"
	"github.com/gosv/supervisord/internal/sigfd"
	"github.com/gosv/supervisord/internal/statusfile"
	"github.com/gosv/supervisord/internal/tick"
)

// Reactor owns the epoll set and drives the registry through it.
type Reactor struct {
	epfd int

	sig     *sigfd.Endpoint
	tk      *tick.Source
	ctl     *control.FIFO
	watcher *reload.Watcher // may be nil if fsnotify setup failed; non-fatal

	reg        *registry.Registry
	statusPath string
	configPath string
	log        *zap.Logger

	shutdownRequested bool
}

// New assembles a Reactor: blocks the target signal set, arms the tick
// source, creates the control FIFO, sets the process subreaper, and
// opens the config-file watcher (best effort).
func New(reg *registry.Registry, controlPath, statusPath, configPath string, log *zap.Logger) (*Reactor, error) {
	// Subreaper must be set before the first spawn (spec.md §5).
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		if log != nil {
			log.Warn("failed to set child subreaper", zap.Error(err))
		}
	}

	sig, err := sigfd.Open(unix.SIGHUP, unix.SIGCHLD, unix.SIGTERM, unix.SIGINT)
	if err != nil {
		return nil, fmt.Errorf("reactor: signal intake: %w", err)
	}
	// Children must be forked under the mask from before the block above
	// (spec.md §5); the registry swaps it in around every spawn.
	reg.SetSpawnSigmask(&sig.PriorMask)

	tk, err := tick.Open()
	if err != nil {
		sig.Close()
		return nil, fmt.Errorf("reactor: tick source: %w", err)
	}

	ctl, err := control.Create(controlPath)
	if err != nil {
		sig.Close()
		tk.Close()
		return nil, fmt.Errorf("reactor: control channel: %w", err)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		sig.Close()
		tk.Close()
		ctl.Close()
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}

	r := &Reactor{
		epfd:       epfd,
		sig:        sig,
		tk:         tk,
		ctl:        ctl,
		reg:        reg,
		statusPath: statusPath,
		configPath: configPath,
		log:        log,
	}

	if err := r.addFD(sig.Fd()); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.addFD(tk.Fd()); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.addFD(ctl.Fd()); err != nil {
		r.Close()
		return nil, err
	}

	if w, werr := reload.Open(configPath); werr != nil {
		if log != nil {
			log.Warn("config file watch unavailable, HUP-only reload", zap.Error(werr))
		}
	} else {
		r.watcher = w
		if err := r.addFD(w.Fd()); err != nil {
			if log != nil {
				log.Warn("failed to register config watcher with epoll", zap.Error(err))
			}
			w.Close()
			r.watcher = nil
		}
	}

	return r, nil
}

// addFD registers fd with the epoll set, level-triggered. The ready fd
// itself travels back in the event's Fd field; Run matches it against
// the fixed set of sources.
func (r *Reactor) addFD(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add fd=%d: %w", fd, err)
	}
	return nil
}

// Run spawns every presently Stopped service, writes the first snapshot,
// and enters the event loop. It returns when shutdown has been requested
// and every service has reached Stopped, or on a fatal I/O error.
func (r *Reactor) Run() error {
	for _, svc := range r.reg.All() {
		if svc.State == registry.StateStopped {
			if err := r.reg.Spawn(svc); err != nil && r.log != nil {
				r.log.Warn("initial spawn failed", zap.String("service", svc.Name), zap.Error(err))
			}
		}
	}
	if err := r.writeStatus(); err != nil && r.log != nil {
		r.log.Warn("status write failed", zap.Error(err))
	}

	events := make([]unix.EpollEvent, 16)
	for {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}

		var sawSignal, sawTick, sawControl, sawWatcher bool
		for i := 0; i < n; i++ {
			switch fd := int(events[i].Fd); {
			case fd == r.sig.Fd():
				sawSignal = true
			case fd == r.tk.Fd():
				sawTick = true
			case fd == r.ctl.Fd():
				sawControl = true
			case r.watcher != nil && fd == r.watcher.Fd():
				sawWatcher = true
			}
		}

		mutated := false

		// Source order within one wake: signals, then tick, then control
		// (spec.md §5 "Ordering guarantees"). The watcher is an additive
		// fourth source (SPEC_FULL.md §4.6) processed last.
		if sawSignal {
			if err := r.handleSignals(); err != nil {
				return err
			}
			mutated = true
			if r.shutdownRequested && r.reg.AllStopped() {
				return r.finalWrite()
			}
		}
		if sawTick {
			if _, err := r.tk.Drain(); err != nil && r.log != nil {
				r.log.Warn("tick read failed", zap.Error(err))
			}
			r.reg.ForceKillOverdue(time.Now())
			mutated = true
		}
		if sawControl {
			if err := r.handleControl(); err != nil && r.log != nil {
				r.log.Warn("control channel error", zap.Error(err))
			}
			mutated = true
		}
		if sawWatcher {
			if err := r.handleWatcher(); err != nil {
				return err
			}
			mutated = true
		}

		if mutated {
			if err := r.writeStatus(); err != nil && r.log != nil {
				r.log.Warn("status write failed", zap.Error(err))
			}
		}

		if r.shutdownRequested && r.reg.AllStopped() {
			return r.finalWrite()
		}
	}
}

func (r *Reactor) finalWrite() error {
	if err := r.writeStatus(); err != nil && r.log != nil {
		r.log.Warn("status write failed", zap.Error(err))
	}
	return nil
}

func (r *Reactor) handleSignals() error {
	records, err := r.sig.Drain()
	if err != nil {
		return fmt.Errorf("reactor: signal read: %w", err)
	}
	for _, rec := range records {
		switch unix.Signal(rec.Signo) {
		case unix.SIGHUP:
			if !r.shutdownRequested {
				if rerr := r.doReload(); rerr != nil {
					return rerr
				}
			}
		case unix.SIGCHLD:
			if err := r.reg.Reap(); err != nil && r.log != nil {
				r.log.Warn("reap failed", zap.Error(err))
			}
		case unix.SIGINT, unix.SIGTERM:
			if !r.shutdownRequested {
				r.shutdownRequested = true
				if r.log != nil {
					r.log.Info("shutdown requested", zap.Int("signal", rec.Signo))
				}
				r.reg.StopAllRunning()
			}
		}
	}
	return nil
}

func (r *Reactor) handleControl() error {
	cmds, err := r.ctl.Drain()
	for _, cmd := range cmds {
		if applyErr := r.reg.ApplyControl(cmd.ServiceID, cmd.Op); applyErr != nil && r.log != nil {
			r.log.Warn("control op failed", zap.Uint64("id", cmd.ServiceID), zap.String("op", cmd.Op.String()), zap.Error(applyErr))
		}
	}
	return err
}

func (r *Reactor) handleWatcher() error {
	if r.watcher == nil {
		return nil
	}
	changed, err := r.watcher.Drain()
	if err != nil {
		if r.log != nil {
			r.log.Warn("config watcher error", zap.Error(err))
		}
		return nil
	}
	if changed && !r.shutdownRequested {
		return r.doReload()
	}
	return nil
}

// doReload parses the configuration file and diffs it into the registry.
// A parse failure is logged and absorbed (spec.md §7 "Configuration" is
// non-fatal at reload). registry.ErrIDSpaceExhausted is different: §7
// classifies id-space "Exhaustion" as fatal, and §4.4 step 3 says it is
// "surfaced at spawn time of the next new service" — which includes a
// reload's added-service spawns, not just the initial config load — so
// that one error is returned for Run to treat as a fatal exit instead of
// being logged-and-absorbed like every other reload failure.
func (r *Reactor) doReload() error {
	f, err := config.Load(r.configPath)
	if err != nil {
		if r.log != nil {
			r.log.Error("reload: config parse failed, keeping current configuration", zap.Error(err))
		}
		return nil
	}
	desired := make([]registry.Desired, 0, len(f.Services))
	for _, svc := range f.Services {
		desired = append(desired, registry.Desired{
			Name: svc.Name,
			Cmd:  registry.Command{Path: svc.Command, Args: svc.Args},
		})
	}
	if err := r.reg.Reload(desired); err != nil {
		if errors.Is(err, registry.ErrIDSpaceExhausted) {
			return fmt.Errorf("reactor: reload: %w", err)
		}
		if r.log != nil {
			r.log.Error("reload failed", zap.Error(err))
		}
	}
	return nil
}

func (r *Reactor) writeStatus() error {
	snap := statusfile.BuildSnapshot(r.reg, time.Now())
	return statusfile.Write(r.statusPath, snap)
}

// Close releases every fd the reactor owns.
func (r *Reactor) Close() error {
	if r.watcher != nil {
		r.watcher.Close()
	}
	r.ctl.Close()
	r.tk.Close()
	r.sig.Close()
	return unix.Close(r.epfd)
}
