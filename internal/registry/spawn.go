package registry

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Spawn forks+execs svc's command. Precondition: svc.State == StateStopped
// (spec.md §4.4 "Spawn"). Fork/exec failure is reported but not fatal —
// the service remains Stopped.
//
// The child must start under the pre-supervisor signal mask, not the
// reactor's blocked set (spec.md §5 "Signal masking across fork"). The
// runtime forks on the calling thread and gives the child whatever mask
// that thread held at clone time: BeforeFork saves the current thread
// mask and AfterForkInChild restores exactly it, while exec resets only
// handler dispositions — a blocked mask survives execve. So the swap has
// to happen here: set the recorded prior mask on the (locked) reactor
// thread for the duration of Start, then re-block. The unblocked
// window spans a single fork+exec and is the cost of giving the child
// the right mask.
func (r *Registry) Spawn(svc *Service) error {
	if svc.State != StateStopped {
		return fmt.Errorf("registry: spawn %s: not stopped (state=%s)", svc.Name, svc.State)
	}

	cmd := exec.Command(svc.Cmd.Path, svc.Cmd.Args...)
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		r.logSpawnFailure(svc, err)
		return err
	}
	defer devNull.Close()
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := r.startWithSpawnMask(cmd); err != nil {
		r.logSpawnFailure(svc, err)
		return err
	}

	svc.State = StateRunning
	svc.Reason = ReasonNone
	svc.StartTime = time.Now()
	r.setPID(svc, cmd.Process.Pid)

	if r.log != nil {
		r.log.Info("spawned service",
			zap.String("service", svc.Name),
			zap.Uint64("id", svc.ID),
			zap.Int("pid", svc.PID),
		)
	}
	return nil
}

// startWithSpawnMask runs cmd.Start with the forking thread's signal
// mask temporarily set to the recorded pre-supervisor mask, so the
// child is cloned with it. The reactor's blocked set is reinstated
// before returning, whether or not Start succeeded.
func (r *Registry) startWithSpawnMask(cmd *exec.Cmd) error {
	if r.spawnMask == nil {
		return cmd.Start()
	}
	var saved unix.Sigset_t
	if err := unix.PthreadSigmask(unix.SIG_SETMASK, r.spawnMask, &saved); err != nil {
		return fmt.Errorf("registry: set spawn sigmask: %w", err)
	}
	err := cmd.Start()
	if merr := unix.PthreadSigmask(unix.SIG_SETMASK, &saved, nil); merr != nil {
		// The reactor cannot run with its signals unblocked.
		return fmt.Errorf("registry: restore sigmask: %w", merr)
	}
	return err
}

func (r *Registry) logSpawnFailure(svc *Service, err error) {
	if r.log != nil {
		r.log.Warn("spawn failed",
			zap.String("service", svc.Name),
			zap.Uint64("id", svc.ID),
			zap.Error(err),
		)
	}
}
