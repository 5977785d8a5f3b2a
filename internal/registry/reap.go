package registry

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// crashSignals are the signals spec.md §4.4 classifies as a crash rather
// than an ordinary kill.
var crashSignals = map[unix.Signal]bool{
	unix.SIGSEGV: true,
	unix.SIGABRT: true,
	unix.SIGFPE:  true,
	unix.SIGILL:  true,
	unix.SIGBUS:  true,
}

// Reap drains every exited child with a non-blocking wait4 loop,
// classifying each and applying any pending follow-up action. It
// terminates when wait4 reports "no ready child"; "no children at all"
// (ECHILD) is a normal condition, not an error (spec.md §4.4 "Reap").
func (r *Registry) Reap() error {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err != nil {
			if err == unix.ECHILD {
				return nil
			}
			return err
		}
		if pid <= 0 {
			return nil
		}

		svc, ok := r.byPIDLookup(pid)
		if !ok {
			if r.log != nil {
				r.log.Info("reaped unknown pid", zap.Int("pid", pid))
			}
			continue
		}

		r.finishReap(svc, status)
	}
}

func (r *Registry) finishReap(svc *Service, status unix.WaitStatus) {
	wasStopping := svc.State == StateStopping

	r.clearPID(svc)
	svc.State = StateStopped

	switch {
	case status.Exited():
		code := status.ExitStatus()
		if code == 0 {
			svc.Reason = ReasonExitedSuccess
			svc.ExitDetail = 0
		} else if wasStopping {
			svc.Reason = ReasonSupervisorTerminated
			svc.ExitDetail = code
		} else {
			svc.Reason = ReasonExitedError
			svc.ExitDetail = code
		}
	case status.Signaled():
		signo := status.Signal()
		svc.ExitDetail = int(signo)
		if crashSignals[signo] {
			svc.Reason = ReasonCrashed
		} else if wasStopping {
			svc.Reason = ReasonSupervisorTerminated
		} else {
			svc.Reason = ReasonKilled
		}
	default:
		svc.Reason = ReasonSupervisorTerminated
	}

	if r.log != nil {
		r.log.Info("reaped service",
			zap.String("service", svc.Name),
			zap.Uint64("id", svc.ID),
			zap.String("reason", svc.Reason.String()),
			zap.Int("detail", svc.ExitDetail),
		)
	}

	r.applyPending(svc)
}

// applyPending consumes a service's follow-up marker once it has landed
// in Stopped, per spec.md §9 "Pending-action markers".
func (r *Registry) applyPending(svc *Service) {
	switch svc.Pending {
	case PendingRemove:
		svc.Pending = PendingNone
		r.remove(svc)
	case PendingRestart:
		svc.Pending = PendingNone
		if svc.PendingCmd.Path != "" {
			svc.Cmd = svc.PendingCmd
			svc.PendingCmd = Command{}
		}
		if err := r.Spawn(svc); err != nil && r.log != nil {
			r.log.Warn("pending restart failed", zap.String("service", svc.Name), zap.Error(err))
		}
	}
}
