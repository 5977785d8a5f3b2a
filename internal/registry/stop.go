package registry

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Stop initiates a graceful stop: SIGTERM now, SIGKILL at now+GracePeriod
// unless reaped first. Idempotent on StateStopping; a no-op on
// StateStopped (spec.md §4.4 "Graceful stop").
func (r *Registry) Stop(svc *Service) error {
	switch svc.State {
	case StateStopped:
		return nil
	case StateStopping:
		return nil
	case StateRunning:
		if err := unix.Kill(svc.PID, unix.SIGTERM); err != nil && err != unix.ESRCH {
			if r.log != nil {
				r.log.Warn("SIGTERM failed", zap.String("service", svc.Name), zap.Int("pid", svc.PID), zap.Error(err))
			}
			return err
		}
		svc.State = StateStopping
		svc.Deadline = time.Now().Add(r.GracePeriod)
		if r.log != nil {
			r.log.Info("stopping service", zap.String("service", svc.Name), zap.Int("pid", svc.PID), zap.Time("deadline", svc.Deadline))
		}
		return nil
	}
	return nil
}

// ForceKillOverdue sends SIGKILL to every service in StateStopping whose
// deadline has passed. Called from the tick path (spec.md §4.4 "Force
// kill"). The deadline is not rearmed; state remains StateStopping until
// reap.
func (r *Registry) ForceKillOverdue(now time.Time) {
	for _, svc := range r.services {
		if svc.State != StateStopping {
			continue
		}
		if now.Before(svc.Deadline) {
			continue
		}
		if err := unix.Kill(svc.PID, unix.SIGKILL); err != nil && err != unix.ESRCH {
			if r.log != nil {
				r.log.Warn("SIGKILL failed", zap.String("service", svc.Name), zap.Int("pid", svc.PID), zap.Error(err))
			}
			continue
		}
		if r.log != nil {
			r.log.Info("grace period expired, sent SIGKILL", zap.String("service", svc.Name), zap.Int("pid", svc.PID))
		}
	}
}

// StopAllRunning issues a graceful stop to every currently running
// service — the global-shutdown action (spec.md §4.4 "Global shutdown").
func (r *Registry) StopAllRunning() {
	for _, svc := range r.services {
		if svc.State == StateRunning {
			_ = r.Stop(svc)
		}
	}
}
