package registry

import (
	"github.com/gosv/supervisord/internal/control"
	"go.uber.org/zap"
)

// ApplyControl applies a decoded control-channel command to the named
// service, per spec.md §4.4 "Control op application". Unknown service
// ids are logged and ignored — a crashed or never-existing id must never
// bring down the reactor.
func (r *Registry) ApplyControl(id uint64, op control.Opcode) error {
	svc, ok := r.Get(id)
	if !ok {
		if r.log != nil {
			r.log.Warn("control frame for unknown service id", zap.Uint64("id", id))
		}
		return nil
	}

	switch op {
	case control.OpStart:
		if svc.State == StateStopped {
			return r.Spawn(svc)
		}
		return nil

	case control.OpStop:
		return r.Stop(svc)

	case control.OpRestart:
		switch svc.State {
		case StateStopped:
			return r.Spawn(svc)
		case StateRunning:
			svc.Pending = PendingRestart
			return r.Stop(svc)
		case StateStopping:
			svc.Pending = PendingRestart
			return nil
		}
	}
	return nil
}
