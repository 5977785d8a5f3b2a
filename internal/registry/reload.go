package registry

import "go.uber.org/zap"

// Desired is one entry of a freshly parsed configuration, keyed by name
// for reload diffing (spec.md §4.4 "Reload").
type Desired struct {
	Name string
	Cmd  Command
}

// Reload diffs desired against the current registry by name and applies
// the added/removed/changed transitions from spec.md §4.4 step 2. It
// never removes a record outright unless that record was already
// Stopped; Running/Stopping removals are deferred to the reap path via
// PendingRemove.
func (r *Registry) Reload(desired []Desired) error {
	byName := make(map[string]Desired, len(desired))
	for _, d := range desired {
		byName[d.Name] = d
	}

	// removed + changed: walk the current registry.
	for _, svc := range r.All() {
		d, stillWanted := byName[svc.Name]
		if !stillWanted {
			r.reloadRemove(svc)
			continue
		}
		if !svc.Cmd.Equal(d.Cmd) {
			r.reloadChange(svc, d.Cmd)
		}
		delete(byName, svc.Name)
	}

	// whatever is left in byName is genuinely new.
	for _, d := range byName {
		svc, err := r.NewService(d.Name, d.Cmd)
		if err != nil {
			if r.log != nil {
				r.log.Error("reload: cannot add service", zap.String("service", d.Name), zap.Error(err))
			}
			return err
		}
		if err := r.Spawn(svc); err != nil && r.log != nil {
			r.log.Warn("reload: spawn of added service failed", zap.String("service", d.Name), zap.Error(err))
		}
	}
	return nil
}

func (r *Registry) reloadRemove(svc *Service) {
	switch svc.State {
	case StateStopped:
		r.remove(svc)
	case StateRunning:
		svc.Pending = PendingRemove
		_ = r.Stop(svc)
	case StateStopping:
		svc.Pending = PendingRemove
	}
}

func (r *Registry) reloadChange(svc *Service, newCmd Command) {
	switch svc.State {
	case StateStopped:
		svc.Cmd = newCmd
		_ = r.Spawn(svc)
	case StateRunning:
		svc.PendingCmd = newCmd
		svc.Pending = PendingRestart
		_ = r.Stop(svc)
	case StateStopping:
		svc.PendingCmd = newCmd
		svc.Pending = PendingRestart
	}
}
