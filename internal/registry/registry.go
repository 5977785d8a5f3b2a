package registry

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// DefaultGracePeriod is the fixed design constant between SIGTERM and the
// tick-driven SIGKILL escalation (spec.md §4.4 "Graceful stop").
const DefaultGracePeriod = 5 * time.Second

// maxServiceID is the ceiling of the dense numeric id space (spec.md §3:
// "≤ 65535").
const maxServiceID = math.MaxUint16

// Registry owns every service record and the PID→id weak index. Per
// spec.md §5 it is mutated solely by the reactor thread: no locking.
type Registry struct {
	GracePeriod time.Duration

	services map[uint64]*Service
	byPID    map[int]uint64
	nextID   uint64

	// spawnMask, when set, is the pre-supervisor signal mask spawned
	// children must start with (spec.md §5 "Signal masking across
	// fork"). Spawn swaps it onto the forking thread around Start.
	spawnMask *unix.Sigset_t

	log *zap.Logger
}

// New creates an empty registry.
func New(gracePeriod time.Duration, log *zap.Logger) *Registry {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &Registry{
		GracePeriod: gracePeriod,
		services:    make(map[uint64]*Service),
		byPID:       make(map[int]uint64),
		log:         log,
	}
}

// SetSpawnSigmask records the signal mask children must be forked
// under — the mask captured before the signal intake blocked its set.
// Must be called before the first Spawn.
func (r *Registry) SetSpawnSigmask(mask *unix.Sigset_t) {
	r.spawnMask = mask
}

// ErrIDSpaceExhausted is the fatal condition from spec.md §4.4 step 3 /
// §7 "Exhaustion".
var ErrIDSpaceExhausted = fmt.Errorf("registry: service id space exhausted")

// NewService registers a fresh service record in Stopped(NeverStarted),
// assigning the next dense id. Returns ErrIDSpaceExhausted once the
// 16-bit id space is used up.
func (r *Registry) NewService(name string, cmd Command) (*Service, error) {
	if r.nextID > maxServiceID {
		return nil, ErrIDSpaceExhausted
	}
	svc := &Service{
		ID:     r.nextID,
		Name:   name,
		Cmd:    cmd,
		State:  StateStopped,
		Reason: ReasonNeverStarted,
	}
	r.nextID++
	r.services[svc.ID] = svc
	return svc, nil
}

// Get looks up a service by id.
func (r *Registry) Get(id uint64) (*Service, bool) {
	svc, ok := r.services[id]
	return svc, ok
}

// ByName finds a service by name (names are unique within one config
// load — spec.md §3 invariant 3).
func (r *Registry) ByName(name string) (*Service, bool) {
	for _, svc := range r.services {
		if svc.Name == name {
			return svc, true
		}
	}
	return nil, false
}

// All returns every known service, in no particular order.
func (r *Registry) All() []*Service {
	out := make([]*Service, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, svc)
	}
	return out
}

// AllStopped reports whether every service is in StateStopped, the
// condition the reactor waits for before exiting on shutdown.
func (r *Registry) AllStopped() bool {
	for _, svc := range r.services {
		if svc.State != StateStopped {
			return false
		}
	}
	return true
}

// setPID installs the pid↔id link on the record and in the PID index
// together. It does not change State; the caller sets it alongside, so
// that invariants 1-2 (spec.md §3) hold at the end of the operation.
func (r *Registry) setPID(svc *Service, pid int) {
	svc.PID = pid
	r.byPID[pid] = svc.ID
}

// clearPID removes the pid↔id link. Invariant: must be called exactly
// once per successful setPID, at reap time.
func (r *Registry) clearPID(svc *Service) {
	if svc.PID != 0 {
		delete(r.byPID, svc.PID)
	}
	svc.PID = 0
}

// byPIDLookup resolves a PID to its service, used by the reap path.
func (r *Registry) byPIDLookup(pid int) (*Service, bool) {
	id, ok := r.byPID[pid]
	if !ok {
		return nil, false
	}
	svc, ok := r.services[id]
	return svc, ok
}

// remove deletes a service record entirely (reload's "removed" case,
// once it has reached Stopped). The record must carry no PID per
// invariant 2, so there is nothing to unlink here.
func (r *Registry) remove(svc *Service) {
	delete(r.services, svc.ID)
}
