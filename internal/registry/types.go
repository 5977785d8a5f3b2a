// Package registry owns service records, the per-service state machine,
// the PID index, and the spawn/stop/reap/reload operations that mutate
// them. It is the "Service registry & lifecycle" component of
// SPEC_FULL.md §2 — grounded on the teacher's process.go/supervisor.go for
// structure (one Process-shaped record, one owning map) but redesigned
// (see SPEC_FULL.md REDESIGN FLAGS) around the single-threaded, lock-free
// model original_source/src/service.rs and spec.md §5 mandate: the
// registry is mutated exclusively by the reactor goroutine, so none of
// its methods take a lock.
package registry

import (
	"time"
)

// State is the coarse lifecycle state of a service.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// StopReason classifies why a Stopped service is stopped. Meaningless
// outside of StateStopped.
type StopReason int

const (
	ReasonNone StopReason = iota
	ReasonNeverStarted
	ReasonSupervisorTerminated
	ReasonExitedSuccess
	ReasonExitedError
	ReasonCrashed
	ReasonKilled
)

func (r StopReason) String() string {
	switch r {
	case ReasonNeverStarted:
		return "never_started"
	case ReasonSupervisorTerminated:
		return "supervisor_terminated"
	case ReasonExitedSuccess:
		return "exited_success"
	case ReasonExitedError:
		return "exited_error"
	case ReasonCrashed:
		return "crashed"
	case ReasonKilled:
		return "killed"
	default:
		return "none"
	}
}

// Pending marks a follow-up action to apply once a service currently
// mid-transition (Stopping) is reaped. Per SPEC_FULL.md §3 / spec.md §9
// "Pending-action markers".
type Pending int

const (
	PendingNone Pending = iota
	PendingRemove
	PendingRestart
)

// Command is an executable token plus ordered arguments, the unit a
// service is (re)spawned from.
type Command struct {
	Path string
	Args []string
}

// Equal reports whether two commands would exec identically.
func (c Command) Equal(o Command) bool {
	if c.Path != o.Path || len(c.Args) != len(o.Args) {
		return false
	}
	for i := range c.Args {
		if c.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

// Service is a single supervised service record. PID and Deadline are
// denormalised onto the record (spec.md §9 allows this) rather than
// nested inside the state value; registry invariants 1-2 are enforced at
// every mutation site instead.
type Service struct {
	ID   uint64
	Name string
	Cmd  Command

	State      State
	Reason     StopReason // valid iff State == StateStopped
	ExitDetail int        // exit code or signal number, meaning depends on Reason
	PID        int        // 0 iff State == StateStopped
	Deadline   time.Time  // valid iff State == StateStopping

	Pending    Pending
	PendingCmd Command // staged new command for PendingRestart from a reload "changed"

	StartTime time.Time
}
