// Package sigfd implements signal intake: the blocked-signal-set plus
// signalfd endpoint the reactor reads instead of installing handlers.
//
// Grounded on original_source/src/signalfd.rs: block the target signals
// process-wide (recording the prior mask so spawned children can restore
// it), then redirect delivery into a non-blocking, close-on-exec signalfd
// that the reactor drains in a loop.
package sigfd

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Endpoint is the signal intake's read side.
type Endpoint struct {
	fd int
	// PriorMask is the signal mask observed before the target set was
	// blocked. The registry swaps it onto the forking thread around
	// every spawn so children don't inherit the supervisor's blocked
	// set (a blocked mask would otherwise survive execve).
	PriorMask unix.Sigset_t
}

// Record is a single observed signal occurrence.
type Record struct {
	Signo int
}

// Open blocks sigs process-wide and returns a signalfd endpoint over the
// same set. Must be called before any child is spawned.
//
// PthreadSigmask only blocks the set on the calling OS thread, so this
// locks the calling goroutine to its current OS thread for the rest of
// the process lifetime: the reactor's epoll_wait must run on the same
// thread that did the blocking, or a signal could be delivered to (and
// take its default disposition on) some other, unblocked thread the Go
// scheduler later moves the goroutine onto.
func Open(sigs ...unix.Signal) (*Endpoint, error) {
	runtime.LockOSThread()

	var set unix.Sigset_t
	for _, s := range sigs {
		addSignal(&set, s)
	}

	var prior unix.Sigset_t
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, &prior); err != nil {
		return nil, fmt.Errorf("sigfd: block signal mask: %w", err)
	}

	fd, err := unix.Signalfd(-1, &set, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("sigfd: signalfd: %w", err)
	}

	return &Endpoint{fd: fd, PriorMask: prior}, nil
}

// Fd returns the endpoint's file descriptor, for registration with epoll.
func (e *Endpoint) Fd() int {
	return e.fd
}

// Drain performs non-blocking reads until "would block", returning every
// signal record observed. Per spec: multiple occurrences of the same
// signal between drains may coalesce into one record — callers must not
// rely on an exact count, only on "at least one occurred".
func (e *Endpoint) Drain() ([]Record, error) {
	var out []Record
	var info unix.SignalfdSiginfo
	buf := make([]byte, unsafe.Sizeof(unix.SignalfdSiginfo{}))

	for {
		n, err := unix.Read(e.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return out, nil
			}
			return out, fmt.Errorf("sigfd: read: %w", err)
		}
		if n == 0 {
			return out, nil
		}
		if n != int(unsafe.Sizeof(unix.SignalfdSiginfo{})) {
			return out, fmt.Errorf("sigfd: short read (%d bytes)", n)
		}
		if err := decodeSiginfo(buf, &info); err != nil {
			return out, err
		}
		out = append(out, Record{Signo: int(info.Signo)})
	}
}

// Close releases the signalfd.
func (e *Endpoint) Close() error {
	return unix.Close(e.fd)
}
