// Package tick implements the 1 Hz tick source used to enforce
// graceful-stop deadlines.
//
// Grounded on original_source/src/timerfd.rs: a monotonic, periodic
// timerfd armed for 1s/1s, drained with an 8-byte expiration-count read
// per wake.
package tick

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Source is a 1 Hz monotonic periodic timer exposed as a pollable fd.
type Source struct {
	fd int
}

// Open creates and arms a periodic timerfd firing once per second.
func Open() (*Source, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("tick: timerfd_create: %w", err)
	}

	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(time.Second.Nanoseconds()),
		Value:    unix.NsecToTimespec(time.Second.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tick: timerfd_settime: %w", err)
	}

	return &Source{fd: fd}, nil
}

// Fd returns the timerfd's file descriptor, for registration with epoll.
func (s *Source) Fd() int {
	return s.fd
}

// Drain reads the expiration count since the last drain. The reactor
// treats any positive count (drift notwithstanding) as "examine
// deadlines now"; the exact count carries no meaning beyond that.
func (s *Source) Drain() (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(s.fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil
		}
		return 0, fmt.Errorf("tick: read: %w", err)
	}
	if n != 8 {
		return 0, nil
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Close releases the timerfd.
func (s *Source) Close() error {
	return unix.Close(s.fd)
}
