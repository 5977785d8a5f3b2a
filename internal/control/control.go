// Package control implements the supervisor's control channel: a named
// pipe carrying fixed-size binary request frames used by external writers
// to request service start/stop/restart.
package control

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Opcode identifies the operation encoded in a control frame.
type Opcode byte

const (
	OpStop    Opcode = 0x41
	OpStart   Opcode = 0x42
	OpRestart Opcode = 0x43
)

func (o Opcode) String() string {
	switch o {
	case OpStop:
		return "stop"
	case OpStart:
		return "start"
	case OpRestart:
		return "restart"
	default:
		return fmt.Sprintf("opcode(0x%02x)", byte(o))
	}
}

// FrameSize is the wire size of a single control frame: 1 byte opcode
// followed by an 8 byte little-endian service id.
const FrameSize = 9

// Command is a decoded control frame.
type Command struct {
	Op        Opcode
	ServiceID uint64
}

// PartialFrameError reports a read that did not land on a frame boundary.
type PartialFrameError struct {
	N int
}

func (e *PartialFrameError) Error() string {
	return fmt.Sprintf("partial control frame (%d bytes)", e.N)
}

// InvalidOpError reports an unrecognised opcode byte.
type InvalidOpError struct {
	Op byte
}

func (e *InvalidOpError) Error() string {
	return fmt.Sprintf("invalid opcode: 0x%02x", e.Op)
}

// maxBatch bounds how many frames we parse out of a single read so that a
// misbehaving writer flooding the pipe cannot make one dispatch unbounded.
const maxBatch = 256

// Decode parses the complete 9-byte frames present in buf, up to
// maxBatch of them (frames beyond that are dropped), returning them
// along with the first error encountered (if any). A trailing partial
// frame is reported as *PartialFrameError; an unknown opcode anywhere in
// the batch is reported as *InvalidOpError, and decoding stops there:
// frames before it are returned, that frame and every one after it are
// not.
//
// Both error kinds are recoverable: the caller discards the bad frame(s)
// and continues the reactor loop.
func Decode(buf []byte) ([]Command, error) {
	var cmds []Command
	n := len(buf)
	full := n / FrameSize
	if full > maxBatch {
		full = maxBatch
	}
	for i := 0; i < full; i++ {
		frame := buf[i*FrameSize : (i+1)*FrameSize]
		op := Opcode(frame[0])
		switch op {
		case OpStop, OpStart, OpRestart:
		default:
			return cmds, &InvalidOpError{Op: frame[0]}
		}
		cmds = append(cmds, Command{
			Op:        op,
			ServiceID: binary.LittleEndian.Uint64(frame[1:9]),
		})
	}
	if rem := n % FrameSize; rem != 0 {
		return cmds, &PartialFrameError{N: rem}
	}
	return cmds, nil
}

// Encode renders a single Command as its 9-byte wire frame. Used by tests
// and by any future in-process writer.
func Encode(c Command) [FrameSize]byte {
	var frame [FrameSize]byte
	frame[0] = byte(c.Op)
	binary.LittleEndian.PutUint64(frame[1:9], c.ServiceID)
	return frame
}

// FIFO owns the control channel's named pipe. The write end is retained
// for the process lifetime so that the non-blocking read end never
// observes end-of-stream when no external writer is attached.
//
// Both ends are held as raw descriptors, not *os.File: (*os.File).Fd()
// flips the descriptor back to blocking mode, and Drain relies on the
// read end staying O_NONBLOCK for the reactor's lifetime.
type FIFO struct {
	path    string
	readFD  int
	writeFD int
}

// Create makes (or reuses) the FIFO at path, mode 0600, and opens both
// ends non-blocking.
func Create(path string) (*FIFO, error) {
	if err := unix.Mkfifo(path, 0o600); err != nil && err != unix.EEXIST {
		return nil, fmt.Errorf("control: mkfifo %s: %w", path, err)
	}

	readFD, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("control: open read end %s: %w", path, err)
	}

	writeFD, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(readFD)
		return nil, fmt.Errorf("control: open write end %s: %w", path, err)
	}

	return &FIFO{path: path, readFD: readFD, writeFD: writeFD}, nil
}

// Fd returns the read end's file descriptor, for registration with epoll.
func (f *FIFO) Fd() int {
	return f.readFD
}

// Path reports the filesystem path of the FIFO.
func (f *FIFO) Path() string {
	return f.path
}

// readBufFrames bounds a single read to maxBatch frames worth of bytes.
const readBufFrames = maxBatch

// Drain performs one non-blocking read and decodes whatever complete
// frames it contains. A "would block" or zero-byte read yields no
// commands and no error.
func (f *FIFO) Drain() ([]Command, error) {
	buf := make([]byte, readBufFrames*FrameSize)
	n, err := unix.Read(f.readFD, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil
		}
		return nil, fmt.Errorf("control: read: %w", err)
	}
	if n <= 0 {
		return nil, nil
	}
	return Decode(buf[:n])
}

// Close releases both ends of the FIFO. The file on disk is left in
// place; the run directory owns its lifecycle.
func (f *FIFO) Close() error {
	err1 := unix.Close(f.readFD)
	err2 := unix.Close(f.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}
