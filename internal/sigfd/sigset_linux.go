package sigfd

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// addSignal sets the bit for sig in a glibc-layout sigset_t (64 signals
// per word, word 0 covers signals 1-64).
func addSignal(set *unix.Sigset_t, sig unix.Signal) {
	s := uint(sig) - 1
	set.Val[s/64] |= 1 << (s % 64)
}

// decodeSiginfo reinterprets a raw signalfd_siginfo read buffer as the
// typed struct. The kernel always writes a full, well-formed record of
// exactly unix.SizeofSignalfdSiginfo bytes, so this is safe once the
// caller has checked the byte count.
func decodeSiginfo(buf []byte, out *unix.SignalfdSiginfo) error {
	*out = *(*unix.SignalfdSiginfo)(unsafe.Pointer(&buf[0]))
	return nil
}
