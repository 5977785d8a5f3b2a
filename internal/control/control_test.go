package control

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSingleFrame(t *testing.T) {
	frame := Encode(Command{Op: OpStart, ServiceID: 42})
	cmds, err := Decode(frame[:])
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, OpStart, cmds[0].Op)
	assert.Equal(t, uint64(42), cmds[0].ServiceID)
}

func TestDecodeBatch(t *testing.T) {
	f1 := Encode(Command{Op: OpStop, ServiceID: 1})
	f2 := Encode(Command{Op: OpRestart, ServiceID: 2})
	buf := append(f1[:], f2[:]...)

	cmds, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, Command{Op: OpStop, ServiceID: 1}, cmds[0])
	assert.Equal(t, Command{Op: OpRestart, ServiceID: 2}, cmds[1])
}

func TestDecodePartialFrame(t *testing.T) {
	buf := []byte{0x42, 0x01, 0x02, 0x03}
	cmds, err := Decode(buf)
	assert.Empty(t, cmds)
	var pErr *PartialFrameError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, 4, pErr.N)
}

func TestDecodeTrailingPartialAfterValidFrame(t *testing.T) {
	full := Encode(Command{Op: OpStart, ServiceID: 7})
	buf := append(full[:], 0x01, 0x02)

	cmds, err := Decode(buf)
	require.Len(t, cmds, 1, "the valid leading frame is still returned")
	var pErr *PartialFrameError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, 2, pErr.N)
}

func TestDecodeInvalidOp(t *testing.T) {
	buf := []byte{0xFF, 0, 0, 0, 0, 0, 0, 0, 0}
	cmds, err := Decode(buf)
	assert.Empty(t, cmds)
	var iErr *InvalidOpError
	require.ErrorAs(t, err, &iErr)
	assert.Equal(t, byte(0xFF), iErr.Op)
}

// TestDecodeNeverPanics is the §8 property test: for every byte sequence
// whose length is a multiple of 9 and whose per-frame opcode is valid,
// parsing yields a non-erroring stream; otherwise it yields
// PartialFrameError or InvalidOpError, never a crash.
func TestDecodeNeverPanics(t *testing.T) {
	validOps := []byte{byte(OpStop), byte(OpStart), byte(OpRestart)}

	f := func(raw []byte) bool {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Decode panicked on input %x: %v", raw, r)
			}
		}()
		cmds, err := Decode(raw)

		if len(raw)%FrameSize != 0 {
			var pErr *PartialFrameError
			return err != nil && (asPartial(err, &pErr) || asInvalidOp(err))
		}

		allValid := true
		for i := 0; i+FrameSize <= len(raw); i += FrameSize {
			op := raw[i]
			found := false
			for _, v := range validOps {
				if op == v {
					found = true
					break
				}
			}
			if !found {
				allValid = false
				break
			}
		}
		if allValid {
			return err == nil && len(cmds)*FrameSize <= len(raw)
		}
		return asInvalidOp(err)
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 64}); err != nil {
		t.Error(err)
	}
}

func asPartial(err error, target **PartialFrameError) bool {
	if e, ok := err.(*PartialFrameError); ok {
		*target = e
		return true
	}
	return false
}

func asInvalidOp(err error) bool {
	_, ok := err.(*InvalidOpError)
	return ok
}
