package procinfo

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRSSKBSelf(t *testing.T) {
	kb, ok := RSSKB(os.Getpid())
	assert.True(t, ok)
	assert.Greater(t, kb, int64(0))
}

func TestRSSKBGonePID(t *testing.T) {
	_, ok := RSSKB(1 << 30)
	assert.False(t, ok, "a pid with no procfs entry yields no data, not an error")
}
