package statusfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosv/supervisord/internal/registry"
)

func TestBuildSnapshotOrdersByID(t *testing.T) {
	r := registry.New(0, nil)
	_, err := r.NewService("zeta", registry.Command{Path: "/bin/zeta"})
	require.NoError(t, err)
	_, err = r.NewService("alpha", registry.Command{Path: "/bin/alpha"})
	require.NoError(t, err)

	snap := BuildSnapshot(r, time.Unix(0, 0))
	require.Len(t, snap.Services, 2)
	assert.Equal(t, uint64(0), snap.Services[0].ID)
	assert.Equal(t, "zeta", snap.Services[0].Name)
	assert.Equal(t, uint64(1), snap.Services[1].ID)
	assert.Equal(t, "alpha", snap.Services[1].Name)
}

func TestBuildSnapshotNeverStartedHasReason(t *testing.T) {
	r := registry.New(0, nil)
	_, err := r.NewService("svc", registry.Command{Path: "/bin/svc"})
	require.NoError(t, err)

	snap := BuildSnapshot(r, time.Unix(0, 0))
	rec := snap.Services[0]
	assert.Equal(t, "stopped", rec.State)
	assert.Equal(t, registry.ReasonNeverStarted.String(), rec.Reason)
	assert.Zero(t, rec.PID)
	assert.Nil(t, rec.Deadline)
}

func TestWriteIsAtomicAndReadable(t *testing.T) {
	r := registry.New(0, nil)
	_, err := r.NewService("svc", registry.Command{Path: "/bin/svc"})
	require.NoError(t, err)
	snap := BuildSnapshot(r, time.Unix(100, 0))

	path := filepath.Join(t.TempDir(), "status")
	require.NoError(t, Write(path, snap))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Snapshot
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got.Services, 1)
	assert.Equal(t, "svc", got.Services[0].Name)

	// A second write overwrites cleanly, leaving no .tmp artifact behind.
	require.NoError(t, Write(path, snap))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
