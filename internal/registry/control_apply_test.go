package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosv/supervisord/internal/control"
)

func TestApplyControlUnknownIDIsIgnored(t *testing.T) {
	r := newTestRegistry()
	assert.NoError(t, r.ApplyControl(9999, control.OpStart))
}

func TestApplyControlStartSpawnsStopped(t *testing.T) {
	r := newTestRegistry()
	svc, err := r.NewService("svc", Command{Path: "/bin/true"})
	require.NoError(t, err)

	require.NoError(t, r.ApplyControl(svc.ID, control.OpStart))
	assert.Equal(t, StateRunning, svc.State)
	assert.NotZero(t, svc.PID)

	indexed, ok := r.byPIDLookup(svc.PID)
	require.True(t, ok)
	assert.Same(t, svc, indexed)
}

func TestApplyControlStartNoopOnRunning(t *testing.T) {
	r := newTestRegistry()
	svc, _ := r.NewService("svc", Command{Path: "/bin/true"})
	simulateRunning(r, svc, fakePID)

	require.NoError(t, r.ApplyControl(svc.ID, control.OpStart))
	assert.Equal(t, StateRunning, svc.State)
	assert.Equal(t, fakePID, svc.PID, "a running service is not respawned")
}

func TestApplyControlStopTransitionsRunning(t *testing.T) {
	r := newTestRegistry()
	svc, _ := r.NewService("svc", Command{Path: "/bin/true"})
	simulateRunning(r, svc, fakePID)

	require.NoError(t, r.ApplyControl(svc.ID, control.OpStop))
	assert.Equal(t, StateStopping, svc.State)
	assert.False(t, svc.Deadline.IsZero(), "graceful stop must arm a deadline")
}

func TestApplyControlRestartRunningMarksPending(t *testing.T) {
	r := newTestRegistry()
	svc, _ := r.NewService("svc", Command{Path: "/bin/true"})
	simulateRunning(r, svc, fakePID)

	require.NoError(t, r.ApplyControl(svc.ID, control.OpRestart))
	assert.Equal(t, StateStopping, svc.State)
	assert.Equal(t, PendingRestart, svc.Pending)
}

func TestApplyControlRestartStoppingOnlyMarksPending(t *testing.T) {
	r := newTestRegistry()
	svc, _ := r.NewService("svc", Command{Path: "/bin/true"})
	simulateRunning(r, svc, fakePID)
	require.NoError(t, r.Stop(svc))
	deadline := svc.Deadline

	require.NoError(t, r.ApplyControl(svc.ID, control.OpRestart))
	assert.Equal(t, StateStopping, svc.State)
	assert.Equal(t, PendingRestart, svc.Pending)
	assert.Equal(t, deadline, svc.Deadline, "restart of a stopping service must not rearm the deadline")
}

func TestApplyControlRestartStoppedSpawnsImmediately(t *testing.T) {
	r := newTestRegistry()
	svc, _ := r.NewService("svc", Command{Path: "/bin/true"})

	require.NoError(t, r.ApplyControl(svc.ID, control.OpRestart))
	assert.Equal(t, StateRunning, svc.State)
	assert.NotZero(t, svc.PID)
}

func TestPendingRestartConsumedOnReap(t *testing.T) {
	r := newTestRegistry()
	svc, _ := r.NewService("svc", Command{Path: "/bin/sleep", Args: []string{"3600"}})
	simulateRunning(r, svc, fakePID)
	svc.State = StateStopping
	svc.Pending = PendingRestart
	svc.PendingCmd = Command{Path: "/bin/true"}

	r.finishReap(svc, signaledStatus(15))

	assert.Equal(t, PendingNone, svc.Pending)
	assert.Equal(t, Command{Path: "/bin/true"}, svc.Cmd, "staged command replaces the old one at reap")
	assert.Equal(t, StateRunning, svc.State, "pending restart respawns once reaped")
	assert.NotEqual(t, fakePID, svc.PID)
}

func TestPendingRemoveConsumedOnReap(t *testing.T) {
	r := newTestRegistry()
	svc, _ := r.NewService("svc", Command{Path: "/bin/true"})
	simulateRunning(r, svc, fakePID)
	svc.State = StateStopping
	svc.Pending = PendingRemove

	r.finishReap(svc, exitStatus(0))

	_, ok := r.Get(svc.ID)
	assert.False(t, ok, "pending-removal service is dropped once reaped")
	_, indexed := r.byPIDLookup(fakePID)
	assert.False(t, indexed)
}
