package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

func newTestRegistry(t *testing.T, clock shared.Clock) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".polisbot_processes_59_en_bot.json")
	r := New(path, 10*time.Minute, clock)
	// Every PID is alive and ours unless a test says otherwise
	r.SetLivenessChecks(func(int) bool { return true }, func(int) bool { return true })
	return r
}

func record(pid int, heartbeat time.Time) WorkerRecord {
	return WorkerRecord{
		PID:           pid,
		Label:         "transport (Androkles)",
		StartedAt:     heartbeat,
		Status:        "running",
		LastHeartbeat: heartbeat,
	}
}

func TestRegistry_RegisterAndRefresh(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	reg := newTestRegistry(t, clock)

	require.NoError(t, reg.Register(record(100, clock.Now())))
	require.NoError(t, reg.Register(record(200, clock.Now())))

	live, err := reg.Refresh()
	require.NoError(t, err)
	assert.Len(t, live, 2)
}

func TestRegistry_RegisterIdempotentByPID(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	reg := newTestRegistry(t, clock)

	require.NoError(t, reg.Register(record(100, clock.Now())))
	require.NoError(t, reg.Register(record(100, clock.Now())))

	live, err := reg.Refresh()
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestRegistry_RefreshDropsDeadPIDs(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	reg := newTestRegistry(t, clock)
	require.NoError(t, reg.Register(record(100, clock.Now())))
	require.NoError(t, reg.Register(record(200, clock.Now())))

	reg.SetLivenessChecks(func(pid int) bool { return pid == 100 }, func(int) bool { return true })

	live, err := reg.Refresh()
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, 100, live[0].PID)

	// The pruned list was persisted
	reg.SetLivenessChecks(func(int) bool { return true }, func(int) bool { return true })
	live, err = reg.Refresh()
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestRegistry_RefreshDropsReusedPIDs(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	reg := newTestRegistry(t, clock)
	require.NoError(t, reg.Register(record(100, clock.Now())))

	// PID alive but now belongs to an unrelated executable
	reg.SetLivenessChecks(func(int) bool { return true }, func(int) bool { return false })

	live, err := reg.Refresh()
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestRegistry_UpdateStatusRefreshesHeartbeat(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	reg := newTestRegistry(t, clock)
	require.NoError(t, reg.Register(record(100, clock.Now())))

	clock.Advance(3 * time.Minute)
	require.NoError(t, reg.UpdateStatus(100, "sending leg 2"))

	live, err := reg.Refresh()
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "sending leg 2", live[0].Status)
	assert.Equal(t, clock.Now(), live[0].LastHeartbeat)
	assert.Zero(t, reg.HeartbeatAge(live[0]))
}

func TestRegistry_IsFrozen(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	reg := newTestRegistry(t, clock)

	fresh := record(100, clock.Now())
	assert.False(t, reg.IsFrozen(fresh))

	clock.Advance(11 * time.Minute)
	assert.True(t, reg.IsFrozen(fresh), "heartbeat older than the threshold is frozen")
}

func TestRegistry_CorruptFileStartsFresh(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	reg := newTestRegistry(t, clock)
	require.NoError(t, os.WriteFile(reg.path, []byte("{garbage"), 0o600))

	live, err := reg.Refresh()
	require.NoError(t, err)
	assert.Empty(t, live)

	require.NoError(t, reg.Register(record(100, clock.Now())))
	live, err = reg.Refresh()
	require.NoError(t, err)
	assert.Len(t, live, 1)
}
