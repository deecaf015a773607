package supervisor

import (
	"encoding/json"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/polisbot/internal/adapters/game"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/autoload"
	"github.com/andrescamacho/polisbot/internal/infrastructure/config"
	"github.com/andrescamacho/polisbot/internal/infrastructure/mailbox"
	"github.com/andrescamacho/polisbot/internal/infrastructure/paths"
	"github.com/andrescamacho/polisbot/internal/infrastructure/registry"
)

type supervisorFixture struct {
	s        *JobSupervisor
	paths    *paths.Paths
	registry *registry.Registry
	store    *autoload.Store
	clock    *shared.MockClock

	spawnArgs [][]string
}

func newSupervisorFixture(t *testing.T) *supervisorFixture {
	t.Helper()
	dir := t.TempDir()
	p := paths.NewAt(dir)
	clock := shared.NewMockClock(time.Time{})

	reg := registry.New(p.ProcessRegistry("59_en", "bot"), 10*time.Minute, clock)
	reg.SetLivenessChecks(func(int) bool { return true }, func(int) bool { return true })
	mbox := mailbox.New(p.ErrorMailbox("59_en", "bot"), clock)
	store := autoload.New(p.AutoLoader("59_en", "bot"), clock)

	cfg := config.SupervisorConfig{
		FrozenThreshold: 10 * time.Minute,
		MaxRestarts:     3,
		BackoffBase:     30 * time.Second,
		BackoffCap:      15 * time.Minute,
		HandoffTimeout:  5 * time.Second,
	}

	f := &supervisorFixture{paths: p, registry: reg, store: store, clock: clock}
	f.s = New(cfg, p, reg, mbox, store, clock)

	// Stand-in worker: records the args and signals its handoff immediately
	f.s.spawn = func(args []string) (int, error) {
		f.spawnArgs = append(f.spawnArgs, args)
		require.NoError(t, os.WriteFile(argValue(args, "--handoff"), []byte("1\n"), 0o600))
		return os.Getpid(), nil
	}
	return f
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func testSnapshot() *game.Snapshot {
	return &game.Snapshot{
		Host:       "s59-en.example.test",
		PlayerName: "Androkles",
	}
}

func TestDispatch_SpawnsWorkerWithSnapshotAndInputs(t *testing.T) {
	f := newSupervisorFixture(t)

	pid, _, err := f.s.Dispatch("transport", testSnapshot(), []string{"101", "202", "1"})
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.Len(t, f.spawnArgs, 1)
	args := f.spawnArgs[0]
	assert.Equal(t, "worker", args[0])
	assert.Equal(t, "transport", argValue(args, "--module"))

	snapData, err := os.ReadFile(argValue(args, "--snapshot"))
	require.NoError(t, err)
	var snap game.Snapshot
	require.NoError(t, json.Unmarshal(snapData, &snap))
	assert.Equal(t, "s59-en.example.test", snap.Host)

	inputsData, err := os.ReadFile(argValue(args, "--inputs"))
	require.NoError(t, err)
	var replay []string
	require.NoError(t, json.Unmarshal(inputsData, &replay))
	assert.Equal(t, []string{"101", "202", "1"}, replay)
}

func TestDispatch_CollectsRecordedInputs(t *testing.T) {
	f := newSupervisorFixture(t)
	f.s.spawn = func(args []string) (int, error) {
		// The worker flushes its recorded answers before touching the handoff
		data, _ := json.Marshal([]string{"101", "202", "y"})
		require.NoError(t, os.WriteFile(f.paths.RecordedInputs(), data, 0o600))
		require.NoError(t, os.WriteFile(argValue(args, "--handoff"), []byte("1\n"), 0o600))
		return os.Getpid(), nil
	}

	_, recorded, err := f.s.Dispatch("transport", testSnapshot(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "202", "y"}, recorded)

	_, statErr := os.Stat(f.paths.RecordedInputs())
	assert.True(t, os.IsNotExist(statErr), "collected inputs are consumed")
}

func TestDispatch_HandoffTimeout(t *testing.T) {
	f := newSupervisorFixture(t)
	f.s.spawn = func(args []string) (int, error) {
		// Worker never detaches
		return os.Getpid(), nil
	}

	_, _, err := f.s.Dispatch("transport", testSnapshot(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not detach")
}

func TestDispatch_WorkerDiesBeforeHandoff(t *testing.T) {
	pid := deadPID(t)
	f := newSupervisorFixture(t)
	f.s.spawn = func(args []string) (int, error) {
		return pid, nil
	}

	_, _, err := f.s.Dispatch("transport", testSnapshot(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited before completing")
}

func TestLaunchEnabled_SpawnsOnlyEnabledEntries(t *testing.T) {
	f := newSupervisorFixture(t)
	_, err := f.store.Add("transport", 30, []string{"101", "202", "1"}, "")
	require.NoError(t, err)
	disabled, err := f.store.Add("fleetwatch", 60, []string{"5"}, "")
	require.NoError(t, err)
	require.NoError(t, f.store.SetEnabled(disabled.ID, false))

	report, err := f.s.LaunchEnabled(testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, []string{"transport"}, report.Spawned)
	assert.Empty(t, report.Replaced)
	assert.Empty(t, report.Warnings)

	entries, err := f.store.List()
	require.NoError(t, err)
	for _, e := range entries {
		if e.ModuleName == "transport" {
			assert.Equal(t, 1, e.LaunchCount)
		}
	}
}

func TestLaunchEnabled_SkipsHealthyWorker(t *testing.T) {
	f := newSupervisorFixture(t)
	_, err := f.store.Add("transport", 30, []string{"1"}, "")
	require.NoError(t, err)

	require.NoError(t, f.registry.Register(registry.WorkerRecord{
		PID:           4242,
		Label:         "transport (Androkles)",
		StartedAt:     f.clock.Now(),
		Status:        "running",
		LastHeartbeat: f.clock.Now(),
	}))

	report, err := f.s.LaunchEnabled(testSnapshot())
	require.NoError(t, err)

	assert.Empty(t, report.Spawned)
	assert.Empty(t, f.spawnArgs)
}

func TestLaunchEnabled_ReplacesFrozenWorkerWithoutKilling(t *testing.T) {
	f := newSupervisorFixture(t)
	_, err := f.store.Add("transport", 30, []string{"1"}, "")
	require.NoError(t, err)

	require.NoError(t, f.registry.Register(registry.WorkerRecord{
		PID:           4242,
		Label:         "transport (Androkles)",
		StartedAt:     f.clock.Now(),
		Status:        "running",
		LastHeartbeat: f.clock.Now(),
	}))
	f.clock.Advance(11 * time.Minute)

	report, err := f.s.LaunchEnabled(testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, []string{"transport"}, report.Replaced)
	assert.Empty(t, report.Spawned)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "stale")

	// The frozen worker is left alone for the user to inspect
	live, err := f.registry.Refresh()
	require.NoError(t, err)
	found := false
	for _, rec := range live {
		if rec.PID == 4242 {
			found = true
		}
	}
	assert.True(t, found)
}

// deadPID returns the PID of an already-reaped process
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())
	return cmd.Process.Pid
}

func TestRestart_WithoutSavedEntryFailsCleanly(t *testing.T) {
	f := newSupervisorFixture(t)

	_, err := f.s.Restart(deadPID(t), "transport", testSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no saved configuration for module transport")
	assert.Empty(t, f.spawnArgs, "nothing is spawned without a saved configuration")
}

func TestRestart_RedispatchesFromSavedEntry(t *testing.T) {
	f := newSupervisorFixture(t)
	entry, err := f.store.Add("transport", 30, []string{"101", "202", "1"}, "")
	require.NoError(t, err)

	pid, err := f.s.Restart(deadPID(t), "transport", testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.Len(t, f.spawnArgs, 1)
	args := f.spawnArgs[0]
	assert.Equal(t, "transport", argValue(args, "--module"))

	inputsData, err := os.ReadFile(argValue(args, "--inputs"))
	require.NoError(t, err)
	var replay []string
	require.NoError(t, json.Unmarshal(inputsData, &replay))
	assert.Equal(t, entry.RecordedInputs, replay, "the saved answers drive the replacement worker")

	entries, err := f.store.List()
	require.NoError(t, err)
	assert.Equal(t, 1, entries[0].LaunchCount)
}

func TestRestartBackoff(t *testing.T) {
	base := 30 * time.Second
	limit := 15 * time.Minute

	assert.Equal(t, 30*time.Second, restartBackoff(base, limit, 0))
	assert.Equal(t, time.Minute, restartBackoff(base, limit, 1))
	assert.Equal(t, 2*time.Minute, restartBackoff(base, limit, 2))
	assert.Equal(t, 8*time.Minute, restartBackoff(base, limit, 4))
	assert.Equal(t, limit, restartBackoff(base, limit, 5), "doubling is capped")
	assert.Equal(t, limit, restartBackoff(base, limit, 50))
}
