// Package supervisor owns the worker lifecycle: spawning detached worker
// processes, the config→background handoff, bounded-restart background loops,
// and the startup auto-load policy. Parent and workers coordinate exclusively
// through files; a worker survives its parent on POSIX.
package supervisor

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/andrescamacho/polisbot/internal/adapters/game"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/autoload"
	"github.com/andrescamacho/polisbot/internal/infrastructure/config"
	"github.com/andrescamacho/polisbot/internal/infrastructure/mailbox"
	"github.com/andrescamacho/polisbot/internal/infrastructure/paths"
	"github.com/andrescamacho/polisbot/internal/infrastructure/proc"
	"github.com/andrescamacho/polisbot/internal/infrastructure/registry"
)

// handoffPoll is how often the parent checks for the worker's detach signal
const handoffPoll = 500 * time.Millisecond

// JobSupervisor spawns, observes, restarts, and kills background workers
type JobSupervisor struct {
	cfg      config.SupervisorConfig
	paths    *paths.Paths
	registry *registry.Registry
	mailbox  *mailbox.Mailbox
	store    *autoload.Store
	clock    shared.Clock
	logger   *log.Logger

	// spawn is swappable so tests observe dispatches without forking
	spawn func(args []string) (int, error)
}

// New wires a supervisor for one (account, world) pair
func New(
	cfg config.SupervisorConfig,
	p *paths.Paths,
	reg *registry.Registry,
	mbox *mailbox.Mailbox,
	store *autoload.Store,
	clock shared.Clock,
) *JobSupervisor {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	s := &JobSupervisor{
		cfg:      cfg,
		paths:    p,
		registry: reg,
		mailbox:  mbox,
		store:    store,
		clock:    clock,
		logger:   log.New(os.Stderr, "[supervisor] ", log.LstdFlags),
	}
	s.spawn = s.spawnDetached
	return s
}

// Dispatch spawns a worker for the module with a session reconstructed from
// the snapshot. It blocks until the worker signals its handoff file (config
// phase done, background phase started) and returns the recorded inputs the
// worker flushed, if any.
func (s *JobSupervisor) Dispatch(moduleName string, snap *game.Snapshot, inputs []string) (int, []string, error) {
	snapFile, err := s.writeSnapshot(snap)
	if err != nil {
		return 0, nil, err
	}

	handoff := filepath.Join(filepath.Dir(snapFile), fmt.Sprintf("handoff_%d_%s", os.Getpid(), moduleName))
	os.Remove(handoff)

	args := []string{
		"worker",
		"--module", moduleName,
		"--snapshot", snapFile,
		"--handoff", handoff,
	}
	if len(inputs) > 0 {
		inputsFile := snapFile + ".inputs"
		data, err := json.Marshal(inputs)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to serialize replay inputs: %w", err)
		}
		if err := os.WriteFile(inputsFile, data, 0o600); err != nil {
			return 0, nil, fmt.Errorf("failed to write replay inputs: %w", err)
		}
		args = append(args, "--inputs", inputsFile)
	}

	pid, err := s.spawn(args)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to spawn worker: %w", err)
	}
	s.logger.Printf("worker %d spawned for module %s", pid, moduleName)

	if err := s.awaitHandoff(handoff, pid); err != nil {
		return pid, nil, err
	}

	// Recording sessions flush answers to the well-known file on detach
	var recorded []string
	if flushed, err := os.ReadFile(s.paths.RecordedInputs()); err == nil {
		if json.Unmarshal(flushed, &recorded) == nil {
			os.Remove(s.paths.RecordedInputs())
		}
	}
	return pid, recorded, nil
}

// Restart kills the worker and re-dispatches its module from the saved entry
func (s *JobSupervisor) Restart(pid int, moduleName string, snap *game.Snapshot) (int, error) {
	if err := s.Kill(pid); err != nil {
		s.logger.Printf("kill of %d before restart failed: %v", pid, err)
	}

	entry, err := s.store.FindByModule(moduleName)
	if err != nil {
		return 0, fmt.Errorf("no saved configuration for module %s: %w", moduleName, err)
	}
	if entry == nil {
		return 0, fmt.Errorf("no saved configuration for module %s", moduleName)
	}

	newPID, _, err := s.Dispatch(moduleName, snap, entry.RecordedInputs)
	if err != nil {
		return 0, err
	}
	if err := s.store.MarkLaunched(entry.ID); err != nil {
		s.logger.Printf("failed to mark entry launched: %v", err)
	}
	return newPID, nil
}

// Kill sends the termination signal; the registry prunes the entry on its
// next refresh.
func (s *JobSupervisor) Kill(pid int) error {
	return proc.Kill(pid)
}

func (s *JobSupervisor) writeSnapshot(snap *game.Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to serialize session snapshot: %w", err)
	}

	f, err := os.CreateTemp("", "polisbot_snapshot_*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()

	if err := f.Chmod(0o600); err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return f.Name(), nil
}

// awaitHandoff polls for the handoff file the worker touches on detach
func (s *JobSupervisor) awaitHandoff(handoff string, pid int) error {
	deadline := s.clock.Now().Add(s.cfg.HandoffTimeout)
	for {
		if _, err := os.Stat(handoff); err == nil {
			os.Remove(handoff)
			return nil
		}
		if !proc.Alive(pid) {
			return fmt.Errorf("worker %d exited before completing its config phase", pid)
		}
		if s.clock.Now().After(deadline) {
			return fmt.Errorf("worker %d did not detach within %s", pid, s.cfg.HandoffTimeout)
		}
		s.clock.Sleep(handoffPoll)
	}
}

// spawnDetached re-executes the current binary in its own session so the
// worker survives the parent's terminal
func (s *JobSupervisor) spawnDetached(args []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve own executable: %w", err)
	}

	// The worker shares the parent's terminal for its config phase and
	// redirects itself on detach
	cmd := exec.Command(exe, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	// Reap the child when it eventually exits; its registry entry is the
	// authoritative liveness record, not the process handle
	go cmd.Wait()

	return pid, nil
}
