// Package paths centralizes every user-scoped state file location so the
// parent shell and detached workers agree on them without sharing memory.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "polisbot"

// Paths resolves state file locations for one (account, world) pair
type Paths struct {
	home string
	data string
}

// New resolves the user's home and data directories. Overridable via
// POLISBOT_STATE_DIR for tests.
func New() (*Paths, error) {
	if override := os.Getenv("POLISBOT_STATE_DIR"); override != "" {
		return &Paths{home: override, data: override}, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	data, err := os.UserConfigDir()
	if err != nil {
		data = home
	}

	return &Paths{home: home, data: filepath.Join(data, appName)}, nil
}

// NewAt roots all paths at the given directory (tests)
func NewAt(dir string) *Paths {
	return &Paths{home: dir, data: dir}
}

// AccountStore is the encrypted account file
func (p *Paths) AccountStore() string {
	return filepath.Join(p.data, "accounts.enc")
}

// ProcessRegistry is the per-(world,account) live worker list
func (p *Paths) ProcessRegistry(worldKey, accountKey string) string {
	return filepath.Join(p.home, fmt.Sprintf(".%s_processes_%s_%s.json", appName, worldKey, accountKey))
}

// ErrorMailbox is the per-(world,account) critical error spool
func (p *Paths) ErrorMailbox(worldKey, accountKey string) string {
	return filepath.Join(p.home, fmt.Sprintf(".%s_errors_%s_%s.json", appName, worldKey, accountKey))
}

// AutoLoader is the per-(world,account) saved worker configuration list
func (p *Paths) AutoLoader(worldKey, accountKey string) string {
	return filepath.Join(p.home, fmt.Sprintf(".%s_autoload_%s_%s.json", appName, worldKey, accountKey))
}

// FleetLock is the per-(class,world,account) shared fleet mutex
func (p *Paths) FleetLock(classKey, worldKey, accountKey string) string {
	return filepath.Join(p.home, fmt.Sprintf(".%s_shared_%s_%s_%s.lock", appName, classKey, worldKey, accountKey))
}

// RecordedInputs is the recording-mode handoff file
func (p *Paths) RecordedInputs() string {
	return filepath.Join(p.home, fmt.Sprintf(".%s_recorded_inputs.json", appName))
}

// ActivityDB is the default SQLite activity-log location
func (p *Paths) ActivityDB() string {
	return filepath.Join(p.data, "activity.db")
}

// WorkerLog is a per-worker log file
func (p *Paths) WorkerLog(pid int) string {
	return filepath.Join(p.data, "logs", fmt.Sprintf("worker_%d.log", pid))
}
