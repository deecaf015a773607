// Package registry maintains the per-account on-disk list of live background
// workers. The file is authoritative: workers write their own heartbeats and
// the parent reads them to render health. All mutations are read-modify-write
// with an atomic temp-file rename.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/proc"
)

// WorkerRecord is one live background worker
type WorkerRecord struct {
	PID           int       `json:"pid"`
	Label         string    `json:"label"`
	StartedAt     time.Time `json:"started_at"`
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Registry is the file-backed worker list for one (account, world)
type Registry struct {
	path            string
	frozenThreshold time.Duration
	clock           shared.Clock

	// liveness hooks, replaceable in tests
	alive          func(pid int) bool
	sameExecutable func(pid int) bool
}

// New creates a registry over the given file path
func New(path string, frozenThreshold time.Duration, clock shared.Clock) *Registry {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Registry{
		path:            path,
		frozenThreshold: frozenThreshold,
		clock:           clock,
		alive:           proc.Alive,
		sameExecutable:  proc.SameExecutable,
	}
}

// SetLivenessChecks overrides the PID checks (tests)
func (r *Registry) SetLivenessChecks(alive, sameExecutable func(pid int) bool) {
	r.alive = alive
	r.sameExecutable = sameExecutable
}

// Refresh drops entries whose PID is dead or belongs to a different
// executable, persists the filtered list, and returns it.
func (r *Registry) Refresh() ([]WorkerRecord, error) {
	records, err := r.read()
	if err != nil {
		return nil, err
	}

	live := records[:0]
	for _, rec := range records {
		if !r.alive(rec.PID) || !r.sameExecutable(rec.PID) {
			continue
		}
		live = append(live, rec)
	}

	if err := r.write(live); err != nil {
		return nil, err
	}
	return append([]WorkerRecord(nil), live...), nil
}

// Register adds a record; idempotent by PID
func (r *Registry) Register(rec WorkerRecord) error {
	records, err := r.read()
	if err != nil {
		return err
	}

	for i := range records {
		if records[i].PID == rec.PID {
			records[i] = rec
			return r.write(records)
		}
	}

	return r.write(append(records, rec))
}

// UpdateStatus rewrites the status and heartbeat of the matching entry
func (r *Registry) UpdateStatus(pid int, status string) error {
	records, err := r.read()
	if err != nil {
		return err
	}

	for i := range records {
		if records[i].PID == pid {
			records[i].Status = status
			records[i].LastHeartbeat = r.clock.Now()
			return r.write(records)
		}
	}

	return fmt.Errorf("no registry entry for pid %d", pid)
}

// Remove deletes the entry for a PID; no error if absent
func (r *Registry) Remove(pid int) error {
	records, err := r.read()
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, rec := range records {
		if rec.PID != pid {
			kept = append(kept, rec)
		}
	}
	return r.write(kept)
}

// HeartbeatAge returns how stale an entry's heartbeat is
func (r *Registry) HeartbeatAge(rec WorkerRecord) time.Duration {
	return r.clock.Now().Sub(rec.LastHeartbeat)
}

// IsFrozen reports whether the heartbeat is older than the frozen threshold
func (r *Registry) IsFrozen(rec WorkerRecord) bool {
	return r.HeartbeatAge(rec) > r.frozenThreshold
}

func (r *Registry) read() ([]WorkerRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read process registry: %w", err)
	}

	var records []WorkerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		// A corrupt registry is reconstructible from running PIDs;
		// start over rather than wedge every worker
		return nil, nil
	}
	return records, nil
}

func (r *Registry) write(records []WorkerRecord) error {
	if records == nil {
		records = []WorkerRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal process registry: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write process registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace process registry: %w", err)
	}
	return nil
}
