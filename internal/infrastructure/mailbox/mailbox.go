// Package mailbox is the per-account critical error spool: workers append
// fatal errors, the parent drains and displays them before each menu render.
package mailbox

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

// CriticalError is one fatal worker failure awaiting display
type CriticalError struct {
	PID       int       `json:"pid"`
	Module    string    `json:"module"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Mailbox is the file-backed spool for one (account, world)
type Mailbox struct {
	path  string
	clock shared.Clock
}

// New creates a mailbox over the given file path
func New(path string, clock shared.Clock) *Mailbox {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Mailbox{path: path, clock: clock}
}

// Report appends a record via read-modify-write with a temp-file rename
func (m *Mailbox) Report(pid int, module, message string) error {
	var entries []CriticalError
	if data, err := os.ReadFile(m.path); err == nil {
		// A corrupt spool loses old entries but never blocks a report
		_ = json.Unmarshal(data, &entries)
	}

	entries = append(entries, CriticalError{
		PID:       pid,
		Module:    module,
		Message:   message,
		Timestamp: m.clock.Now(),
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal error mailbox: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write error mailbox: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace error mailbox: %w", err)
	}
	return nil
}

// Drain atomically moves the spool aside and returns its contents
func (m *Mailbox) Drain() ([]CriticalError, error) {
	drained := m.path + ".draining"
	if err := os.Rename(m.path, drained); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim error mailbox: %w", err)
	}
	defer os.Remove(drained)

	data, err := os.ReadFile(drained)
	if err != nil {
		return nil, fmt.Errorf("failed to read drained mailbox: %w", err)
	}

	var entries []CriticalError
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse drained mailbox: %w", err)
	}
	return entries, nil
}
