// Package autoload persists saved worker configurations so enabled modules
// can be relaunched non-interactively after a restart or a freeze.
package autoload

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

// Entry is one saved worker configuration
type Entry struct {
	ID             string    `json:"id"`
	ModuleName     string    `json:"module_name"`
	ModuleNumber   int       `json:"module_number"`
	Enabled        bool      `json:"enabled"`
	RecordedInputs []string  `json:"recorded_inputs"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
	LastLaunched   time.Time `json:"last_launched,omitempty"`
	LaunchCount    int       `json:"launch_count"`
}

// Store is the file-backed entry list for one (account, world)
type Store struct {
	path  string
	clock shared.Clock
}

// New creates a store over the given file path
func New(path string, clock shared.Clock) *Store {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Store{path: path, clock: clock}
}

// List returns all saved entries
func (s *Store) List() ([]Entry, error) {
	return s.read()
}

// Add creates a new entry from a finished recording and returns it
func (s *Store) Add(moduleName string, moduleNumber int, inputs []string, description string) (Entry, error) {
	entries, err := s.read()
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:             uuid.NewString(),
		ModuleName:     moduleName,
		ModuleNumber:   moduleNumber,
		Enabled:        true,
		RecordedInputs: inputs,
		Description:    description,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.write(append(entries, entry)); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// SetEnabled toggles an entry
func (s *Store) SetEnabled(id string, enabled bool) error {
	entries, err := s.read()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == id {
			entries[i].Enabled = enabled
			return s.write(entries)
		}
	}
	return fmt.Errorf("no autoload entry %q", id)
}

// Remove deletes an entry
func (s *Store) Remove(id string) error {
	entries, err := s.read()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return s.write(kept)
}

// FindByModule returns the first entry for a module name
func (s *Store) FindByModule(moduleName string) (*Entry, error) {
	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ModuleName == moduleName {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("no autoload entry for module %q", moduleName)
}

// MarkLaunched bumps the launch bookkeeping for an entry
func (s *Store) MarkLaunched(id string) error {
	entries, err := s.read()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == id {
			entries[i].LastLaunched = s.clock.Now()
			entries[i].LaunchCount++
			return s.write(entries)
		}
	}
	return fmt.Errorf("no autoload entry %q", id)
}

func (s *Store) read() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read autoload store: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse autoload store: %w", err)
	}
	return entries, nil
}

func (s *Store) write(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal autoload store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write autoload store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace autoload store: %w", err)
	}
	return nil
}
