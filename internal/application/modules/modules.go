// Package modules declares the automation modules the shell offers and the
// two-phase contract they follow: an interactive (or replayed) config phase
// that builds a background job, and the job itself, which runs detached under
// the restart supervisor.
package modules

import (
	"context"
	"sort"

	"github.com/andrescamacho/polisbot/internal/adapters/game"
	"github.com/andrescamacho/polisbot/internal/adapters/persistence"
	"github.com/andrescamacho/polisbot/internal/domain/ports"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/config"
	"github.com/andrescamacho/polisbot/internal/infrastructure/paths"
)

// Section groups modules in the shell menu
type Section string

const (
	SectionSettings     Section = "Settings"
	SectionConstruction Section = "Construction"
	SectionTransport    Section = "Transport"
	SectionCombat       Section = "Combat"
	SectionDaily        Section = "Daily"
	SectionMonitoring   Section = "Monitoring"
)

// Sections is the canonical menu order
var Sections = []Section{
	SectionSettings,
	SectionConstruction,
	SectionTransport,
	SectionCombat,
	SectionDaily,
	SectionMonitoring,
}

// Deps is everything a module can use. The prompter is the only input path;
// under replay it serves recorded answers.
type Deps struct {
	Config   *config.Config
	Paths    *paths.Paths
	Session  *game.Session
	Prompter ports.Prompter
	Notifier ports.Notifier
	Activity *persistence.ActivityLog
	Clock    shared.Clock
}

// Job is a module's background phase
type Job func(ctx context.Context) error

// Module is one automation the shell can launch
type Module struct {
	Name        string
	Number      int
	Section     Section
	Label       string
	Description string

	// Build runs the config phase and returns the background job
	Build func(ctx context.Context, deps *Deps) (Job, error)
}

var catalog = map[string]Module{}

func register(m Module) {
	catalog[m.Name] = m
}

// ByName looks a module up by its stable name
func ByName(name string) (Module, bool) {
	m, ok := catalog[name]
	return m, ok
}

// BySection returns a section's modules ordered by number
func BySection(section Section) []Module {
	var out []Module
	for _, m := range catalog {
		if m.Section == section {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// All returns every module ordered by number
func All() []Module {
	out := make([]Module, 0, len(catalog))
	for _, m := range catalog {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
