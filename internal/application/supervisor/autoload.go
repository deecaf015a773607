package supervisor

import (
	"strings"

	"github.com/andrescamacho/polisbot/internal/adapters/game"
	"github.com/andrescamacho/polisbot/internal/infrastructure/registry"
)

// LaunchReport summarizes one LaunchEnabled pass
type LaunchReport struct {
	Spawned  []string
	Replaced []string
	Warnings []string
}

// LaunchEnabled runs the startup auto-load policy: refresh the registry, then
// for every enabled entry without a healthy worker, spawn one with the
// recorded inputs. Entries whose worker is frozen get a warning and a
// replacement; the stale worker itself is left for the user to kill from the
// task-status screen.
func (s *JobSupervisor) LaunchEnabled(snap *game.Snapshot) (*LaunchReport, error) {
	live, err := s.registry.Refresh()
	if err != nil {
		return nil, err
	}

	entries, err := s.store.List()
	if err != nil {
		return nil, err
	}

	report := &LaunchReport{}
	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}

		worker := findWorker(live, entry.ModuleName)
		if worker != nil && !s.registry.IsFrozen(*worker) {
			continue
		}

		if worker != nil {
			warning := entry.ModuleName + " worker heartbeat is stale, spawning replacement"
			report.Warnings = append(report.Warnings, warning)
			s.logger.Printf("%s (pid %d)", warning, worker.PID)
		}

		pid, _, err := s.Dispatch(entry.ModuleName, snap, entry.RecordedInputs)
		if err != nil {
			report.Warnings = append(report.Warnings, entry.ModuleName+" auto-load failed: "+err.Error())
			continue
		}
		if err := s.store.MarkLaunched(entry.ID); err != nil {
			s.logger.Printf("failed to mark entry launched: %v", err)
		}

		if worker != nil {
			report.Replaced = append(report.Replaced, entry.ModuleName)
		} else {
			report.Spawned = append(report.Spawned, entry.ModuleName)
		}
		s.logger.Printf("auto-loaded %s as pid %d", entry.ModuleName, pid)
	}
	return report, nil
}

// findWorker matches a registry record to a module by its label prefix
func findWorker(records []registry.WorkerRecord, moduleName string) *registry.WorkerRecord {
	for i := range records {
		if strings.HasPrefix(records[i].Label, moduleName) {
			return &records[i]
		}
	}
	return nil
}
