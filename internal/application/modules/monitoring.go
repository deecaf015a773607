package modules

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andrescamacho/polisbot/internal/adapters/parsers"
	"github.com/andrescamacho/polisbot/internal/domain/fleet"
)

func init() {
	register(Module{
		Name:        "fleetwatch",
		Number:      60,
		Section:     SectionMonitoring,
		Label:       "Fleet watch",
		Description: "Poll idle fleet counts and notify on changes",
		Build:       buildFleetWatch,
	})
}

func buildFleetWatch(ctx context.Context, deps *Deps) (Job, error) {
	minutes, err := promptInt(deps, "Poll interval in minutes", 1)
	if err != nil {
		return nil, err
	}
	interval := time.Duration(minutes) * time.Minute

	return func(ctx context.Context) error {
		return runFleetWatch(ctx, deps, interval)
	}, nil
}

// runFleetWatch polls both fleet counts on the interval and reports changes
// through the notifier and the activity log
func runFleetWatch(ctx context.Context, deps *Deps, interval time.Duration) error {
	gateway := parsers.NewGateway(deps.Session, deps.Clock)
	classes := []fleet.ShipClass{fleet.ShipClassFast, fleet.ShipClassHeavy}

	last := map[fleet.ShipClass]int{}
	first := true

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		deps.Session.SetStatus("polling fleet")

		for _, class := range classes {
			free, err := gateway.FreeShips(ctx, class)
			if err != nil {
				return err
			}
			if !first && free != last[class] {
				msg := fmt.Sprintf("%s fleet changed: %d → %d idle", class.Key(), last[class], free)
				if deps.Notifier != nil {
					if nerr := deps.Notifier.Send(ctx, msg, nil); nerr != nil {
						fmt.Fprintf(os.Stderr, "notification failed: %v\n", nerr)
					}
				}
				if deps.Activity != nil {
					if lerr := deps.Activity.LogEvent(os.Getpid(), "fleetwatch", "fleet_change", msg); lerr != nil {
						fmt.Fprintf(os.Stderr, "activity log write failed: %v\n", lerr)
					}
				}
			}
			last[class] = free
		}
		first = false

		deps.Session.SetStatus("sleeping")
		deps.Clock.Sleep(interval)
	}
}
