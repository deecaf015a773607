package modules

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andrescamacho/polisbot/internal/adapters/parsers"
	"github.com/andrescamacho/polisbot/internal/application/transport"
	"github.com/andrescamacho/polisbot/internal/domain/fleet"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/fleetlock"
)

func init() {
	register(Module{
		Name:        "transport",
		Number:      30,
		Section:     SectionTransport,
		Label:       "Resource transport",
		Description: "Ship resources between cities under the shared fleet lock",
		Build:       buildTransport,
	})
}

// transportSpec is the config-phase product
type transportSpec struct {
	class    fleet.ShipClass
	routes   []*fleet.Route
	interval time.Duration
}

func buildTransport(ctx context.Context, deps *Deps) (Job, error) {
	spec, err := promptTransportSpec(deps)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		return runTransport(ctx, deps, spec)
	}, nil
}

// promptTransportSpec walks the user (or the replay queue) through one plan
func promptTransportSpec(deps *Deps) (*transportSpec, error) {
	classIdx, err := deps.Prompter.Choose("Ship class", []string{"fast (250 per ship)", "heavy (500 per ship)"})
	if err != nil {
		return nil, err
	}
	class := fleet.ShipClassFast
	if classIdx == 1 {
		class = fleet.ShipClassHeavy
	}

	spec := &transportSpec{class: class}
	for {
		route, err := promptRoute(deps)
		if err != nil {
			return nil, err
		}
		spec.routes = append(spec.routes, route)

		more, err := deps.Prompter.Confirm("Add another route?")
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}

	minutes, err := promptInt(deps, "Repeat interval in minutes (0 = run once)", 0)
	if err != nil {
		return nil, err
	}
	spec.interval = time.Duration(minutes) * time.Minute
	return spec, nil
}

func promptRoute(deps *Deps) (*fleet.Route, error) {
	origin, err := deps.Prompter.Read("Origin city id")
	if err != nil {
		return nil, err
	}
	destination, err := deps.Prompter.Read("Destination city id")
	if err != nil {
		return nil, err
	}
	island, err := deps.Prompter.Read("Destination island id")
	if err != nil {
		return nil, err
	}

	var cargo shared.Cargo
	for i := 0; i < shared.ResourceCount; i++ {
		amount, err := promptInt(deps, fmt.Sprintf("Units of %s", shared.Resource(i)), 0)
		if err != nil {
			return nil, err
		}
		cargo[i] = int64(amount)
	}
	if cargo.IsZero() {
		return nil, shared.NewValidationError("cargo", "route must carry at least one unit")
	}

	return fleet.NewRoute(strings.TrimSpace(origin), strings.TrimSpace(destination),
		strings.TrimSpace(island), cargo, deps.Clock)
}

func promptInt(deps *Deps, prompt string, min int) (int, error) {
	raw, err := deps.Prompter.Read(prompt)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%q is not a number: %w", raw, err)
	}
	if value < min {
		return 0, fmt.Errorf("value %d below minimum %d", value, min)
	}
	return value, nil
}

// runTransport executes the plan, records the ledger, and repeats on the
// configured interval. Routes are rebuilt per cycle; a Route is single-use.
func runTransport(ctx context.Context, deps *Deps, spec *transportSpec) error {
	session := deps.Session
	world := session.World()
	lock := fleetlock.New(
		deps.Paths.FleetLock(spec.class.Key(), world.Key(), session.Account().Key()),
		session.Account().Key(),
		spec.class,
		deps.Config.Transport.LockStaleThreshold,
		deps.Clock,
	)
	gateway := parsers.NewGateway(session, deps.Clock)
	engine := transport.NewEngine(deps.Config.Transport, gateway, lock, deps.Clock)

	for {
		session.SetStatus("transporting")

		plan := &transport.Plan{Class: spec.class, Routes: cloneRoutes(spec.routes, deps.Clock)}
		result, err := engine.Execute(ctx, plan)
		if err != nil {
			return err
		}

		logTransportResult(deps, spec.class, result)

		if spec.interval <= 0 {
			session.SetStatus("done")
			return nil
		}
		session.SetStatus("sleeping")
		deps.Clock.Sleep(spec.interval)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func cloneRoutes(routes []*fleet.Route, clock shared.Clock) []*fleet.Route {
	out := make([]*fleet.Route, 0, len(routes))
	for _, r := range routes {
		fresh, err := fleet.NewRoute(r.OriginCityID, r.DestinationCityID, r.DestinationIsland, r.Planned, clock)
		if err != nil {
			continue
		}
		out = append(out, fresh)
	}
	return out
}

func logTransportResult(deps *Deps, class fleet.ShipClass, result *transport.Result) {
	if deps.Activity != nil {
		for _, rec := range result.Dispatches {
			if err := deps.Activity.RecordDispatch(os.Getpid(), class, rec); err != nil {
				fmt.Fprintf(os.Stderr, "dispatch ledger write failed: %v\n", err)
			}
		}
		detail := fmt.Sprintf("delivered %s, dropped %s, %d routes aborted",
			result.Delivered, result.Dropped, len(result.Aborted))
		if err := deps.Activity.LogEvent(os.Getpid(), "transport", "batch_done", detail); err != nil {
			fmt.Fprintf(os.Stderr, "activity log write failed: %v\n", err)
		}
	}

	if len(result.Aborted) > 0 && deps.Notifier != nil {
		msg := fmt.Sprintf("transport batch finished with %d aborted routes (delivered %s, dropped %s)",
			len(result.Aborted), result.Delivered, result.Dropped)
		if err := deps.Notifier.Send(context.Background(), msg, nil); err != nil {
			fmt.Fprintf(os.Stderr, "notification failed: %v\n", err)
		}
	}
}
