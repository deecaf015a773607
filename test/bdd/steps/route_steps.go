package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/andrescamacho/polisbot/internal/domain/fleet"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

type routeContext struct {
	clock         *shared.MockClock
	route         *fleet.Route
	creationErr   error
	transitionErr error
}

func (rc *routeContext) reset() {
	rc.clock = shared.NewMockClock(time.Time{})
	rc.route = nil
	rc.creationErr = nil
	rc.transitionErr = nil
}

func (rc *routeContext) aRouteCarryingWood(origin, destination string, wood int64) error {
	route, err := fleet.NewRoute(origin, destination, "9", shared.Cargo{wood, 0, 0, 0, 0}, rc.clock)
	if err != nil {
		return err
	}
	rc.route = route
	return nil
}

func (rc *routeContext) aRouteIsPlanned(origin, destination string) error {
	rc.route, rc.creationErr = fleet.NewRoute(origin, destination, "9", shared.Cargo{100, 0, 0, 0, 0}, rc.clock)
	return nil
}

func (rc *routeContext) theRouteTransitionsThrough(path string) error {
	for _, state := range strings.Split(path, ",") {
		state = strings.TrimSpace(state)
		if err := rc.route.Transition(fleet.RouteStatus(state)); err != nil {
			return err
		}
	}
	return nil
}

func (rc *routeContext) theRouteAttemptsToTransitionTo(state string) error {
	rc.transitionErr = rc.route.Transition(fleet.RouteStatus(state))
	return nil
}

func (rc *routeContext) theTransitionShouldBeRejected() error {
	if rc.transitionErr == nil {
		return fmt.Errorf("expected the transition to be rejected, but it was allowed")
	}
	return nil
}

func (rc *routeContext) theRouteStatusShouldBe(expected string) error {
	if string(rc.route.Status()) != expected {
		return fmt.Errorf("expected status %s, got %s", expected, rc.route.Status())
	}
	return nil
}

func (rc *routeContext) theRouteShouldBeRejected() error {
	if rc.creationErr == nil {
		return fmt.Errorf("expected route creation to fail, but it succeeded")
	}
	return nil
}

func (rc *routeContext) aLegOfWoodIsDelivered(wood int64) error {
	rc.route.Deliver(shared.Cargo{wood, 0, 0, 0, 0})
	return nil
}

func (rc *routeContext) theRemainingCargoIsDropped() error {
	rc.route.Drop()
	return nil
}

func (rc *routeContext) theRouteShouldAccount(delivered, dropped int64) error {
	if got := rc.route.Delivered()[shared.ResourceWood]; got != delivered {
		return fmt.Errorf("expected %d wood delivered, got %d", delivered, got)
	}
	if got := rc.route.Dropped[shared.ResourceWood]; got != dropped {
		return fmt.Errorf("expected %d wood dropped, got %d", dropped, got)
	}
	total := rc.route.Delivered().Add(rc.route.Dropped).Add(rc.route.Remaining)
	if total != rc.route.Planned {
		return fmt.Errorf("conservation violated: %s accounted of %s planned", total, rc.route.Planned)
	}
	return nil
}

// InitializeRouteScenario registers route lifecycle steps
func InitializeRouteScenario(sc *godog.ScenarioContext) {
	rc := &routeContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		rc.reset()
		return ctx, nil
	})

	sc.Step(`^a route from city "([^"]*)" to city "([^"]*)" carrying (\d+) wood$`, rc.aRouteCarryingWood)
	sc.Step(`^a route from city "([^"]*)" to city "([^"]*)" is planned$`, rc.aRouteIsPlanned)
	sc.Step(`^the route transitions through "([^"]*)"$`, rc.theRouteTransitionsThrough)
	sc.Step(`^the route attempts to transition to "([^"]*)"$`, rc.theRouteAttemptsToTransitionTo)
	sc.Step(`^the transition should be rejected$`, rc.theTransitionShouldBeRejected)
	sc.Step(`^the route status should be "([^"]*)"$`, rc.theRouteStatusShouldBe)
	sc.Step(`^the route should be rejected$`, rc.theRouteShouldBeRejected)
	sc.Step(`^a leg of (\d+) wood is delivered$`, rc.aLegOfWoodIsDelivered)
	sc.Step(`^the remaining cargo is dropped$`, rc.theRemainingCargoIsDropped)
	sc.Step(`^the route should account (\d+) wood delivered and (\d+) wood dropped$`, rc.theRouteShouldAccount)
}
