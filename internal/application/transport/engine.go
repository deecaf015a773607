// Package transport executes ship-route plans over the game session: it
// acquires the per-class fleet lock, waits for ship availability, slices each
// route into legs the fleet and warehouses can absorb, dispatches them with
// bounded retries, and verifies actual fleet consumption against expectation.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/andrescamacho/polisbot/internal/domain/fleet"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/config"
)

// ErrShipsBusy is returned by a Gateway dispatch when the game reports the
// fleet was grabbed between the free-ship check and the send.
var ErrShipsBusy = errors.New("ships busy")

// Gateway is the game-facing collaborator. It drives the session (which owns
// the rate limit) and the HTML parsers; the engine itself makes no HTTP calls.
type Gateway interface {
	// FetchCity returns current stock and storage for one city
	FetchCity(ctx context.Context, cityID string) (*fleet.City, error)

	// FreeShips counts idle ships of the class
	FreeShips(ctx context.Context, class fleet.ShipClass) (int, error)

	// FleetReturnETA reports how long until the nearest fleet returns
	FleetReturnETA(ctx context.Context) (time.Duration, error)

	// Dispatch issues one transport leg. Returns ErrShipsBusy when the game
	// rejects it for lack of ships.
	Dispatch(ctx context.Context, route *fleet.Route, cargo shared.Cargo, ships int) error
}

// Locker is the fleet mutual-exclusion collaborator
type Locker interface {
	Acquire(timeout time.Duration) error
	Release() error
}

// DispatchRecord is the per-leg accounting entry
type DispatchRecord struct {
	Route         *fleet.Route
	Cargo         shared.Cargo
	ShipsExpected int
	ShipsConsumed int
	SentAt        time.Time
}

// Plan is one batch: routes sharing a ship class, executed under one lock
type Plan struct {
	Routes []*fleet.Route
	Class  fleet.ShipClass
}

// Result summarizes a finished batch for conservation accounting
type Result struct {
	Delivered  shared.Cargo
	Dropped    shared.Cargo
	Dispatches []DispatchRecord
	Aborted    []*fleet.Route
}

// Engine executes plans. One engine per worker; not safe for concurrent use.
type Engine struct {
	cfg     config.TransportConfig
	gateway Gateway
	lock    Locker
	clock   shared.Clock
	logger  *log.Logger

	// jitter is swappable so tests run deterministically
	jitter func(max time.Duration) time.Duration
}

// NewEngine wires an engine over the gateway and lock
func NewEngine(cfg config.TransportConfig, gateway Gateway, lock Locker, clock shared.Clock) *Engine {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Engine{
		cfg:     cfg,
		gateway: gateway,
		lock:    lock,
		clock:   clock,
		logger:  log.New(os.Stderr, "[transport] ", log.LstdFlags),
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// Execute runs the whole plan under a single held fleet lock. The lock is
// released on every path, including panics in the gateway.
func (e *Engine) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	if !plan.Class.Valid() {
		return nil, shared.NewValidationError("ship_class", "unknown ship class")
	}

	if err := e.acquireLock(); err != nil {
		return nil, err
	}
	defer func() {
		if err := e.lock.Release(); err != nil {
			e.logger.Printf("fleet lock release failed: %v", err)
		}
	}()

	result := &Result{}
	for _, route := range plan.Routes {
		if err := e.executeRoute(ctx, plan.Class, route, result); err != nil {
			route.Abort(err)
			route.Drop()
			result.Aborted = append(result.Aborted, route)
			e.logger.Printf("route %s aborted: %v", route, err)
		}
		result.Delivered = result.Delivered.Add(route.Delivered())
		result.Dropped = result.Dropped.Add(route.Dropped)
	}
	return result, nil
}

// acquireLock retries acquisition per the configured budget
func (e *Engine) acquireLock() error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.LockRetries; attempt++ {
		err := e.lock.Acquire(e.cfg.LockTimeout)
		if err == nil {
			return nil
		}
		lastErr = err
		e.logger.Printf("fleet lock attempt %d/%d failed: %v", attempt, e.cfg.LockRetries, err)
		if attempt < e.cfg.LockRetries {
			e.clock.Sleep(e.cfg.LockRetrySleep)
		}
	}
	return fmt.Errorf("fleet lock not acquired after %d attempts: %w", e.cfg.LockRetries, lastErr)
}

// executeRoute drives one route through its state machine until delivered or
// a budget runs out
func (e *Engine) executeRoute(ctx context.Context, class fleet.ShipClass, route *fleet.Route, result *Result) error {
	var waited time.Duration
	strikes := 0

	for !route.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}

		// NEED_SHIPS: wait for at least one idle ship. A failed poll is an
		// unexpected response like any other; only a spent wait budget is
		// terminal here.
		free, err := e.waitForShips(ctx, class, &waited)
		if err != nil {
			var budgetErr *shared.WaitBudgetExceededError
			if errors.As(err, &budgetErr) {
				return err
			}
			if strikes = e.strike(route, strikes, err); strikes < 0 {
				return shared.NewRouteResponseError(err.Error())
			}
			continue
		}
		if route.Status() == fleet.RouteStatusNeedShips {
			if err := route.Transition(fleet.RouteStatusHaveShips); err != nil {
				return err
			}
		}

		// Refetch both ends; stock and storage move under our feet
		origin, err := e.gateway.FetchCity(ctx, route.OriginCityID)
		if err != nil {
			if strikes = e.strike(route, strikes, err); strikes < 0 {
				return shared.NewRouteResponseError(err.Error())
			}
			continue
		}
		destination, err := e.gateway.FetchCity(ctx, route.DestinationCityID)
		if err != nil {
			if strikes = e.strike(route, strikes, err); strikes < 0 {
				return shared.NewRouteResponseError(err.Error())
			}
			continue
		}

		leg := computeLeg(route.Remaining, origin, destination, free, class)
		if leg.IsZero() {
			// Destination full. Sleep and retry; stock drains over time.
			e.logger.Printf("destination %s saturated, sleeping %s", route.DestinationCityID, e.cfg.FullStorageSleep)
			e.clock.Sleep(e.cfg.FullStorageSleep)
			if err := e.rewind(route); err != nil {
				return err
			}
			continue
		}

		ships := shipsNeeded(leg.Total(), class)
		if err := route.Transition(fleet.RouteStatusLockedReady); err != nil {
			return err
		}
		if err := route.Transition(fleet.RouteStatusSending); err != nil {
			return err
		}

		if err := e.gateway.Dispatch(ctx, route, leg, ships); err != nil {
			if errors.Is(err, ErrShipsBusy) {
				// Someone grabbed the fleet between check and send
				if err := e.sleepForFleet(ctx, &waited); err != nil {
					return err
				}
				if err := e.rewind(route); err != nil {
					return err
				}
				continue
			}
			if strikes = e.strike(route, strikes, err); strikes < 0 {
				return shared.NewRouteResponseError(err.Error())
			}
			continue
		}

		if err := route.Transition(fleet.RouteStatusVerifying); err != nil {
			return err
		}
		consumed, err := e.verifyConsumption(ctx, class, free, ships)
		if err != nil {
			if strikes = e.strike(route, strikes, err); strikes < 0 {
				return shared.NewRouteResponseError(err.Error())
			}
			continue
		}

		strikes = 0
		route.Deliver(leg)
		result.Dispatches = append(result.Dispatches, DispatchRecord{
			Route:         route,
			Cargo:         leg,
			ShipsExpected: ships,
			ShipsConsumed: consumed,
			SentAt:        e.clock.Now(),
		})
		e.logger.Printf("leg sent: %s with %d ships, remaining %s", leg, ships, route.Remaining)

		if route.Done() {
			return route.Transition(fleet.RouteStatusDelivered)
		}
		if err := e.rewind(route); err != nil {
			return err
		}
	}
	return nil
}

// waitForShips blocks until at least one ship of the class is idle, charging
// the route's cumulative wait budget
func (e *Engine) waitForShips(ctx context.Context, class fleet.ShipClass, waited *time.Duration) (int, error) {
	for {
		free, err := e.gateway.FreeShips(ctx, class)
		if err != nil {
			return 0, err
		}
		if free > 0 {
			return free, nil
		}
		if err := e.sleepForFleet(ctx, waited); err != nil {
			return 0, err
		}
	}
}

// sleepForFleet sleeps for the nearest returning fleet's ETA plus jitter,
// failing once the cumulative budget is spent
func (e *Engine) sleepForFleet(ctx context.Context, waited *time.Duration) error {
	if *waited >= e.cfg.WaitBudget {
		return shared.NewWaitBudgetExceededError(e.cfg.WaitBudget)
	}

	eta, err := e.gateway.FleetReturnETA(ctx)
	if err != nil || eta <= 0 {
		eta = 5 * time.Minute
	}
	sleep := eta + e.jitter(e.cfg.WaitJitterMax)
	if remaining := e.cfg.WaitBudget - *waited; sleep > remaining {
		sleep = remaining
	}

	e.logger.Printf("no free ships, sleeping %s (%s of %s budget used)", sleep, *waited, e.cfg.WaitBudget)
	e.clock.Sleep(sleep)
	*waited += sleep
	return nil
}

// verifyConsumption compares the fleet-free count before and after a dispatch
func (e *Engine) verifyConsumption(ctx context.Context, class fleet.ShipClass, freeBefore, expected int) (int, error) {
	freeAfter, err := e.gateway.FreeShips(ctx, class)
	if err != nil {
		return 0, err
	}
	consumed := freeBefore - freeAfter
	if consumed != expected {
		return consumed, fmt.Errorf("dispatch consumed %d ships, expected %d", consumed, expected)
	}
	return consumed, nil
}

// strike charges one unexpected response against the route's budget; returns
// -1 once the budget is spent
func (e *Engine) strike(route *fleet.Route, strikes int, err error) int {
	strikes++
	e.logger.Printf("route %s strike %d/%d: %v", route.OriginCityID, strikes, e.cfg.StrikeLimit, err)
	if strikes >= e.cfg.StrikeLimit {
		return -1
	}
	if rewindErr := e.rewind(route); rewindErr != nil {
		return -1
	}
	e.clock.Sleep(5 * time.Second)
	return strikes
}

// rewind returns a mid-flight route to NEED_SHIPS for the next leg
func (e *Engine) rewind(route *fleet.Route) error {
	if route.Status() == fleet.RouteStatusNeedShips {
		return nil
	}
	return route.Transition(fleet.RouteStatusNeedShips)
}

// computeLeg is the slot-wise minimum of remaining cargo, origin stock, fleet
// capacity, and (for owned destinations) free storage
func computeLeg(remaining shared.Cargo, origin, destination *fleet.City, freeShips int, class fleet.ShipClass) shared.Cargo {
	leg := remaining.Min(origin.Resources)
	if destination.Owned {
		leg = leg.Min(destination.FreeStorage())
	}

	// Clamp the total to what the idle fleet can lift, draining slots from
	// the end so the canonical order decides what gets cut
	capacity := int64(freeShips) * class.Capacity()
	excess := leg.Total() - capacity
	for i := len(leg) - 1; i >= 0 && excess > 0; i-- {
		cut := leg[i]
		if cut > excess {
			cut = excess
		}
		leg[i] -= cut
		excess -= cut
	}
	return leg
}

// shipsNeeded is ceil(total / capacity)
func shipsNeeded(total int64, class fleet.ShipClass) int {
	capacity := class.Capacity()
	if total <= 0 || capacity <= 0 {
		return 0
	}
	return int((total + capacity - 1) / capacity)
}
