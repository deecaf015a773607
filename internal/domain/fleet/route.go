package fleet

import (
	"fmt"
	"time"

	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

// RouteStatus is the per-route execution state. Transitions are event-driven
// by the polled game state:
//
//	NEED_SHIPS → HAVE_SHIPS → LOCKED_READY → SENDING → VERIFYING → DELIVERED
//
// Any state may move to ABORTED when a budget is exhausted.
type RouteStatus string

const (
	RouteStatusNeedShips   RouteStatus = "NEED_SHIPS"
	RouteStatusHaveShips   RouteStatus = "HAVE_SHIPS"
	RouteStatusLockedReady RouteStatus = "LOCKED_READY"
	RouteStatusSending     RouteStatus = "SENDING"
	RouteStatusVerifying   RouteStatus = "VERIFYING"
	RouteStatusDelivered   RouteStatus = "DELIVERED"
	RouteStatusAborted     RouteStatus = "ABORTED"
)

var routeTransitions = map[RouteStatus][]RouteStatus{
	RouteStatusNeedShips:   {RouteStatusHaveShips, RouteStatusAborted},
	RouteStatusHaveShips:   {RouteStatusLockedReady, RouteStatusNeedShips, RouteStatusAborted},
	RouteStatusLockedReady: {RouteStatusSending, RouteStatusNeedShips, RouteStatusAborted},
	RouteStatusSending:     {RouteStatusVerifying, RouteStatusNeedShips, RouteStatusAborted},
	RouteStatusVerifying:   {RouteStatusDelivered, RouteStatusNeedShips, RouteStatusAborted},
}

// Route is one origin→destination shipment with a remaining cargo vector.
// Routes are ephemeral: built per transport cycle, never persisted.
type Route struct {
	OriginCityID      string
	DestinationCityID string
	DestinationIsland string

	// Cargo still to be delivered; decremented per dispatched leg
	Remaining shared.Cargo

	// Planned is the original request, kept for conservation accounting
	Planned shared.Cargo

	// Dropped accumulates cargo given up on (saturated destination,
	// exhausted wait budget)
	Dropped shared.Cargo

	status    RouteStatus
	updatedAt time.Time
	lastError error
	clock     shared.Clock
}

// NewRoute creates a route in NEED_SHIPS state
func NewRoute(origin, destination, island string, cargo shared.Cargo, clock shared.Clock) (*Route, error) {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if err := cargo.Validate(); err != nil {
		return nil, err
	}
	if origin == destination {
		return nil, shared.NewValidationError("destination", "origin and destination must differ")
	}
	return &Route{
		OriginCityID:      origin,
		DestinationCityID: destination,
		DestinationIsland: island,
		Remaining:         cargo,
		Planned:           cargo,
		status:            RouteStatusNeedShips,
		updatedAt:         clock.Now(),
		clock:             clock,
	}, nil
}

// Status returns the current route state
func (r *Route) Status() RouteStatus { return r.status }

// UpdatedAt returns when the route last changed state
func (r *Route) UpdatedAt() time.Time { return r.updatedAt }

// LastError returns the error recorded on abort, if any
func (r *Route) LastError() error { return r.lastError }

// Transition moves the route to the target state, rejecting invalid paths
func (r *Route) Transition(to RouteStatus) error {
	for _, allowed := range routeTransitions[r.status] {
		if allowed == to {
			r.status = to
			r.updatedAt = r.clock.Now()
			return nil
		}
	}
	return fmt.Errorf("invalid route transition %s → %s", r.status, to)
}

// Abort marks the route aborted with the causing error
func (r *Route) Abort(err error) {
	r.status = RouteStatusAborted
	r.lastError = err
	r.updatedAt = r.clock.Now()
}

// Deliver subtracts a successfully dispatched leg from the remaining vector
func (r *Route) Deliver(leg shared.Cargo) {
	r.Remaining = r.Remaining.Sub(leg)
	r.updatedAt = r.clock.Now()
}

// Drop gives up on the remaining cargo, recording it for accounting
func (r *Route) Drop() {
	r.Dropped = r.Dropped.Add(r.Remaining)
	r.Remaining = shared.Cargo{}
	r.updatedAt = r.clock.Now()
}

// Done reports whether nothing remains to send
func (r *Route) Done() bool { return r.Remaining.IsZero() }

// Delivered returns the cargo actually shipped so far
func (r *Route) Delivered() shared.Cargo {
	return r.Planned.Sub(r.Remaining).Sub(r.Dropped)
}

// String provides a human-readable representation
func (r *Route) String() string {
	return fmt.Sprintf("Route[%s → %s, status=%s, remaining=%s]",
		r.OriginCityID, r.DestinationCityID, r.status, r.Remaining)
}
