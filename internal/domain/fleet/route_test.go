package fleet

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

func testCargo() shared.Cargo {
	return shared.Cargo{500, 0, 250, 0, 0}
}

func TestNewRoute_Validation(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})

	_, err := NewRoute("1", "1", "9", testCargo(), clock)
	assert.Error(t, err, "origin and destination must differ")

	route, err := NewRoute("1", "2", "9", testCargo(), clock)
	require.NoError(t, err)
	assert.Equal(t, RouteStatusNeedShips, route.Status())
	assert.Equal(t, testCargo(), route.Remaining)
	assert.Equal(t, testCargo(), route.Planned)
}

func TestRoute_HappyPathTransitions(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	route, err := NewRoute("1", "2", "9", testCargo(), clock)
	require.NoError(t, err)

	for _, next := range []RouteStatus{
		RouteStatusHaveShips,
		RouteStatusLockedReady,
		RouteStatusSending,
		RouteStatusVerifying,
		RouteStatusDelivered,
	} {
		require.NoError(t, route.Transition(next))
	}
	assert.Equal(t, RouteStatusDelivered, route.Status())
}

func TestRoute_RejectsInvalidTransition(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	route, err := NewRoute("1", "2", "9", testCargo(), clock)
	require.NoError(t, err)

	err = route.Transition(RouteStatusSending)
	assert.Error(t, err, "cannot send before having ships")
}

func TestRoute_RewindToNeedShips(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	route, err := NewRoute("1", "2", "9", testCargo(), clock)
	require.NoError(t, err)

	require.NoError(t, route.Transition(RouteStatusHaveShips))
	require.NoError(t, route.Transition(RouteStatusLockedReady))
	require.NoError(t, route.Transition(RouteStatusNeedShips),
		"a mid-flight route can return to waiting for ships")
}

func TestRoute_DeliverAndDropConservation(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	route, err := NewRoute("1", "2", "9", testCargo(), clock)
	require.NoError(t, err)

	leg := shared.Cargo{300, 0, 0, 0, 0}
	route.Deliver(leg)
	assert.Equal(t, shared.Cargo{200, 0, 250, 0, 0}, route.Remaining)
	assert.False(t, route.Done())

	route.Drop()
	assert.True(t, route.Done())
	assert.Equal(t, shared.Cargo{200, 0, 250, 0, 0}, route.Dropped)

	// delivered + dropped == planned, always
	total := route.Delivered().Add(route.Dropped)
	assert.Equal(t, route.Planned, total)
}

func TestRoute_Abort(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	route, err := NewRoute("1", "2", "9", testCargo(), clock)
	require.NoError(t, err)

	cause := errors.New("budget exhausted")
	route.Abort(cause)

	assert.Equal(t, RouteStatusAborted, route.Status())
	assert.Equal(t, cause, route.LastError())
}

func TestShipClass(t *testing.T) {
	assert.EqualValues(t, 250, ShipClassFast.Capacity())
	assert.EqualValues(t, 500, ShipClassHeavy.Capacity())
	assert.True(t, ShipClassFast.Valid())
	assert.False(t, ShipClass("ROWBOAT").Valid())

	class, err := ParseShipClass("heavy")
	require.NoError(t, err)
	assert.Equal(t, ShipClassHeavy, class)
	_, err = ParseShipClass("rowboat")
	assert.Error(t, err)
}

func TestCity_FreeStorage(t *testing.T) {
	city := &City{
		Owned:           true,
		Resources:       shared.Cargo{900, 100, 0, 0, 0},
		StorageCapacity: shared.Cargo{1000, 1000, 1000, 1000, 1000},
	}
	assert.Equal(t, shared.Cargo{100, 900, 1000, 1000, 1000}, city.FreeStorage())

	// Overfull slots clamp at zero
	city.Resources[0] = 1200
	assert.EqualValues(t, 0, city.FreeStorage()[0])
}
