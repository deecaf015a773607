package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/polisbot/internal/domain/fleet"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/config"
)

type dispatchCall struct {
	OriginCityID      string
	DestinationCityID string
	Cargo             shared.Cargo
	Ships             int
}

// fakeGateway simulates the game: dispatches consume ships and move cargo
// between the in-memory cities.
type fakeGateway struct {
	cities    map[string]*fleet.City
	free      int
	fleetSize int
	eta       time.Duration

	busyNext          int // next N dispatches report a busy fleet
	failDispatchNext  int // next N dispatches fail outright
	failFetchNext     int // next N city fetches fail
	failFreeShipsNext int // next N free-ship polls fail
	consumeExtra      int // ships consumed beyond the expected count

	dispatches []dispatchCall
	fetchCount map[string]int
	afterFetch func(cityID string, count int)
}

func (g *fakeGateway) FetchCity(_ context.Context, cityID string) (*fleet.City, error) {
	if g.failFetchNext > 0 {
		g.failFetchNext--
		return nil, errors.New("unexpected response body")
	}
	city, ok := g.cities[cityID]
	if !ok {
		return nil, fmt.Errorf("no such city %s", cityID)
	}
	if g.fetchCount == nil {
		g.fetchCount = map[string]int{}
	}
	g.fetchCount[cityID]++
	if g.afterFetch != nil {
		g.afterFetch(cityID, g.fetchCount[cityID])
	}
	snapshot := *city
	return &snapshot, nil
}

func (g *fakeGateway) FreeShips(context.Context, fleet.ShipClass) (int, error) {
	if g.failFreeShipsNext > 0 {
		g.failFreeShipsNext--
		return 0, errors.New("unexpected response body")
	}
	return g.free, nil
}

// FleetReturnETA doubles as the fleet coming home: by the time the caller has
// slept out the ETA, the ships are idle again.
func (g *fakeGateway) FleetReturnETA(context.Context) (time.Duration, error) {
	g.free = g.fleetSize
	return g.eta, nil
}

func (g *fakeGateway) Dispatch(_ context.Context, route *fleet.Route, cargo shared.Cargo, ships int) error {
	if g.busyNext > 0 {
		g.busyNext--
		return ErrShipsBusy
	}
	if g.failDispatchNext > 0 {
		g.failDispatchNext--
		return errors.New("dispatch rejected")
	}
	g.dispatches = append(g.dispatches, dispatchCall{
		OriginCityID:      route.OriginCityID,
		DestinationCityID: route.DestinationCityID,
		Cargo:             cargo,
		Ships:             ships,
	})
	g.free -= ships + g.consumeExtra
	g.cities[route.OriginCityID].Resources = g.cities[route.OriginCityID].Resources.Sub(cargo)
	g.cities[route.DestinationCityID].Resources = g.cities[route.DestinationCityID].Resources.Add(cargo)
	return nil
}

type fakeLocker struct {
	acquireErr error
	acquires   int
	releases   int
}

func (l *fakeLocker) Acquire(time.Duration) error {
	l.acquires++
	return l.acquireErr
}

func (l *fakeLocker) Release() error {
	l.releases++
	return nil
}

func testTransportConfig() config.TransportConfig {
	return config.TransportConfig{
		LockTimeout:      time.Minute,
		LockRetries:      3,
		LockRetrySleep:   time.Second,
		WaitBudget:       2 * time.Hour,
		WaitJitterMax:    time.Minute,
		FullStorageSleep: time.Hour,
		StrikeLimit:      20,
	}
}

func testCities(originStock shared.Cargo) map[string]*fleet.City {
	return map[string]*fleet.City{
		"101": {
			ID:              "101",
			Owned:           true,
			Resources:       originStock,
			StorageCapacity: shared.Cargo{10000, 10000, 10000, 10000, 10000},
		},
		"202": {
			ID:              "202",
			IslandID:        "9",
			Owned:           true,
			StorageCapacity: shared.Cargo{10000, 10000, 10000, 10000, 10000},
		},
	}
}

func newTestEngine(cfg config.TransportConfig, gw *fakeGateway, lock *fakeLocker) (*Engine, *shared.MockClock) {
	clock := shared.NewMockClock(time.Time{})
	e := NewEngine(cfg, gw, lock, clock)
	e.jitter = func(time.Duration) time.Duration { return 0 }
	return e, clock
}

func newTestRoute(t *testing.T, cargo shared.Cargo, clock shared.Clock) *fleet.Route {
	t.Helper()
	route, err := fleet.NewRoute("101", "202", "9", cargo, clock)
	require.NoError(t, err)
	return route
}

func TestEngine_SingleLegDelivery(t *testing.T) {
	gw := &fakeGateway{
		cities:    testCities(shared.Cargo{1000, 0, 0, 0, 0}),
		free:      4,
		fleetSize: 4,
	}
	lock := &fakeLocker{}
	engine, clock := newTestEngine(testTransportConfig(), gw, lock)
	route := newTestRoute(t, shared.Cargo{800, 0, 0, 0, 0}, clock)

	result, err := engine.Execute(context.Background(), &Plan{Routes: []*fleet.Route{route}, Class: fleet.ShipClassFast})
	require.NoError(t, err)

	require.Len(t, gw.dispatches, 1)
	assert.Equal(t, shared.Cargo{800, 0, 0, 0, 0}, gw.dispatches[0].Cargo)
	assert.Equal(t, 4, gw.dispatches[0].Ships, "ceil(800/250)")
	assert.Equal(t, fleet.RouteStatusDelivered, route.Status())
	assert.Equal(t, shared.Cargo{800, 0, 0, 0, 0}, result.Delivered)
	assert.True(t, result.Dropped.IsZero())
	assert.Empty(t, result.Aborted)
	assert.Equal(t, 1, lock.acquires)
	assert.Equal(t, 1, lock.releases)
}

func TestEngine_CapacityClampSplitsLegs(t *testing.T) {
	gw := &fakeGateway{
		cities:    testCities(shared.Cargo{1000, 0, 0, 0, 0}),
		free:      2,
		fleetSize: 2,
	}
	lock := &fakeLocker{}
	engine, clock := newTestEngine(testTransportConfig(), gw, lock)
	route := newTestRoute(t, shared.Cargo{800, 0, 0, 0, 0}, clock)

	result, err := engine.Execute(context.Background(), &Plan{Routes: []*fleet.Route{route}, Class: fleet.ShipClassFast})
	require.NoError(t, err)

	require.Len(t, gw.dispatches, 2)
	assert.Equal(t, shared.Cargo{500, 0, 0, 0, 0}, gw.dispatches[0].Cargo, "two fast ships lift 500")
	assert.Equal(t, shared.Cargo{300, 0, 0, 0, 0}, gw.dispatches[1].Cargo)
	assert.Equal(t, result.Delivered.Add(result.Dropped), route.Planned, "delivered plus dropped equals planned")
	assert.Equal(t, shared.Cargo{800, 0, 0, 0, 0}, result.Delivered)
}

func TestEngine_CapacityClampCutsFromTheEnd(t *testing.T) {
	origin := &fleet.City{ID: "101", Owned: true,
		Resources:       shared.Cargo{400, 0, 0, 0, 400},
		StorageCapacity: shared.Cargo{10000, 10000, 10000, 10000, 10000}}
	destination := &fleet.City{ID: "202", Owned: true,
		StorageCapacity: shared.Cargo{10000, 10000, 10000, 10000, 10000}}

	leg := computeLeg(shared.Cargo{400, 0, 0, 0, 400}, origin, destination, 2, fleet.ShipClassFast)
	assert.Equal(t, shared.Cargo{400, 0, 0, 0, 100}, leg, "excess is cut from the last slots first")
}

func TestEngine_StorageClampOnOwnedDestination(t *testing.T) {
	gw := &fakeGateway{
		cities:    testCities(shared.Cargo{1000, 1000, 0, 0, 0}),
		free:      8,
		fleetSize: 8,
	}
	// Destination warehouse has room for only 200 wood
	gw.cities["202"].Resources = shared.Cargo{9800, 0, 0, 0, 0}
	// Once stock has been consumed locally, more room opens up
	gw.afterFetch = func(cityID string, count int) {
		if cityID == "202" && count == 3 {
			gw.cities["202"].Resources[0] = 0
		}
	}
	lock := &fakeLocker{}
	cfg := testTransportConfig()
	engine, clock := newTestEngine(cfg, gw, lock)
	route := newTestRoute(t, shared.Cargo{500, 100, 0, 0, 0}, clock)

	start := clock.Now()
	result, err := engine.Execute(context.Background(), &Plan{Routes: []*fleet.Route{route}, Class: fleet.ShipClassFast})
	require.NoError(t, err)

	require.Len(t, gw.dispatches, 2)
	assert.Equal(t, shared.Cargo{200, 100, 0, 0, 0}, gw.dispatches[0].Cargo, "first leg clamped to free storage")
	assert.Equal(t, shared.Cargo{300, 0, 0, 0, 0}, gw.dispatches[1].Cargo)
	assert.Equal(t, shared.Cargo{500, 100, 0, 0, 0}, result.Delivered)
	assert.GreaterOrEqual(t, clock.Now().Sub(start), cfg.FullStorageSleep,
		"saturated destination triggers the full-storage sleep")
}

func TestEngine_ShipsBusyRetriesWithoutStrike(t *testing.T) {
	gw := &fakeGateway{
		cities:    testCities(shared.Cargo{1000, 0, 0, 0, 0}),
		free:      4,
		fleetSize: 4,
		eta:       10 * time.Minute,
		busyNext:  1,
	}
	lock := &fakeLocker{}
	engine, clock := newTestEngine(testTransportConfig(), gw, lock)
	route := newTestRoute(t, shared.Cargo{500, 0, 0, 0, 0}, clock)

	start := clock.Now()
	result, err := engine.Execute(context.Background(), &Plan{Routes: []*fleet.Route{route}, Class: fleet.ShipClassFast})
	require.NoError(t, err)

	require.Len(t, gw.dispatches, 1, "the busy rejection is retried after waiting for the fleet")
	assert.Equal(t, fleet.RouteStatusDelivered, route.Status())
	assert.Empty(t, result.Aborted)
	assert.GreaterOrEqual(t, clock.Now().Sub(start), 10*time.Minute, "slept out the fleet ETA")
}

func TestEngine_StrikeLimitAbortsRoute(t *testing.T) {
	gw := &fakeGateway{
		cities:           testCities(shared.Cargo{1000, 0, 0, 0, 0}),
		free:             4,
		fleetSize:        4,
		failDispatchNext: 100,
	}
	lock := &fakeLocker{}
	cfg := testTransportConfig()
	cfg.StrikeLimit = 3
	engine, clock := newTestEngine(cfg, gw, lock)
	route := newTestRoute(t, shared.Cargo{500, 0, 0, 0, 0}, clock)

	result, err := engine.Execute(context.Background(), &Plan{Routes: []*fleet.Route{route}, Class: fleet.ShipClassFast})
	require.NoError(t, err, "a dead route aborts without failing the batch")

	require.Len(t, result.Aborted, 1)
	assert.Equal(t, fleet.RouteStatusAborted, route.Status())
	var respErr *shared.RouteResponseError
	assert.ErrorAs(t, route.LastError(), &respErr)
	assert.Equal(t, shared.Cargo{500, 0, 0, 0, 0}, result.Dropped, "undelivered cargo is accounted as dropped")
	assert.True(t, result.Delivered.IsZero())
	assert.Equal(t, 1, lock.releases, "the lock is released even when every route aborts")
}

func TestEngine_ConsumptionMismatchIsAFailure(t *testing.T) {
	gw := &fakeGateway{
		cities:       testCities(shared.Cargo{1000, 0, 0, 0, 0}),
		free:         6,
		fleetSize:    6,
		consumeExtra: 1,
	}
	lock := &fakeLocker{}
	cfg := testTransportConfig()
	cfg.StrikeLimit = 1
	engine, clock := newTestEngine(cfg, gw, lock)
	route := newTestRoute(t, shared.Cargo{500, 0, 0, 0, 0}, clock)

	result, err := engine.Execute(context.Background(), &Plan{Routes: []*fleet.Route{route}, Class: fleet.ShipClassFast})
	require.NoError(t, err)

	require.Len(t, result.Aborted, 1)
	var respErr *shared.RouteResponseError
	assert.ErrorAs(t, route.LastError(), &respErr)
	assert.Empty(t, result.Dispatches, "a leg with mismatched consumption is not recorded as delivered")
}

func TestEngine_FreeShipPollFailuresAreStrikes(t *testing.T) {
	gw := &fakeGateway{
		cities:            testCities(shared.Cargo{1000, 0, 0, 0, 0}),
		free:              4,
		fleetSize:         4,
		failFreeShipsNext: 2,
	}
	lock := &fakeLocker{}
	engine, clock := newTestEngine(testTransportConfig(), gw, lock)
	route := newTestRoute(t, shared.Cargo{500, 0, 0, 0, 0}, clock)

	result, err := engine.Execute(context.Background(), &Plan{Routes: []*fleet.Route{route}, Class: fleet.ShipClassFast})
	require.NoError(t, err)

	assert.Empty(t, result.Aborted, "transient poll failures are retried, not fatal")
	assert.Equal(t, fleet.RouteStatusDelivered, route.Status())
	assert.Equal(t, shared.Cargo{500, 0, 0, 0, 0}, result.Delivered)
}

func TestEngine_FreeShipPollFailuresExhaustStrikes(t *testing.T) {
	gw := &fakeGateway{
		cities:            testCities(shared.Cargo{1000, 0, 0, 0, 0}),
		free:              4,
		fleetSize:         4,
		failFreeShipsNext: 100,
	}
	lock := &fakeLocker{}
	cfg := testTransportConfig()
	cfg.StrikeLimit = 3
	engine, clock := newTestEngine(cfg, gw, lock)
	route := newTestRoute(t, shared.Cargo{500, 0, 0, 0, 0}, clock)

	result, err := engine.Execute(context.Background(), &Plan{Routes: []*fleet.Route{route}, Class: fleet.ShipClassFast})
	require.NoError(t, err)

	require.Len(t, result.Aborted, 1)
	var respErr *shared.RouteResponseError
	assert.ErrorAs(t, route.LastError(), &respErr)
}

func TestEngine_WaitBudgetExceeded(t *testing.T) {
	gw := &fakeGateway{
		cities: testCities(shared.Cargo{1000, 0, 0, 0, 0}),
		free:   0,
		eta:    5 * time.Minute,
	}
	lock := &fakeLocker{}
	cfg := testTransportConfig()
	cfg.WaitBudget = 10 * time.Minute
	engine, clock := newTestEngine(cfg, gw, lock)
	route := newTestRoute(t, shared.Cargo{500, 0, 0, 0, 0}, clock)

	start := clock.Now()
	result, err := engine.Execute(context.Background(), &Plan{Routes: []*fleet.Route{route}, Class: fleet.ShipClassFast})
	require.NoError(t, err)

	require.Len(t, result.Aborted, 1)
	var budgetErr *shared.WaitBudgetExceededError
	assert.ErrorAs(t, route.LastError(), &budgetErr)
	assert.Empty(t, gw.dispatches)
	assert.Equal(t, cfg.WaitBudget, clock.Now().Sub(start), "waits are capped at the remaining budget")
}

func TestEngine_LockRetryExhaustion(t *testing.T) {
	gw := &fakeGateway{cities: testCities(shared.Cargo{}), free: 1, fleetSize: 1}
	lock := &fakeLocker{acquireErr: errors.New("held by pid 4242")}
	cfg := testTransportConfig()
	engine, clock := newTestEngine(cfg, gw, lock)
	route := newTestRoute(t, shared.Cargo{100, 0, 0, 0, 0}, clock)

	_, err := engine.Execute(context.Background(), &Plan{Routes: []*fleet.Route{route}, Class: fleet.ShipClassFast})
	require.Error(t, err)
	assert.Equal(t, cfg.LockRetries, lock.acquires)
	assert.Zero(t, lock.releases, "a lock never acquired is never released")
}

func TestEngine_RejectsUnknownClass(t *testing.T) {
	engine, clock := newTestEngine(testTransportConfig(), &fakeGateway{}, &fakeLocker{})
	route := newTestRoute(t, shared.Cargo{100, 0, 0, 0, 0}, clock)

	_, err := engine.Execute(context.Background(), &Plan{Routes: []*fleet.Route{route}, Class: fleet.ShipClass("ROWBOAT")})
	assert.Error(t, err)
}

func TestEngine_CancelledContextStopsRoute(t *testing.T) {
	gw := &fakeGateway{cities: testCities(shared.Cargo{1000, 0, 0, 0, 0}), free: 4, fleetSize: 4}
	lock := &fakeLocker{}
	engine, clock := newTestEngine(testTransportConfig(), gw, lock)
	route := newTestRoute(t, shared.Cargo{500, 0, 0, 0, 0}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.Execute(ctx, &Plan{Routes: []*fleet.Route{route}, Class: fleet.ShipClassFast})
	require.NoError(t, err)
	require.Len(t, result.Aborted, 1)
	assert.ErrorIs(t, route.LastError(), context.Canceled)
	assert.Equal(t, 1, lock.releases)
}

func TestShipsNeeded(t *testing.T) {
	assert.Equal(t, 0, shipsNeeded(0, fleet.ShipClassFast))
	assert.Equal(t, 1, shipsNeeded(1, fleet.ShipClassFast))
	assert.Equal(t, 1, shipsNeeded(250, fleet.ShipClassFast))
	assert.Equal(t, 2, shipsNeeded(251, fleet.ShipClassFast))
	assert.Equal(t, 2, shipsNeeded(1000, fleet.ShipClassHeavy))
}

func TestComputeLeg_ForeignDestinationSkipsStorageClamp(t *testing.T) {
	origin := &fleet.City{ID: "101", Owned: true,
		Resources:       shared.Cargo{600, 0, 0, 0, 0},
		StorageCapacity: shared.Cargo{10000, 10000, 10000, 10000, 10000}}
	foreign := &fleet.City{ID: "303", Owned: false,
		Resources: shared.Cargo{99999, 0, 0, 0, 0}}

	leg := computeLeg(shared.Cargo{600, 0, 0, 0, 0}, origin, foreign, 4, fleet.ShipClassFast)
	assert.Equal(t, shared.Cargo{600, 0, 0, 0, 0}, leg)
}
