package parsers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/andrescamacho/polisbot/internal/adapters/game"
	"github.com/andrescamacho/polisbot/internal/application/transport"
	"github.com/andrescamacho/polisbot/internal/domain/fleet"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

const (
	cityViewEndpoint    = "view=city&cityId="
	globalDataEndpoint  = "view=updateGlobalData"
	militaryEndpoint    = "view=militaryAdvisor&activeTab=militaryMovements"
	transportOperation  = "action=transportOperations&function=loadTransportersWithFreight"
)

// Gateway binds the transport engine to the game: session for the wire,
// package-level parsers for the payloads.
type Gateway struct {
	session *game.Session
	clock   shared.Clock
}

// NewGateway wires a gateway over a logged-in session
func NewGateway(session *game.Session, clock shared.Clock) *Gateway {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Gateway{session: session, clock: clock}
}

// FetchCity fetches and parses one city view
func (g *Gateway) FetchCity(ctx context.Context, cityID string) (*fleet.City, error) {
	body, err := g.session.Get(ctx, cityViewEndpoint+url.QueryEscape(cityID), nil)
	if err != nil {
		return nil, err
	}
	return ParseCity(cityID, body)
}

// FreeShips counts idle ships of the class from the global data view
func (g *Gateway) FreeShips(ctx context.Context, class fleet.ShipClass) (int, error) {
	body, err := g.session.Get(ctx, globalDataEndpoint, nil)
	if err != nil {
		return 0, err
	}
	return ParseFreeShips(body, class)
}

// FleetReturnETA reads the military advisor for the nearest returning fleet
func (g *Gateway) FleetReturnETA(ctx context.Context) (time.Duration, error) {
	body, err := g.session.Get(ctx, militaryEndpoint, nil)
	if err != nil {
		return 0, err
	}
	return ParseFleetETA(body, g.clock.Now())
}

// Dispatch issues one transport leg via the game's transport action
func (g *Gateway) Dispatch(ctx context.Context, route *fleet.Route, cargo shared.Cargo, ships int) error {
	payload := url.Values{
		"actionRequest":  {game.TokenPlaceholder},
		"cityId":         {route.OriginCityID},
		"destinationCityId": {route.DestinationCityID},
		"islandId":       {route.DestinationIsland},
		"transporters":   {strconv.Itoa(ships)},
	}
	for i := 0; i < shared.ResourceCount; i++ {
		payload.Set(fmt.Sprintf("cargo_resource_%d", i), strconv.FormatInt(cargo[i], 10))
	}

	body, err := g.session.Post(ctx, transportOperation, payload, nil)
	if err != nil {
		return err
	}
	if IsShipsBusy(body) {
		return fmt.Errorf("%w: %s → %s", transport.ErrShipsBusy, route.OriginCityID, route.DestinationCityID)
	}
	return nil
}
