// Package parsers owns the game payload schemas: regex extraction of city
// state, fleet counts, and fleet movement timings from the HTML/JSON hybrids
// the game serves. The session owns the transport contract; this package owns
// what the bytes mean.
package parsers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/andrescamacho/polisbot/internal/domain/fleet"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

var (
	// The city view embeds a JS model; resource slots follow the canonical
	// order with wood under the legacy "resource" key
	currentResourcesRe = regexp.MustCompile(`"currentResources":\s*\{"resource":(\d+),"1":(\d+),"2":(\d+),"3":(\d+),"4":(\d+)`)
	maxResourcesRe     = regexp.MustCompile(`"maxResources":\s*\{"resource":(\d+),"1":(\d+),"2":(\d+),"3":(\d+),"4":(\d+)`)
	cityNameRe         = regexp.MustCompile(`"cityName":\s*"([^"]*)"`)
	islandIDRe         = regexp.MustCompile(`"islandId":\s*"?(\d+)`)
	ownCityRe          = regexp.MustCompile(`"isOwnCity":\s*(true|false)`)

	freeTransportersRe = regexp.MustCompile(`"freeTransporters":\s*(\d+)`)
	freeFreightersRe   = regexp.MustCompile(`"freeFreighters":\s*(\d+)`)

	// Military advisor movement rows carry absolute arrival epochs
	eventTimeRe = regexp.MustCompile(`"eventTime":\s*(\d+)`)
)

const shipsBusyMarker = "TRANSPORTERS_BUSY"

// ParseCity extracts the transport-relevant slice of a city view. A page with
// no resource model is a parse failure, not an empty city.
func ParseCity(cityID, html string) (*fleet.City, error) {
	current := currentResourcesRe.FindStringSubmatch(html)
	if current == nil {
		return nil, fmt.Errorf("city %s: no resource model in page", cityID)
	}

	city := &fleet.City{ID: cityID}
	for i := 0; i < shared.ResourceCount; i++ {
		v, err := strconv.ParseInt(current[i+1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("city %s: bad resource value %q", cityID, current[i+1])
		}
		city.Resources[i] = v
	}

	if name := cityNameRe.FindStringSubmatch(html); name != nil {
		city.Name = name[1]
	}
	if island := islandIDRe.FindStringSubmatch(html); island != nil {
		city.IslandID = island[1]
	}
	if owned := ownCityRe.FindStringSubmatch(html); owned != nil {
		city.Owned = owned[1] == "true"
	}

	// The storage model only appears on own cities
	if max := maxResourcesRe.FindStringSubmatch(html); max != nil {
		city.Owned = true
		for i := 0; i < shared.ResourceCount; i++ {
			v, err := strconv.ParseInt(max[i+1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("city %s: bad storage value %q", cityID, max[i+1])
			}
			city.StorageCapacity[i] = v
		}
	}

	return city, nil
}

// ParseFreeShips counts idle ships of the class from the global data blob
func ParseFreeShips(html string, class fleet.ShipClass) (int, error) {
	var re *regexp.Regexp
	switch class {
	case fleet.ShipClassFast:
		re = freeTransportersRe
	case fleet.ShipClassHeavy:
		re = freeFreightersRe
	default:
		return 0, fmt.Errorf("unknown ship class %q", class)
	}

	match := re.FindStringSubmatch(html)
	if match == nil {
		return 0, fmt.Errorf("no free-ship count for class %s in page", class)
	}
	return strconv.Atoi(match[1])
}

// ParseFleetETA returns the time until the nearest fleet arrival listed in
// the military advisor page. No movements is an error; callers fall back to a
// fixed poll interval.
func ParseFleetETA(html string, now time.Time) (time.Duration, error) {
	matches := eventTimeRe.FindAllStringSubmatch(html, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("no fleet movements in page")
	}

	var nearest time.Duration
	found := false
	for _, m := range matches {
		epoch, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		eta := time.Unix(epoch, 0).Sub(now)
		if eta <= 0 {
			continue
		}
		if !found || eta < nearest {
			nearest = eta
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("no future fleet arrivals in page")
	}
	return nearest, nil
}

// IsShipsBusy recognizes the game's fleet-taken rejection
func IsShipsBusy(body string) bool {
	return strings.Contains(body, shipsBusyMarker)
}
