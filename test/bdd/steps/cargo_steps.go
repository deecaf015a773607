package steps

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"

	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

type cargoContext struct {
	first  shared.Cargo
	second shared.Cargo
	result shared.Cargo
}

func (cc *cargoContext) reset() {
	cc.first = shared.Cargo{}
	cc.second = shared.Cargo{}
	cc.result = shared.Cargo{}
}

var resourceIndex = map[string]shared.Resource{
	"wood":    shared.ResourceWood,
	"wine":    shared.ResourceWine,
	"marble":  shared.ResourceMarble,
	"crystal": shared.ResourceCrystal,
	"sulfur":  shared.ResourceSulfur,
}

// parseCargoPhrase turns "600 wood, 200 wine and 50 sulfur" into a vector
func parseCargoPhrase(phrase string) (shared.Cargo, error) {
	var cargo shared.Cargo
	phrase = strings.ReplaceAll(phrase, " and ", ", ")
	for _, part := range strings.Split(phrase, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Fields(part)
		if len(fields) != 2 {
			return cargo, fmt.Errorf("cannot parse cargo part %q", part)
		}
		amount, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return cargo, fmt.Errorf("cannot parse amount in %q: %w", part, err)
		}
		resource, ok := resourceIndex[fields[1]]
		if !ok {
			return cargo, fmt.Errorf("unknown resource %q", fields[1])
		}
		cargo[resource] = amount
	}
	return cargo, nil
}

func (cc *cargoContext) aCargoOf(phrase string) error {
	cargo, err := parseCargoPhrase(phrase)
	if err != nil {
		return err
	}
	cc.first = cargo
	cc.result = cargo
	return nil
}

func (cc *cargoContext) anotherCargoOf(phrase string) error {
	cargo, err := parseCargoPhrase(phrase)
	if err != nil {
		return err
	}
	cc.second = cargo
	return nil
}

func (cc *cargoContext) theCargosAreAdded() error {
	cc.result = cc.first.Add(cc.second)
	return nil
}

func (cc *cargoContext) theSecondIsSubtracted() error {
	cc.result = cc.first.Sub(cc.second)
	return nil
}

func (cc *cargoContext) theMinimumIsTaken() error {
	cc.result = cc.first.Min(cc.second)
	return nil
}

func (cc *cargoContext) theResultShouldHold(phrase string) error {
	expected, err := parseCargoPhrase(phrase)
	if err != nil {
		return err
	}
	if cc.result != expected {
		return fmt.Errorf("expected %s, got %s", expected, cc.result)
	}
	return nil
}

func (cc *cargoContext) theTotalShouldBe(total int64) error {
	if cc.result.Total() != total {
		return fmt.Errorf("expected total %d, got %d", total, cc.result.Total())
	}
	return nil
}

func (cc *cargoContext) theCargoShouldBeEmpty() error {
	if !cc.result.IsZero() {
		return fmt.Errorf("expected empty cargo, got %s", cc.result)
	}
	return nil
}

// InitializeCargoScenario registers cargo arithmetic steps
func InitializeCargoScenario(sc *godog.ScenarioContext) {
	cc := &cargoContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		cc.reset()
		return ctx, nil
	})

	sc.Step(`^a cargo of (.+)$`, cc.aCargoOf)
	sc.Step(`^another cargo of (.+)$`, cc.anotherCargoOf)
	sc.Step(`^the cargos are added$`, cc.theCargosAreAdded)
	sc.Step(`^the second cargo is subtracted from the first$`, cc.theSecondIsSubtracted)
	sc.Step(`^the slot-wise minimum is taken$`, cc.theMinimumIsTaken)
	sc.Step(`^the result should hold (.+)$`, cc.theResultShouldHold)
	sc.Step(`^the total should be (\d+)$`, cc.theTotalShouldBe)
	sc.Step(`^the cargo should be empty$`, cc.theCargoShouldBeEmpty)
}
