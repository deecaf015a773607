package fleet

import "fmt"

// ShipClass is one of the two transport ship classes. Each class is counted
// and locked separately.
type ShipClass string

const (
	ShipClassFast  ShipClass = "FAST"
	ShipClassHeavy ShipClass = "HEAVY"
)

// Capacity returns the cargo units one ship of this class carries per trip
func (c ShipClass) Capacity() int64 {
	switch c {
	case ShipClassFast:
		return 250
	case ShipClassHeavy:
		return 500
	default:
		return 0
	}
}

// Key renders a filesystem-safe lowercase identifier for lock file names
func (c ShipClass) Key() string {
	switch c {
	case ShipClassFast:
		return "fast"
	case ShipClassHeavy:
		return "heavy"
	default:
		return "unknown"
	}
}

// Valid reports whether the class is one of the two known classes
func (c ShipClass) Valid() bool {
	return c == ShipClassFast || c == ShipClassHeavy
}

// ParseShipClass accepts "fast"/"heavy" in any case
func ParseShipClass(s string) (ShipClass, error) {
	switch s {
	case "fast", "FAST":
		return ShipClassFast, nil
	case "heavy", "HEAVY":
		return ShipClassHeavy, nil
	default:
		return "", fmt.Errorf("unknown ship class %q", s)
	}
}
