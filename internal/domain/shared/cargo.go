package shared

import "fmt"

// ResourceCount is the number of resource kinds a city produces.
const ResourceCount = 5

// Resource indexes the canonical resource order used by every cargo vector
// and by the game's transport payloads.
type Resource int

const (
	ResourceWood Resource = iota
	ResourceWine
	ResourceMarble
	ResourceCrystal
	ResourceSulfur
)

var resourceNames = [ResourceCount]string{"wood", "wine", "marble", "crystal", "sulfur"}

// String returns the lowercase resource name
func (r Resource) String() string {
	if r < 0 || int(r) >= ResourceCount {
		return fmt.Sprintf("resource(%d)", int(r))
	}
	return resourceNames[r]
}

// Cargo is a fixed-length non-negative vector indexed by Resource.
type Cargo [ResourceCount]int64

// Total returns the summed units across all resource slots
func (c Cargo) Total() int64 {
	var total int64
	for _, v := range c {
		total += v
	}
	return total
}

// IsZero reports whether every slot is empty
func (c Cargo) IsZero() bool {
	return c.Total() == 0
}

// Add returns the slot-wise sum of two cargo vectors
func (c Cargo) Add(other Cargo) Cargo {
	var out Cargo
	for i := range c {
		out[i] = c[i] + other[i]
	}
	return out
}

// Sub returns the slot-wise difference, clamped at zero
func (c Cargo) Sub(other Cargo) Cargo {
	var out Cargo
	for i := range c {
		out[i] = c[i] - other[i]
		if out[i] < 0 {
			out[i] = 0
		}
	}
	return out
}

// Min returns the slot-wise minimum of two cargo vectors
func (c Cargo) Min(other Cargo) Cargo {
	var out Cargo
	for i := range c {
		out[i] = c[i]
		if other[i] < out[i] {
			out[i] = other[i]
		}
	}
	return out
}

// Validate rejects vectors with negative slots
func (c Cargo) Validate() error {
	for i, v := range c {
		if v < 0 {
			return NewValidationError(Resource(i).String(), "cargo amount must be non-negative")
		}
	}
	return nil
}

// String renders the non-empty slots, e.g. "wood=500 wine=200"
func (c Cargo) String() string {
	out := ""
	for i, v := range c {
		if v == 0 {
			continue
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", Resource(i), v)
	}
	if out == "" {
		return "empty"
	}
	return out
}
