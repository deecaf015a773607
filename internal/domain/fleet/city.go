package fleet

import "github.com/andrescamacho/polisbot/internal/domain/shared"

// City is the slice of city state the transport engine needs: current stock
// and free storage. Parsed from game HTML by the parser collaborator.
type City struct {
	ID       string
	Name     string
	IslandID string
	Owned    bool

	// Resources currently in the warehouse, canonical order
	Resources shared.Cargo

	// StorageCapacity per resource slot; meaningful only when Owned
	StorageCapacity shared.Cargo
}

// FreeStorage returns per-slot remaining warehouse room. For a foreign city
// the vector is unbounded (the engine skips the storage clamp).
func (c *City) FreeStorage() shared.Cargo {
	var free shared.Cargo
	for i := range free {
		free[i] = c.StorageCapacity[i] - c.Resources[i]
		if free[i] < 0 {
			free[i] = 0
		}
	}
	return free
}
