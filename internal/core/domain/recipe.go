package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidRecipe marks a recipe record that fails validation at the store
// boundary. Fulfillment against such a recipe must never touch inventory.
var ErrInvalidRecipe = errors.New("invalid recipe")

// Recipe maps ingredient item IDs to the quantity one order consumes.
// Read-only from the fulfillment engine's perspective.
type Recipe struct {
	ID          string
	Name        string
	Ingredients map[string]int
}

// Validate checks the ingredient map: keys must be non-empty and quantities
// strictly positive. A non-positive quantity would pass the deduction guard
// and turn a decrement into an increment.
func (r Recipe) Validate() error {
	for itemID, qty := range r.Ingredients {
		if itemID == "" {
			return fmt.Errorf("%w: %s has an empty ingredient id", ErrInvalidRecipe, r.ID)
		}
		if qty <= 0 {
			return fmt.Errorf("%w: %s requires %d of %s", ErrInvalidRecipe, r.ID, qty, itemID)
		}
	}
	return nil
}
