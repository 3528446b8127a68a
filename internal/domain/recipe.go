package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProportionTolerance is how far a recipe's proportions may drift from 1.0.
var ProportionTolerance = decimal.RequireFromString("0.01")

// Validate checks that the recipe has components with proportions in (0, 1]
// summing to 1.0 within ProportionTolerance, and no duplicate items.
func (r *Recipe) Validate() error {
	if len(r.Components) == 0 {
		return fmt.Errorf("%w: recipe %q", ErrEmptyRecipe, r.Name)
	}

	seen := make(map[int64]struct{}, len(r.Components))
	sum := decimal.Zero
	for _, c := range r.Components {
		if _, dup := seen[c.ItemID]; dup {
			return fmt.Errorf("%w: item %d listed twice", ErrInvalidRecipe, c.ItemID)
		}
		seen[c.ItemID] = struct{}{}

		if !c.Proportion.IsPositive() || c.Proportion.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: proportion for item %d must be in (0, 1], got %s",
				ErrInvalidRecipe, c.ItemID, c.Proportion.String())
		}
		sum = sum.Add(c.Proportion)
	}

	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(ProportionTolerance) {
		return fmt.Errorf("%w: proportions sum to %s, expected 1.0", ErrInvalidRecipe, sum.String())
	}
	return nil
}

// ItemIDs returns the component item ids in recipe order.
func (r *Recipe) ItemIDs() []int64 {
	ids := make([]int64, 0, len(r.Components))
	for _, c := range r.Components {
		ids = append(ids, c.ItemID)
	}
	return ids
}
