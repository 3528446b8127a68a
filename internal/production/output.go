package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/shopspring/decimal"
)

const blendProfile = "BLEND"

// outputTemplate describes the item a run produces, used when it does not exist yet.
type outputTemplate struct {
	key          repository.OutputKey
	name         string
	expectedLoss decimal.NullDecimal
}

func singleOutput(input *domain.Item, profile string) outputTemplate {
	parent := input.ID
	return outputTemplate{
		key:          repository.OutputKey{ParentItemID: &parent, Profile: profile},
		name:         fmt.Sprintf("%s-%s", input.Name, domain.ProfileTitle(profile)),
		expectedLoss: input.ExpectedLoss,
	}
}

// blendOutput names the output after the recipe. Its expected loss is the
// proportion-weighted mean over components that declare one.
func blendOutput(recipe *domain.Recipe, items map[int64]*domain.Item) outputTemplate {
	recipeID := recipe.ID
	tmpl := outputTemplate{
		key:  repository.OutputKey{RecipeID: &recipeID, Profile: blendProfile},
		name: recipe.Name,
	}

	weighted, weight := decimal.Zero, decimal.Zero
	for _, c := range recipe.Components {
		item := items[c.ItemID]
		if item == nil || !item.ExpectedLoss.Valid {
			continue
		}
		weighted = weighted.Add(item.ExpectedLoss.Decimal.Mul(c.Proportion))
		weight = weight.Add(c.Proportion)
	}
	if weight.IsPositive() {
		tmpl.expectedLoss = decimal.NewNullDecimal(weighted.Div(weight).Round(4))
	}
	return tmpl
}

// outputLockKey names the lock guarding creation of the template's item.
func outputLockKey(tmpl outputTemplate) string {
	return "output:" + tmpl.name
}

// findOutput returns the existing output item, or nil when the run will create it.
func findOutput(ctx context.Context, tx repository.Tx, tmpl outputTemplate) (*domain.Item, error) {
	item, err := tx.FindOutputItem(ctx, tmpl.key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// createOutput inserts a new processed item with zero stock and the run's unit cost.
func createOutput(ctx context.Context, tx repository.Tx, tmpl outputTemplate, unitCost decimal.Decimal, at time.Time) (*domain.Item, error) {
	item := &domain.Item{
		Name:         tmpl.name,
		Category:     domain.CategoryProcessed,
		Profile:      tmpl.key.Profile,
		Quantity:     decimal.Zero,
		AvgCost:      unitCost,
		ParentItemID: tmpl.key.ParentItemID,
		RecipeID:     tmpl.key.RecipeID,
		ExpectedLoss: tmpl.expectedLoss,
		CreatedAt:    at,
	}
	if err := tx.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create output item %q: %w", tmpl.name, err)
	}
	return item, nil
}
