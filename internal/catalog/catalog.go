// Package catalog defines items and recipes. Stock never enters through here:
// new items start empty and are filled by receiving or production.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Service struct {
	store repository.Store
	now   func() time.Time
}

func NewService(store repository.Store, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: store, now: now}
}

type ItemRequest struct {
	Name         string           `json:"name"`
	Category     string           `json:"category"`
	Profile      string           `json:"profile"`
	ExpectedLoss *decimal.Decimal `json:"expected_loss"`
}

type RecipeRequest struct {
	Name       string                   `json:"name"`
	Components []domain.RecipeComponent `json:"components"`
}

func parseCategory(s string) (domain.ItemCategory, error) {
	switch domain.ItemCategory(strings.ToUpper(strings.TrimSpace(s))) {
	case "", domain.CategoryRaw:
		return domain.CategoryRaw, nil
	case domain.CategoryProcessed:
		return domain.CategoryProcessed, nil
	default:
		return "", fmt.Errorf("%w: unknown category %q", domain.ErrInvalidRequest, s)
	}
}

// NewItem validates a request and builds the item it describes.
func NewItem(req ItemRequest) (*domain.Item, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: item name is required", domain.ErrInvalidRequest)
	}
	category, err := parseCategory(req.Category)
	if err != nil {
		return nil, err
	}

	item := &domain.Item{
		Name:     name,
		Category: category,
		Profile:  domain.NormalizeProfile(req.Profile),
		Quantity: decimal.Zero,
		AvgCost:  decimal.Zero,
	}
	if req.ExpectedLoss != nil {
		loss := *req.ExpectedLoss
		if loss.IsNegative() || loss.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("%w: expected_loss must be in [0, 1), got %s", domain.ErrInvalidRequest, loss)
		}
		item.ExpectedLoss = decimal.NewNullDecimal(loss)
	}
	return item, nil
}

func (s *Service) CreateItem(ctx context.Context, req ItemRequest) (*domain.Item, error) {
	item, err := NewItem(req)
	if err != nil {
		return nil, err
	}
	item.CreatedAt = s.now()

	if err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.CreateItem(ctx, item)
	}); err != nil {
		return nil, err
	}

	log.Info().Int64("item_id", item.ID).Str("name", item.Name).Msg("item created")
	return item, nil
}

// CreateRecipe stores a recipe after checking its proportions and that every
// component item exists.
func (s *Service) CreateRecipe(ctx context.Context, req RecipeRequest) (*domain.Recipe, error) {
	recipe := &domain.Recipe{
		Name:       strings.TrimSpace(req.Name),
		Components: append([]domain.RecipeComponent(nil), req.Components...),
		CreatedAt:  s.now(),
	}
	if recipe.Name == "" {
		return nil, fmt.Errorf("%w: recipe name is required", domain.ErrInvalidRequest)
	}
	if err := recipe.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		for _, c := range recipe.Components {
			if _, err := tx.GetItem(ctx, c.ItemID); err != nil {
				return err
			}
		}
		return tx.CreateRecipe(ctx, recipe)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("recipe_id", recipe.ID).Str("name", recipe.Name).Int("components", len(recipe.Components)).Msg("recipe created")
	return recipe, nil
}

func (s *Service) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	return s.store.GetItem(ctx, id)
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.store.ListItems(ctx)
}

func (s *Service) GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error) {
	return s.store.GetRecipe(ctx, id)
}

func (s *Service) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	return s.store.GetBatch(ctx, id)
}

// ListBatches returns batches newest first.
func (s *Service) ListBatches(ctx context.Context, itemID *int64, limit int) ([]domain.Batch, error) {
	if limit <= 0 || limit > repository.MaxPageSize {
		limit = repository.DefaultPageSize
	}
	return s.store.ListBatches(ctx, repository.BatchFilter{OutputItemID: itemID, NewestFirst: true, Limit: limit})
}
