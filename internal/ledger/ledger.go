// Package ledger records stock movements and keeps item balances in step with them.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PostRequest describes one stock movement.
type PostRequest struct {
	ItemID          int64
	ChangeType      domain.ChangeType
	Delta           decimal.Decimal
	UnitCost        decimal.Decimal
	BatchID         *int64
	CorrectsEntryID *int64
	Note            string
	// AllowNegative lets an adjustment take the balance below zero.
	AllowNegative bool
	// AvgCost replaces the item's weighted-average cost when set.
	AvgCost *decimal.Decimal
}

// Post applies one movement inside tx: the item row is locked, the new balance
// is checked and written, and the entry is appended.
func Post(ctx context.Context, tx repository.Tx, req PostRequest, at time.Time) (*domain.LedgerEntry, error) {
	if req.Delta.IsZero() {
		return nil, fmt.Errorf("%w: delta must be non-zero", domain.ErrInvalidQuantity)
	}
	if req.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit_cost must not be negative, got %s", domain.ErrInvalidQuantity, req.UnitCost)
	}
	if req.ChangeType == "" {
		req.ChangeType = domain.ChangeAdjustment
	}

	if err := tx.LockItems(ctx, req.ItemID); err != nil {
		return nil, err
	}
	item, err := tx.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	balance := item.Quantity.Add(req.Delta)
	if balance.IsNegative() && !req.AllowNegative {
		return nil, &domain.InsufficientStockError{
			ItemID:    item.ID,
			ItemName:  item.Name,
			Required:  req.Delta.Neg(),
			Available: item.Quantity,
		}
	}

	avgCost := item.AvgCost
	if req.AvgCost != nil {
		avgCost = *req.AvgCost
	}
	if err := tx.UpdateItemStock(ctx, item.ID, balance, avgCost); err != nil {
		return nil, err
	}

	entry := &domain.LedgerEntry{
		ItemID:          item.ID,
		ChangeType:      req.ChangeType,
		Delta:           req.Delta,
		BalanceAfter:    balance,
		UnitCost:        req.UnitCost,
		BatchID:         req.BatchID,
		CorrectsEntryID: req.CorrectsEntryID,
		Note:            req.Note,
		CreatedAt:       at,
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// WeightedAverage blends an existing average cost with an incoming quantity
// priced at unitCost. An empty result falls back to unitCost.
func WeightedAverage(qty, avg, addQty, unitCost decimal.Decimal) decimal.Decimal {
	total := qty.Add(addQty)
	if !total.IsPositive() {
		return unitCost
	}
	return qty.Mul(avg).Add(addQty.Mul(unitCost)).Div(total)
}

type Config struct {
	Now func() time.Time
}

// Service is the ledger entry point for callers outside a transaction.
type Service struct {
	store repository.Store
	now   func() time.Time
}

func NewService(store repository.Store, cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: store, now: now}
}

// Post records a manual adjustment or waste entry.
func (s *Service) Post(ctx context.Context, req PostRequest) (*domain.LedgerEntry, error) {
	switch req.ChangeType {
	case "", domain.ChangeAdjustment:
	case domain.ChangeWaste:
		if !req.Delta.IsNegative() {
			return nil, fmt.Errorf("%w: waste delta must be negative, got %s", domain.ErrInvalidQuantity, req.Delta)
		}
		req.AllowNegative = false
	default:
		return nil, fmt.Errorf("%w: %s entries cannot be posted directly", domain.ErrInvalidRequest, req.ChangeType)
	}
	req.AvgCost = nil

	var entry *domain.LedgerEntry
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		entry, err = Post(ctx, tx, req, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("item_id", entry.ItemID).
		Str("change_type", string(entry.ChangeType)).
		Str("delta", entry.Delta.String()).
		Str("balance", entry.BalanceAfter.String()).
		Msg("ledger entry posted")
	return entry, nil
}

// Page is one page of ledger history.
type Page struct {
	Entries  []domain.LedgerEntry `json:"entries"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// Query returns an item's history ordered oldest first.
func (s *Service) Query(ctx context.Context, filter repository.LedgerFilter) (*Page, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, fmt.Errorf("%w: from must be before to", domain.ErrInvalidRequest)
	}
	if _, err := s.store.GetItem(ctx, filter.ItemID); err != nil {
		return nil, err
	}

	filter.Normalize()
	entries, total, err := s.store.QueryLedger(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Page{Entries: entries, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// Balance returns the item's current quantity.
func (s *Service) Balance(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return decimal.Zero, err
	}
	return item.Quantity, nil
}

// Correct changes the effective amount of a posted entry to newDelta by
// appending a compensating CORRECTION entry. The original entry is untouched.
func (s *Service) Correct(ctx context.Context, entryID int64, newDelta decimal.Decimal, note string) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		original, err := tx.GetLedgerEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if original.ChangeType == domain.ChangeCorrection || original.ChangeType.IsProduction() {
			return fmt.Errorf("%w: ledger entry %d is a %s entry and cannot be corrected",
				domain.ErrInvalidQuantity, original.ID, original.ChangeType)
		}

		diff := newDelta.Sub(original.Delta)
		if diff.IsZero() {
			return fmt.Errorf("%w: ledger entry %d already has delta %s",
				domain.ErrInvalidQuantity, original.ID, newDelta)
		}

		if note == "" {
			note = fmt.Sprintf("correction of entry %d: %s -> %s", original.ID, original.Delta, newDelta)
		}
		entry, err = Post(ctx, tx, PostRequest{
			ItemID:          original.ItemID,
			ChangeType:      domain.ChangeCorrection,
			Delta:           diff,
			UnitCost:        original.UnitCost,
			CorrectsEntryID: &original.ID,
			Note:            note,
		}, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("item_id", entry.ItemID).
		Int64("corrects_entry_id", entryID).
		Str("delta", entry.Delta.String()).
		Msg("ledger entry corrected")
	return entry, nil
}
