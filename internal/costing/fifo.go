// Package costing prices stock consumption against inbound receipts, oldest first.
package costing

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Layer is the part of one inbound batch taken by a resolution.
type Layer struct {
	InboundBatchID int64           `json:"inbound_batch_id"`
	ReceivedAt     time.Time       `json:"received_at"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Cost           decimal.Decimal `json:"cost"`
	RemainingAfter decimal.Decimal `json:"remaining_after"`
}

// Resolution is the cost of consuming Quantity of an item. When the inbound
// history runs out the shortfall is priced at the item's average cost and
// UsedFallback is set.
type Resolution struct {
	ItemID           int64           `json:"item_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	Layers           []Layer         `json:"layers"`
	UsedFallback     bool            `json:"used_fallback"`
	Shortfall        decimal.Decimal `json:"shortfall"`
	FallbackUnitCost decimal.Decimal `json:"fallback_unit_cost"`
}

// Warning describes the fallback in words, or "" when none was used.
func (r *Resolution) Warning() string {
	if !r.UsedFallback {
		return ""
	}
	return fmt.Sprintf("item %d: inbound history short by %s, priced at average cost %s",
		r.ItemID, r.Shortfall, r.FallbackUnitCost)
}

// Resolve walks the item's inbound batches in receipt order and prices qty
// without changing anything.
func Resolve(ctx context.Context, r repository.Reader, itemID int64, qty decimal.Decimal) (*Resolution, error) {
	res := &Resolution{
		ItemID:    itemID,
		Quantity:  qty,
		UnitCost:  decimal.Zero,
		TotalCost: decimal.Zero,
		Layers:    []Layer{},
		Shortfall: decimal.Zero,
	}
	if !qty.IsPositive() {
		res.Quantity = decimal.Zero
		return res, nil
	}

	item, err := r.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	batches, err := r.ListInboundBatches(ctx, itemID)
	if err != nil {
		return nil, err
	}

	needed := qty
	for _, b := range batches {
		if !needed.IsPositive() {
			break
		}
		if !b.Remaining.IsPositive() {
			continue
		}
		take := decimal.Min(b.Remaining, needed)
		cost := take.Mul(b.UnitPrice)
		res.Layers = append(res.Layers, Layer{
			InboundBatchID: b.ID,
			ReceivedAt:     b.ReceivedAt,
			Quantity:       take,
			UnitPrice:      b.UnitPrice,
			Cost:           cost,
			RemainingAfter: b.Remaining.Sub(take),
		})
		res.TotalCost = res.TotalCost.Add(cost)
		needed = needed.Sub(take)
	}

	if needed.IsPositive() {
		res.UsedFallback = true
		res.Shortfall = needed
		res.FallbackUnitCost = item.AvgCost
		res.TotalCost = res.TotalCost.Add(needed.Mul(item.AvgCost))

		log.Warn().
			Int64("item_id", itemID).
			Str("quantity", qty.String()).
			Str("shortfall", needed.String()).
			Str("avg_cost", item.AvgCost.String()).
			Msg("fifo: inbound history exhausted, using average cost")
	}

	res.UnitCost = res.TotalCost.Div(qty)
	return res, nil
}

// Consume resolves qty and records the consumption on the inbound batches.
// It must run in the same transaction as the matching stock debit.
func Consume(ctx context.Context, tx repository.Tx, itemID int64, qty decimal.Decimal) (*Resolution, error) {
	res, err := Resolve(ctx, tx, itemID, qty)
	if err != nil {
		return nil, err
	}
	for _, layer := range res.Layers {
		if err := tx.UpdateInboundRemaining(ctx, layer.InboundBatchID, layer.RemainingAfter); err != nil {
			return nil, fmt.Errorf("failed to consume inbound batch %d: %w", layer.InboundBatchID, err)
		}
	}
	return res, nil
}

// Service answers cost questions for callers outside a production run.
type Service struct {
	store repository.Reader
}

func NewService(store repository.Reader) *Service {
	return &Service{store: store}
}

// Quote prices qty of an item at current FIFO layers. Nothing is persisted.
// A quantity of zero or less costs nothing.
func (s *Service) Quote(ctx context.Context, itemID int64, qty decimal.Decimal) (*Resolution, error) {
	return Resolve(ctx, s.store, itemID, qty)
}
