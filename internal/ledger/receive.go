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

// ReceiveRequest is one delivery of a raw item.
type ReceiveRequest struct {
	ItemID     int64
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	ReceivedAt time.Time
	Note       string
}

// Receipt is what a delivery produced.
type Receipt struct {
	Inbound *domain.InboundBatch `json:"inbound"`
	Entry   *domain.LedgerEntry  `json:"entry"`
	AvgCost decimal.Decimal      `json:"avg_cost"`
}

// Receive stores an inbound batch for a raw item, credits its balance and
// reblends the weighted-average cost.
func (s *Service) Receive(ctx context.Context, req ReceiveRequest) (*Receipt, error) {
	if !req.Quantity.IsPositive() {
		return nil, domain.InvalidQuantity("quantity", req.Quantity)
	}
	if req.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: unit_price must not be negative, got %s", domain.ErrInvalidQuantity, req.UnitPrice)
	}

	now := s.now()
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = now
	}

	var receipt *Receipt
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		receipt, err = Receive(ctx, tx, req, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("item_id", req.ItemID).
		Int64("inbound_id", receipt.Inbound.ID).
		Str("quantity", req.Quantity.String()).
		Str("unit_price", req.UnitPrice.String()).
		Msg("inbound batch received")
	return receipt, nil
}

// Receive is the transactional body of Service.Receive, shared with the importer.
func Receive(ctx context.Context, tx repository.Tx, req ReceiveRequest, at time.Time) (*Receipt, error) {
	if err := tx.LockItems(ctx, req.ItemID); err != nil {
		return nil, err
	}
	item, err := tx.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item.Category != domain.CategoryRaw {
		return nil, fmt.Errorf("%w: item %d is %s, only RAW items are received",
			domain.ErrInvalidRequest, item.ID, item.Category)
	}

	inbound := &domain.InboundBatch{
		ItemID:     item.ID,
		Quantity:   req.Quantity,
		UnitPrice:  req.UnitPrice,
		Remaining:  req.Quantity,
		ReceivedAt: req.ReceivedAt,
		Note:       req.Note,
		CreatedAt:  at,
	}
	if err := tx.CreateInboundBatch(ctx, inbound); err != nil {
		return nil, err
	}

	avg := WeightedAverage(item.Quantity, item.AvgCost, req.Quantity, req.UnitPrice)
	note := req.Note
	if note == "" {
		note = fmt.Sprintf("inbound batch %d", inbound.ID)
	}
	entry, err := Post(ctx, tx, PostRequest{
		ItemID:     item.ID,
		ChangeType: domain.ChangeReceipt,
		Delta:      req.Quantity,
		UnitCost:   req.UnitPrice,
		Note:       note,
		AvgCost:    &avg,
	}, at)
	if err != nil {
		return nil, err
	}

	return &Receipt{Inbound: inbound, Entry: entry, AvgCost: avg}, nil
}
