// internal/domain/models.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemCategory separates purchased raw stock from stock produced in-house.
type ItemCategory string

const (
	CategoryRaw       ItemCategory = "RAW"
	CategoryProcessed ItemCategory = "PROCESSED"
)

// Item is a stock-bearing catalog entry. Quantity is in kg.
type Item struct {
	ID           int64               `json:"id" db:"id"`
	Name         string              `json:"name" db:"name"`
	Category     ItemCategory        `json:"category" db:"category"`
	Profile      string              `json:"profile,omitempty" db:"profile"`
	Quantity     decimal.Decimal     `json:"quantity" db:"quantity"`
	AvgCost      decimal.Decimal     `json:"avg_cost" db:"avg_cost"`
	ParentItemID *int64              `json:"parent_item_id,omitempty" db:"parent_item_id"`
	RecipeID     *int64              `json:"recipe_id,omitempty" db:"recipe_id"`
	ExpectedLoss decimal.NullDecimal `json:"expected_loss" db:"expected_loss"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" db:"updated_at"`
}

// ExpectedLossOr returns the expected loss fraction, or def when unset.
func (i *Item) ExpectedLossOr(def decimal.Decimal) decimal.Decimal {
	if i.ExpectedLoss.Valid {
		return i.ExpectedLoss.Decimal
	}
	return def
}

// InboundBatch is one receipt of a raw item. Remaining is decremented by FIFO
// consumption and never exceeds Quantity.
type InboundBatch struct {
	ID         int64           `json:"id" db:"id"`
	ItemID     int64           `json:"item_id" db:"item_id"`
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price" db:"unit_price"`
	Remaining  decimal.Decimal `json:"remaining" db:"remaining"`
	ReceivedAt time.Time       `json:"received_at" db:"received_at"`
	Note       string          `json:"note" db:"note"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// LedgerEntry is one immutable stock movement.
type LedgerEntry struct {
	ID              int64           `json:"id" db:"id"`
	ItemID          int64           `json:"item_id" db:"item_id"`
	ChangeType      ChangeType      `json:"change_type" db:"change_type"`
	Delta           decimal.Decimal `json:"delta" db:"delta"`
	BalanceAfter    decimal.Decimal `json:"balance_after" db:"balance_after"`
	UnitCost        decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	BatchID         *int64          `json:"batch_id,omitempty" db:"batch_id"`
	CorrectsEntryID *int64          `json:"corrects_entry_id,omitempty" db:"corrects_entry_id"`
	Note            string          `json:"note" db:"note"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// BatchKind tells single-origin roasts from recipe blends.
type BatchKind string

const (
	BatchSingle BatchKind = "SINGLE"
	BatchBlend  BatchKind = "BLEND"
)

// Batch is one production event. YieldLoss is a percentage.
type Batch struct {
	ID             int64           `json:"id" db:"id"`
	BatchNumber    string          `json:"batch_number" db:"batch_number"`
	Kind           BatchKind       `json:"kind" db:"kind"`
	OutputItemID   int64           `json:"output_item_id" db:"output_item_id"`
	RecipeID       *int64          `json:"recipe_id,omitempty" db:"recipe_id"`
	InputQuantity  decimal.Decimal `json:"input_quantity" db:"input_quantity"`
	OutputQuantity decimal.Decimal `json:"output_quantity" db:"output_quantity"`
	YieldLoss      decimal.Decimal `json:"yield_loss" db:"yield_loss"`
	ProductionCost decimal.Decimal `json:"production_cost" db:"production_cost"`
	ProducedAt     time.Time       `json:"produced_at" db:"produced_at"`
	Notes          string          `json:"notes" db:"notes"`
}

// YieldLossPercent computes (input - output) / input * 100, or zero for an
// empty input.
func YieldLossPercent(input, output decimal.Decimal) decimal.Decimal {
	if !input.IsPositive() {
		return decimal.Zero
	}
	return input.Sub(output).Div(input).Mul(decimal.NewFromInt(100)).Round(4)
}

// Recipe lists the components of a blend.
type Recipe struct {
	ID         int64             `json:"id" db:"id"`
	Name       string            `json:"name" db:"name"`
	Components []RecipeComponent `json:"components" db:"-"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}

// RecipeComponent is one item of a recipe with its share (0..1) of the input mass.
type RecipeComponent struct {
	RecipeID   int64           `json:"recipe_id" db:"recipe_id"`
	ItemID     int64           `json:"item_id" db:"item_id"`
	Proportion decimal.Decimal `json:"proportion" db:"proportion"`
}

// QualityWarning flags a batch whose yield loss strayed from the item's expectation.
type QualityWarning struct {
	ID               int64            `json:"id" db:"id"`
	BatchID          int64            `json:"batch_id" db:"batch_id"`
	ItemID           int64            `json:"item_id" db:"item_id"`
	Direction        WarningDirection `json:"direction" db:"direction"`
	Severity         WarningSeverity  `json:"severity" db:"severity"`
	LossRate         decimal.Decimal  `json:"loss_rate" db:"loss_rate"`
	ExpectedLoss     decimal.Decimal  `json:"expected_loss" db:"expected_loss"`
	Deviation        decimal.Decimal  `json:"deviation" db:"deviation"`
	ConsecutiveCount int              `json:"consecutive_count" db:"consecutive_count"`
	Resolved         bool             `json:"resolved" db:"resolved"`
	ResolutionNote   string           `json:"resolution_note" db:"resolution_note"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}
