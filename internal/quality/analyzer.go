// Package quality grades production batches by yield loss and reports on
// loss trends.
package quality

import (
	"context"
	"time"

	"github.com/andresuchdata/roastery/internal/config"
	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

const historyPageSize = 50

// Config holds the thresholds in percentage points. DefaultExpectedLoss is a
// fraction used for items without their own expectation.
type Config struct {
	WarnThreshold       decimal.Decimal
	CriticalThreshold   decimal.Decimal
	CompareAttention    float64
	CompareCritical     float64
	DefaultExpectedLoss decimal.Decimal
	Now                 func() time.Time
}

// ConfigFrom converts the application settings.
func ConfigFrom(cfg config.QualityConfig) Config {
	return Config{
		WarnThreshold:       decimal.NewFromFloat(cfg.WarnThreshold),
		CriticalThreshold:   decimal.NewFromFloat(cfg.CriticalThreshold),
		CompareAttention:    cfg.CompareAttention,
		CompareCritical:     cfg.CompareCritical,
		DefaultExpectedLoss: decimal.NewFromFloat(cfg.DefaultExpectedLoss),
	}
}

func (c Config) withDefaults() Config {
	d := ConfigFrom(config.Defaults().Quality)
	if c.WarnThreshold.IsZero() {
		c.WarnThreshold = d.WarnThreshold
	}
	if c.CriticalThreshold.IsZero() {
		c.CriticalThreshold = d.CriticalThreshold
	}
	if c.CompareAttention == 0 {
		c.CompareAttention = d.CompareAttention
	}
	if c.CompareCritical == 0 {
		c.CompareCritical = d.CompareCritical
	}
	if c.DefaultExpectedLoss.IsZero() {
		c.DefaultExpectedLoss = d.DefaultExpectedLoss
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// Analyzer checks single batches against their item's expected loss.
type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg.withDefaults()}
}

// ExpectedLossPercent is the item's expected loss in percent.
func (a *Analyzer) ExpectedLossPercent(item *domain.Item) decimal.Decimal {
	return item.ExpectedLossOr(a.cfg.DefaultExpectedLoss).Mul(hundred)
}

func (a *Analyzer) exceeds(deviation decimal.Decimal) bool {
	return deviation.Abs().GreaterThan(a.cfg.WarnThreshold)
}

// Evaluate grades a freshly written batch and stores a warning when its loss
// strays past the warn threshold. It returns nil when the batch is in range.
func (a *Analyzer) Evaluate(ctx context.Context, tx repository.Tx, batch *domain.Batch, item *domain.Item) (*domain.QualityWarning, error) {
	expected := a.ExpectedLossPercent(item)
	deviation := batch.YieldLoss.Sub(expected)
	if !a.exceeds(deviation) {
		return nil, nil
	}

	direction := domain.DirectionLow
	if deviation.IsPositive() {
		direction = domain.DirectionHigh
	}
	severity := domain.SeverityWarning
	if deviation.Abs().GreaterThan(a.cfg.CriticalThreshold) {
		severity = domain.SeverityCritical
	}

	preceding, err := a.precedingExceedances(ctx, tx, batch, expected)
	if err != nil {
		return nil, err
	}

	warning := &domain.QualityWarning{
		BatchID:          batch.ID,
		ItemID:           batch.OutputItemID,
		Direction:        direction,
		Severity:         severity,
		LossRate:         batch.YieldLoss,
		ExpectedLoss:     expected,
		Deviation:        deviation,
		ConsecutiveCount: 1 + preceding,
		CreatedAt:        batch.ProducedAt,
	}
	if err := tx.InsertWarning(ctx, warning); err != nil {
		return nil, err
	}

	log.Warn().
		Str("batch_number", batch.BatchNumber).
		Int64("item_id", batch.OutputItemID).
		Str("loss_rate", batch.YieldLoss.String()).
		Str("deviation", deviation.String()).
		Str("severity", string(severity)).
		Int("consecutive", warning.ConsecutiveCount).
		Msg("quality warning raised")
	return warning, nil
}

// precedingExceedances counts the batches of the same item immediately before
// this one that also exceeded the warn threshold.
func (a *Analyzer) precedingExceedances(ctx context.Context, tx repository.Tx, batch *domain.Batch, expected decimal.Decimal) (int, error) {
	itemID := batch.OutputItemID
	count := 0
	for offset := 0; ; offset += historyPageSize {
		history, err := tx.ListBatches(ctx, repository.BatchFilter{
			OutputItemID: &itemID,
			NewestFirst:  true,
			Limit:        historyPageSize,
			Offset:       offset,
		})
		if err != nil {
			return 0, err
		}
		for _, prev := range history {
			if prev.ID == batch.ID {
				continue
			}
			if !a.exceeds(prev.YieldLoss.Sub(expected)) {
				return count, nil
			}
			count++
		}
		if len(history) < historyPageSize {
			return count, nil
		}
	}
}
