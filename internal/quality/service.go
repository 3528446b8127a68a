package quality

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/rs/zerolog/log"
)

// Service serves loss reports and warning lifecycle operations.
type Service struct {
	store    repository.Store
	analyzer *Analyzer
	cfg      Config
}

func NewService(store repository.Store, cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{store: store, analyzer: NewAnalyzer(cfg), cfg: cfg}
}

// Analyzer returns the per-batch analyzer sharing this service's thresholds.
func (s *Service) Analyzer() *Analyzer {
	return s.analyzer
}

func (s *Service) windowStart(windowDays int) (time.Time, error) {
	if windowDays <= 0 {
		return time.Time{}, fmt.Errorf("%w: window_days must be positive, got %d", domain.ErrInvalidRequest, windowDays)
	}
	return s.cfg.Now().AddDate(0, 0, -windowDays), nil
}

func lossRates(batches []domain.Batch) []float64 {
	values := make([]float64, len(batches))
	for i, b := range batches {
		values[i] = b.YieldLoss.InexactFloat64()
	}
	return values
}

// Trend summarises the loss of one item, or of every item when itemID is nil,
// over the trailing window.
func (s *Service) Trend(ctx context.Context, itemID *int64, windowDays int) (*domain.TrendReport, error) {
	since, err := s.windowStart(windowDays)
	if err != nil {
		return nil, err
	}
	if itemID != nil {
		if _, err := s.store.GetItem(ctx, *itemID); err != nil {
			return nil, err
		}
	}

	batches, err := s.store.ListBatches(ctx, repository.BatchFilter{OutputItemID: itemID, From: &since})
	if err != nil {
		return nil, err
	}
	warnings, err := s.store.ListWarnings(ctx, repository.WarningFilter{ItemID: itemID, From: &since})
	if err != nil {
		return nil, err
	}

	sum := Summarize(lossRates(batches))
	return &domain.TrendReport{
		ItemID:       itemID,
		WindowDays:   windowDays,
		SampleSize:   sum.N,
		Mean:         sum.Mean,
		Stdev:        sum.Stdev,
		Min:          sum.Min,
		Max:          sum.Max,
		AnomalyCount: len(warnings),
		Status:       trendStatus(len(warnings)),
	}, nil
}

func trendStatus(anomalies int) domain.HealthStatus {
	switch {
	case anomalies < 2:
		return domain.StatusNormal
	case anomalies < 5:
		return domain.StatusAttention
	default:
		return domain.StatusCritical
	}
}

// PerItemComparison ranks output items by how far their mean loss sits from
// the mean over all batches in the window, furthest first.
func (s *Service) PerItemComparison(ctx context.Context, windowDays int) (*domain.ComparisonReport, error) {
	since, err := s.windowStart(windowDays)
	if err != nil {
		return nil, err
	}
	batches, err := s.store.ListBatches(ctx, repository.BatchFilter{From: &since})
	if err != nil {
		return nil, err
	}

	report := &domain.ComparisonReport{WindowDays: windowDays, Items: []domain.ItemComparison{}}
	if len(batches) == 0 {
		return report, nil
	}
	report.GlobalMean = Summarize(lossRates(batches)).Mean

	byItem := make(map[int64][]float64)
	for _, b := range batches {
		byItem[b.OutputItemID] = append(byItem[b.OutputItemID], b.YieldLoss.InexactFloat64())
	}

	for itemID, values := range byItem {
		sum := Summarize(values)
		name := ""
		if item, err := s.store.GetItem(ctx, itemID); err == nil {
			name = item.Name
		} else {
			log.Warn().Err(err).Int64("item_id", itemID).Msg("quality: comparison item lookup failed")
		}

		dev := sum.Mean - report.GlobalMean
		report.Items = append(report.Items, domain.ItemComparison{
			ItemID:              itemID,
			ItemName:            name,
			SampleSize:          sum.N,
			Mean:                sum.Mean,
			Stdev:               sum.Stdev,
			Min:                 sum.Min,
			Max:                 sum.Max,
			DeviationFromGlobal: dev,
			Status:              s.compareStatus(dev),
		})
	}

	sort.Slice(report.Items, func(i, j int) bool {
		di := math.Abs(report.Items[i].DeviationFromGlobal)
		dj := math.Abs(report.Items[j].DeviationFromGlobal)
		if di != dj {
			return di > dj
		}
		return report.Items[i].ItemID < report.Items[j].ItemID
	})
	for i := range report.Items {
		report.Items[i].Rank = i + 1
	}
	return report, nil
}

func (s *Service) compareStatus(deviation float64) domain.HealthStatus {
	abs := math.Abs(deviation)
	switch {
	case abs > s.cfg.CompareCritical:
		return domain.StatusCritical
	case abs > s.cfg.CompareAttention:
		return domain.StatusAttention
	default:
		return domain.StatusNormal
	}
}

// Resolve closes a warning. A warning can be resolved once.
func (s *Service) Resolve(ctx context.Context, warningID int64, note string) (*domain.QualityWarning, error) {
	var warning *domain.QualityWarning
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		w, err := tx.GetWarning(ctx, warningID)
		if err != nil {
			return err
		}
		if w.Resolved {
			return &domain.AlreadyResolvedError{WarningID: w.ID}
		}

		now := s.cfg.Now()
		w.Resolved = true
		w.ResolutionNote = note
		w.ResolvedAt = &now
		if err := tx.UpdateWarning(ctx, w); err != nil {
			return err
		}
		warning = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("warning_id", warning.ID).Int64("batch_id", warning.BatchID).Msg("quality warning resolved")
	return warning, nil
}

// Warnings lists warnings newest first.
func (s *Service) Warnings(ctx context.Context, filter repository.WarningFilter) ([]domain.QualityWarning, error) {
	return s.store.ListWarnings(ctx, filter)
}
