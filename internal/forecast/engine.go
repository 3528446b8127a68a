// Package forecast projects yield loss from recent batches and a monthly
// seasonal index.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/roastery/internal/cache"
	"github.com/andresuchdata/roastery/internal/config"
	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/quality"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// Window is how many recent batches feed the moving average.
	Window int
	// MinSamples is the smallest history a forecast accepts.
	MinSamples int
	TTL        time.Duration
	Now        func() time.Time
}

// ConfigFrom converts the application settings.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Window:     cfg.Forecast.Window,
		MinSamples: cfg.Forecast.MinSamples,
		TTL:        cache.SeasonalTTL(cfg.Cache),
	}
}

type Engine struct {
	store repository.Reader
	cache cache.SeasonalCache
	cfg   Config
	mu    sync.Mutex
}

func NewEngine(store repository.Reader, seasonal cache.SeasonalCache, cfg Config) *Engine {
	if cfg.Window <= 0 {
		cfg.Window = 30
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if seasonal == nil {
		seasonal = cache.NewMemorySeasonalCache()
	}
	return &Engine{store: store, cache: seasonal, cfg: cfg}
}

// SeasonalIndex returns the cached index while it is younger than the TTL,
// and recomputes it from every batch otherwise. forceRefresh drops every
// cached entry before recomputing.
func (e *Engine) SeasonalIndex(ctx context.Context, forceRefresh bool) (*domain.SeasonalIndex, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.cfg.Now()
	if forceRefresh {
		if err := e.cache.Invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("forecast: seasonal cache invalidate failed")
		}
	} else {
		cached, ok, err := e.cache.Get(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("forecast: seasonal cache get failed")
		}
		if ok && now.Sub(cached.ComputedAt) < e.cfg.TTL {
			return cached, nil
		}
	}

	index, err := e.computeIndex(ctx, now)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Set(ctx, index); err != nil {
		log.Warn().Err(err).Msg("forecast: seasonal cache set failed")
	}

	log.Debug().
		Int("samples", index.SampleSize).
		Float64("global_mean", index.GlobalMean).
		Bool("forced", forceRefresh).
		Msg("seasonal index computed")
	return index, nil
}

func (e *Engine) computeIndex(ctx context.Context, now time.Time) (*domain.SeasonalIndex, error) {
	batches, err := e.store.ListBatches(ctx, repository.BatchFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load batch history: %w", err)
	}

	index := &domain.SeasonalIndex{
		Indices:    make(map[string]float64),
		SampleSize: len(batches),
		ComputedAt: now,
	}
	if len(batches) == 0 {
		return index, nil
	}

	byMonth := make(map[time.Month][]float64)
	all := make([]float64, 0, len(batches))
	for _, b := range batches {
		loss := b.YieldLoss.InexactFloat64()
		m := b.ProducedAt.Month()
		byMonth[m] = append(byMonth[m], loss)
		all = append(all, loss)
	}

	index.GlobalMean = quality.Summarize(all).Mean
	for m, values := range byMonth {
		factor := 1.0
		if index.GlobalMean != 0 {
			factor = quality.Summarize(values).Mean / index.GlobalMean
		}
		index.Indices[domain.MonthKey(m)] = factor
	}
	return index, nil
}

// history returns the loss rates of the most recent batches, newest first.
func (e *Engine) history(ctx context.Context, itemID *int64) ([]float64, error) {
	batches, err := e.store.ListBatches(ctx, repository.BatchFilter{
		OutputItemID: itemID,
		NewestFirst:  true,
		Limit:        e.cfg.Window,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent batches: %w", err)
	}
	values := make([]float64, len(batches))
	for i, b := range batches {
		values[i] = b.YieldLoss.InexactFloat64()
	}
	return values, nil
}

// load fetches the recent history and the seasonal index concurrently.
func (e *Engine) load(ctx context.Context, itemID *int64) ([]float64, *domain.SeasonalIndex, error) {
	if itemID != nil {
		if _, err := e.store.GetItem(ctx, *itemID); err != nil {
			return nil, nil, err
		}
	}

	var (
		history []float64
		index   *domain.SeasonalIndex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = e.history(gctx, itemID)
		return err
	})
	g.Go(func() error {
		var err error
		index, err = e.SeasonalIndex(gctx, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return history, index, nil
}

// Predict forecasts the loss rate monthsAhead months from now for one item,
// or for all items when itemID is nil.
func (e *Engine) Predict(ctx context.Context, itemID *int64, monthsAhead int) (*domain.Forecast, error) {
	if monthsAhead < 0 {
		return nil, fmt.Errorf("%w: months_ahead must not be negative, got %d", domain.ErrInvalidRequest, monthsAhead)
	}
	history, index, err := e.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return e.build(itemID, history, index, monthsAhead)
}

// Series forecasts months 1..months ahead. It stops at the first month that
// lacks data and returns what it has.
func (e *Engine) Series(ctx context.Context, itemID *int64, months int) ([]domain.Forecast, error) {
	if months < 0 {
		return nil, fmt.Errorf("%w: months must not be negative, got %d", domain.ErrInvalidRequest, months)
	}
	series := []domain.Forecast{}
	if months == 0 {
		return series, nil
	}

	history, index, err := e.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	for m := 1; m <= months; m++ {
		f, err := e.build(itemID, history, index, m)
		if errors.Is(err, domain.ErrInsufficientData) {
			log.Debug().Int("months", months).Int("reached", m-1).Msg("forecast series stopped early")
			break
		}
		if err != nil {
			return nil, err
		}
		series = append(series, *f)
	}
	return series, nil
}

func (e *Engine) build(itemID *int64, history []float64, index *domain.SeasonalIndex, monthsAhead int) (*domain.Forecast, error) {
	if len(history) < e.cfg.MinSamples {
		return nil, &domain.InsufficientDataError{
			Subject:   "forecast",
			Required:  e.cfg.MinSamples,
			Available: len(history),
		}
	}

	year, month := targetPeriod(e.cfg.Now(), monthsAhead)
	sum := quality.Summarize(history)
	factor := index.Factor(month)
	predicted := sum.Mean * factor

	return &domain.Forecast{
		ItemID:         itemID,
		MonthsAhead:    monthsAhead,
		CurrentMean:    sum.Mean,
		Predicted:      predicted,
		CILower:        predicted - 2*sum.Stdev,
		CIUpper:        predicted + 2*sum.Stdev,
		SeasonalFactor: factor,
		PeriodLabel:    fmt.Sprintf("%04d-%02d", year, int(month)),
		SampleSize:     sum.N,
	}, nil
}

// targetPeriod is the calendar month monthsAhead after now, wrapping years.
func targetPeriod(now time.Time, monthsAhead int) (int, time.Month) {
	offset := int(now.Month()) - 1 + monthsAhead
	return now.Year() + offset/12, time.Month(offset%12 + 1)
}

// RunRefresher recomputes the seasonal index every interval until ctx is done.
func (e *Engine) RunRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("seasonal index refresher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("seasonal index refresher stopped")
			return
		case <-ticker.C:
			if _, err := e.SeasonalIndex(ctx, true); err != nil {
				log.Error().Err(err).Msg("seasonal index refresh failed")
			}
		}
	}
}
