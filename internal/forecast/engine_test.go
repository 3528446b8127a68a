package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/andresuchdata/roastery/internal/cache"
	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/andresuchdata/roastery/internal/repository/memory"
	"github.com/shopspring/decimal"
)

type sample struct {
	loss float64
	at   time.Time
}

var batchSeq int

func seedBatches(t *testing.T, store *memory.Store, itemID int64, samples ...sample) {
	t.Helper()
	ctx := context.Background()
	err := store.WithTx(ctx, func(tx repository.Tx) error {
		for _, s := range samples {
			batchSeq++
			b := &domain.Batch{
				BatchNumber:    fmt.Sprintf("T%06d", batchSeq),
				Kind:           domain.BatchSingle,
				OutputItemID:   itemID,
				InputQuantity:  decimal.NewFromInt(100),
				OutputQuantity: decimal.NewFromFloat(100 - s.loss),
				YieldLoss:      decimal.NewFromFloat(s.loss),
				ProducedAt:     s.at,
			}
			if err := tx.InsertBatch(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to seed batches: %v", err)
	}
}

func newItem(t *testing.T, store *memory.Store, name string) int64 {
	t.Helper()
	item := &domain.Item{Name: name, Category: domain.CategoryProcessed}
	err := store.WithTx(context.Background(), func(tx repository.Tx) error {
		return tx.CreateItem(context.Background(), item)
	})
	if err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	return item.ID
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newEngine(store repository.Reader, c *clock) *Engine {
	return NewEngine(store, cache.NewMemorySeasonalCache(), Config{Window: 30, MinSamples: 5, TTL: 24 * time.Hour, Now: c.Now})
}

func TestPredict_InsufficientData(t *testing.T) {
	store := memory.NewStore()
	c := &clock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	id := newItem(t, store, "A")
	for i := 0; i < 4; i++ {
		seedBatches(t, store, id, sample{15, c.now.AddDate(0, 0, -i)})
	}

	_, err := newEngine(store, c).Predict(context.Background(), &id, 1)
	var dataErr *domain.InsufficientDataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("Expected InsufficientDataError, got %v", err)
	}
	if dataErr.Required != 5 || dataErr.Available != 4 {
		t.Errorf("Expected 5 required 4 available, got %d/%d", dataErr.Required, dataErr.Available)
	}
}

func TestPredict_SeasonalFactorAndInterval(t *testing.T) {
	store := memory.NewStore()
	c := &clock{now: time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)}
	id := newItem(t, store, "A")

	// January runs hot, July runs cool.
	for i := 0; i < 5; i++ {
		seedBatches(t, store, id,
			sample{20, time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC)},
			sample{10, time.Date(2025, 7, 1+i, 0, 0, 0, 0, time.UTC)},
		)
	}

	engine := newEngine(store, c)
	f, err := engine.Predict(context.Background(), &id, 2)
	if err != nil {
		t.Fatalf("Failed to forecast: %v", err)
	}

	if f.PeriodLabel != "2026-01" {
		t.Errorf("Expected period 2026-01, got %s", f.PeriodLabel)
	}
	if math.Abs(f.CurrentMean-15) > 1e-9 {
		t.Errorf("Expected current mean 15, got %f", f.CurrentMean)
	}
	if math.Abs(f.SeasonalFactor-4.0/3.0) > 1e-9 {
		t.Errorf("Expected January factor 1.333, got %f", f.SeasonalFactor)
	}
	if math.Abs(f.Predicted-20) > 1e-9 {
		t.Errorf("Expected predicted 20, got %f", f.Predicted)
	}
	if math.Abs((f.CIUpper-f.Predicted)-(f.Predicted-f.CILower)) > 1e-9 || f.CIUpper <= f.Predicted {
		t.Errorf("Expected symmetric interval around %f, got [%f, %f]", f.Predicted, f.CILower, f.CIUpper)
	}
	if f.SampleSize != 10 {
		t.Errorf("Expected 10 samples, got %d", f.SampleSize)
	}

	again, err := engine.Predict(context.Background(), &id, 2)
	if err != nil {
		t.Fatalf("Failed second forecast: %v", err)
	}
	if again.Predicted != f.Predicted || again.CILower != f.CILower || again.CIUpper != f.CIUpper {
		t.Errorf("Expected identical forecasts, got %+v and %+v", f, again)
	}

	// A month without history has a neutral factor.
	march, _ := engine.Predict(context.Background(), &id, 4)
	if march.PeriodLabel != "2026-03" || march.SeasonalFactor != 1 {
		t.Errorf("Expected neutral 2026-03, got %s factor %f", march.PeriodLabel, march.SeasonalFactor)
	}
}

func TestPredict_Validation(t *testing.T) {
	store := memory.NewStore()
	c := &clock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	engine := newEngine(store, c)

	if _, err := engine.Predict(context.Background(), nil, -1); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest, got %v", err)
	}
	missing := int64(42)
	if _, err := engine.Predict(context.Background(), &missing, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSeasonalIndex_CacheTTL(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := &clock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	id := newItem(t, store, "A")
	seedBatches(t, store, id, sample{10, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)})

	engine := newEngine(store, c)
	first, err := engine.SeasonalIndex(ctx, false)
	if err != nil {
		t.Fatalf("Failed to compute index: %v", err)
	}
	if first.SampleSize != 1 {
		t.Fatalf("Expected 1 sample, got %d", first.SampleSize)
	}

	seedBatches(t, store, id, sample{20, time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC)})

	c.now = c.now.Add(time.Hour)
	cached, _ := engine.SeasonalIndex(ctx, false)
	if cached.SampleSize != 1 || !cached.ComputedAt.Equal(first.ComputedAt) {
		t.Errorf("Expected cached index within TTL, got %d samples computed at %s", cached.SampleSize, cached.ComputedAt)
	}

	forced, _ := engine.SeasonalIndex(ctx, true)
	if forced.SampleSize != 2 {
		t.Errorf("Expected forced refresh to see 2 samples, got %d", forced.SampleSize)
	}

	seedBatches(t, store, id, sample{30, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)})
	c.now = c.now.Add(25 * time.Hour)
	expired, _ := engine.SeasonalIndex(ctx, false)
	if expired.SampleSize != 3 {
		t.Errorf("Expected expired cache to recompute with 3 samples, got %d", expired.SampleSize)
	}
}

// recordingCache notes the calls made on the cache it wraps.
type recordingCache struct {
	cache.SeasonalCache
	calls []string
}

func (c *recordingCache) Set(ctx context.Context, index *domain.SeasonalIndex) error {
	c.calls = append(c.calls, "set")
	return c.SeasonalCache.Set(ctx, index)
}

func (c *recordingCache) Invalidate(ctx context.Context) error {
	c.calls = append(c.calls, "invalidate")
	return c.SeasonalCache.Invalidate(ctx)
}

func TestSeasonalIndex_ForceRefreshInvalidates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := &clock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	id := newItem(t, store, "A")
	seedBatches(t, store, id, sample{10, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)})

	rec := &recordingCache{SeasonalCache: cache.NewMemorySeasonalCache()}
	engine := NewEngine(store, rec, Config{Window: 30, MinSamples: 5, TTL: 24 * time.Hour, Now: c.Now})

	if _, err := engine.SeasonalIndex(ctx, false); err != nil {
		t.Fatalf("Failed to compute index: %v", err)
	}
	if _, err := engine.SeasonalIndex(ctx, false); err != nil {
		t.Fatalf("Failed to read cached index: %v", err)
	}
	if _, err := engine.SeasonalIndex(ctx, true); err != nil {
		t.Fatalf("Failed to refresh index: %v", err)
	}

	want := []string{"set", "invalidate", "set"}
	if len(rec.calls) != len(want) {
		t.Fatalf("Expected cache calls %v, got %v", want, rec.calls)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("Call %d: expected %s, got %s", i, want[i], rec.calls[i])
		}
	}
}

func TestSeries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := &clock{now: time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)}
	id := newItem(t, store, "A")

	engine := newEngine(store, c)
	empty, err := engine.Series(ctx, &id, 3)
	if err != nil {
		t.Fatalf("Expected short series instead of error, got %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected empty series without history, got %d", len(empty))
	}

	for i := 0; i < 6; i++ {
		seedBatches(t, store, id, sample{15 + float64(i), c.now.AddDate(0, 0, -i)})
	}
	series, err := engine.Series(ctx, &id, 3)
	if err != nil {
		t.Fatalf("Failed to forecast series: %v", err)
	}
	want := []string{"2025-12", "2026-01", "2026-02"}
	if len(series) != len(want) {
		t.Fatalf("Expected %d forecasts, got %d", len(want), len(series))
	}
	for i, f := range series {
		if f.PeriodLabel != want[i] || f.MonthsAhead != i+1 {
			t.Errorf("Entry %d: expected %s (+%d), got %s (+%d)", i, want[i], i+1, f.PeriodLabel, f.MonthsAhead)
		}
	}

	if none, _ := engine.Series(ctx, &id, 0); len(none) != 0 {
		t.Errorf("Expected empty series for zero months, got %d", len(none))
	}
}

func TestTargetPeriod(t *testing.T) {
	tests := []struct {
		now       time.Time
		ahead     int
		wantYear  int
		wantMonth time.Month
	}{
		{time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), 1, 2025, time.February},
		{time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), 1, 2026, time.January},
		{time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 0, 2025, time.June},
		{time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 30, 2027, time.December},
	}
	for _, tt := range tests {
		y, m := targetPeriod(tt.now, tt.ahead)
		if y != tt.wantYear || m != tt.wantMonth {
			t.Errorf("targetPeriod(%s, %d) = %d-%s, want %d-%s", tt.now.Format("2006-01"), tt.ahead, y, m, tt.wantYear, tt.wantMonth)
		}
	}
}

func TestRunRefresher_StopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	c := &clock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	engine := newEngine(store, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.RunRefresher(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Refresher did not stop after cancel")
	}

	if _, ok, _ := engine.cache.Get(context.Background()); !ok {
		t.Error("Expected refresher to populate the cache")
	}
}
