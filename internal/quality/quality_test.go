package quality

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/andresuchdata/roastery/internal/repository/memory"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(store repository.Store) *Service {
	return NewService(store, Config{Now: func() time.Time { return testNow }})
}

func createItem(t *testing.T, store repository.Store, name string, expectedLoss string) *domain.Item {
	t.Helper()
	item := &domain.Item{Name: name, Category: domain.CategoryProcessed}
	if expectedLoss != "" {
		item.ExpectedLoss = decimal.NewNullDecimal(decimal.RequireFromString(expectedLoss))
	}
	err := store.WithTx(context.Background(), func(tx repository.Tx) error {
		return tx.CreateItem(context.Background(), item)
	})
	if err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	return item
}

// produce writes a batch with the given loss and runs the analyzer on it.
func produce(t *testing.T, store repository.Store, a *Analyzer, item *domain.Item, loss float64, at time.Time) *domain.QualityWarning {
	t.Helper()
	var warning *domain.QualityWarning
	err := store.WithTx(context.Background(), func(tx repository.Tx) error {
		batch := &domain.Batch{
			BatchNumber:    fmt.Sprintf("R%s-%d", at.Format("060102150405"), item.ID),
			Kind:           domain.BatchSingle,
			OutputItemID:   item.ID,
			InputQuantity:  decimal.NewFromInt(100),
			OutputQuantity: decimal.NewFromFloat(100 - loss),
			YieldLoss:      decimal.NewFromFloat(loss),
			ProducedAt:     at,
		}
		if err := tx.InsertBatch(context.Background(), batch); err != nil {
			return err
		}
		var err error
		warning, err = a.Evaluate(context.Background(), tx, batch, item)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to produce batch: %v", err)
	}
	return warning
}

func TestEvaluate_ConsecutiveCriticalWarnings(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store)
	item := createItem(t, store, "GreenX-Light", "0.17")

	losses := []float64{17, 17, 17, 25, 25}
	var warnings []*domain.QualityWarning
	for i, loss := range losses {
		warnings = append(warnings, produce(t, store, svc.Analyzer(), item, loss, testNow.Add(time.Duration(i)*time.Hour)))
	}

	for i := 0; i < 3; i++ {
		if warnings[i] != nil {
			t.Errorf("Batch %d: expected no warning, got %+v", i+1, warnings[i])
		}
	}
	for i, wantCount := range map[int]int{3: 1, 4: 2} {
		w := warnings[i]
		if w == nil {
			t.Fatalf("Batch %d: expected a warning", i+1)
		}
		if w.ConsecutiveCount != wantCount {
			t.Errorf("Batch %d: expected consecutive count %d, got %d", i+1, wantCount, w.ConsecutiveCount)
		}
		if w.Severity != domain.SeverityCritical {
			t.Errorf("Batch %d: expected CRITICAL, got %s", i+1, w.Severity)
		}
		if w.Direction != domain.DirectionHigh {
			t.Errorf("Batch %d: expected HIGH, got %s", i+1, w.Direction)
		}
		if !w.Deviation.Equal(decimal.NewFromInt(8)) {
			t.Errorf("Batch %d: expected deviation 8, got %s", i+1, w.Deviation)
		}
	}
}

func TestEvaluate_Grading(t *testing.T) {
	tests := []struct {
		name          string
		loss          float64
		wantWarning   bool
		wantDirection domain.WarningDirection
		wantSeverity  domain.WarningSeverity
	}{
		{name: "within threshold", loss: 18, wantWarning: false},
		{name: "exactly at threshold", loss: 20, wantWarning: false},
		{name: "high warning", loss: 21, wantWarning: true, wantDirection: domain.DirectionHigh, wantSeverity: domain.SeverityWarning},
		{name: "low warning", loss: 13, wantWarning: true, wantDirection: domain.DirectionLow, wantSeverity: domain.SeverityWarning},
		{name: "low critical", loss: 10, wantWarning: true, wantDirection: domain.DirectionLow, wantSeverity: domain.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			svc := newTestService(store)
			item := createItem(t, store, "GreenX-Light", "0.17")

			w := produce(t, store, svc.Analyzer(), item, tt.loss, testNow)
			if (w != nil) != tt.wantWarning {
				t.Fatalf("Expected warning=%v, got %+v", tt.wantWarning, w)
			}
			if w == nil {
				return
			}
			if w.Direction != tt.wantDirection || w.Severity != tt.wantSeverity {
				t.Errorf("Expected %s/%s, got %s/%s", tt.wantDirection, tt.wantSeverity, w.Direction, w.Severity)
			}
		})
	}
}

func TestEvaluate_DefaultExpectedLoss(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store)
	item := createItem(t, store, "Mystery", "")

	if got := svc.Analyzer().ExpectedLossPercent(item); !got.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Expected default expected loss 15%%, got %s", got)
	}
	if w := produce(t, store, svc.Analyzer(), item, 16, testNow); w != nil {
		t.Errorf("Expected no warning at 16%% against default 15%%, got %+v", w)
	}
}

func TestTrend(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store)
	item := createItem(t, store, "GreenX-Light", "0.17")
	other := createItem(t, store, "GreenY-Dark", "0.17")

	// Outside the window.
	produce(t, store, svc.Analyzer(), item, 40, testNow.AddDate(0, 0, -60))

	for i, loss := range []float64{16, 18, 25, 26} {
		produce(t, store, svc.Analyzer(), item, loss, testNow.AddDate(0, 0, -i))
	}
	produce(t, store, svc.Analyzer(), other, 17, testNow)

	report, err := svc.Trend(context.Background(), &item.ID, 30)
	if err != nil {
		t.Fatalf("Failed to compute trend: %v", err)
	}
	if report.SampleSize != 4 {
		t.Errorf("Expected 4 samples, got %d", report.SampleSize)
	}
	if math.Abs(report.Mean-21.25) > 1e-9 {
		t.Errorf("Expected mean 21.25, got %f", report.Mean)
	}
	if report.Min != 16 || report.Max != 26 {
		t.Errorf("Expected min 16 max 26, got %f/%f", report.Min, report.Max)
	}
	if report.AnomalyCount != 2 || report.Status != domain.StatusAttention {
		t.Errorf("Expected 2 anomalies and ATTENTION, got %d %s", report.AnomalyCount, report.Status)
	}

	global, err := svc.Trend(context.Background(), nil, 30)
	if err != nil {
		t.Fatalf("Failed to compute global trend: %v", err)
	}
	if global.SampleSize != 5 {
		t.Errorf("Expected 5 global samples, got %d", global.SampleSize)
	}

	if _, err := svc.Trend(context.Background(), nil, 0); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for zero window, got %v", err)
	}
}

func TestTrendStatus(t *testing.T) {
	tests := []struct {
		anomalies int
		want      domain.HealthStatus
	}{
		{0, domain.StatusNormal},
		{1, domain.StatusNormal},
		{2, domain.StatusAttention},
		{4, domain.StatusAttention},
		{5, domain.StatusCritical},
	}
	for _, tt := range tests {
		if got := trendStatus(tt.anomalies); got != tt.want {
			t.Errorf("trendStatus(%d) = %s, want %s", tt.anomalies, got, tt.want)
		}
	}
}

func TestPerItemComparison(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store)
	a := createItem(t, store, "A", "0.17")
	b := createItem(t, store, "B", "0.17")
	c := createItem(t, store, "C", "0.17")

	produce(t, store, svc.Analyzer(), a, 15, testNow)
	produce(t, store, svc.Analyzer(), b, 17, testNow)
	produce(t, store, svc.Analyzer(), c, 22, testNow)

	report, err := svc.PerItemComparison(context.Background(), 7)
	if err != nil {
		t.Fatalf("Failed to compare: %v", err)
	}
	if math.Abs(report.GlobalMean-18) > 1e-9 {
		t.Errorf("Expected global mean 18, got %f", report.GlobalMean)
	}
	if len(report.Items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(report.Items))
	}

	first := report.Items[0]
	if first.ItemID != c.ID || first.Rank != 1 || first.Status != domain.StatusCritical {
		t.Errorf("Expected C ranked first as CRITICAL, got %+v", first)
	}
	second := report.Items[1]
	if second.ItemID != a.ID || second.Status != domain.StatusAttention {
		t.Errorf("Expected A second as ATTENTION, got %+v", second)
	}
	if third := report.Items[2]; third.ItemID != b.ID || third.Status != domain.StatusNormal {
		t.Errorf("Expected B last as NORMAL, got %+v", third)
	}
}

func TestResolve(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store)
	item := createItem(t, store, "GreenX-Light", "0.17")
	w := produce(t, store, svc.Analyzer(), item, 30, testNow)
	if w == nil {
		t.Fatal("Expected a warning")
	}

	resolved, err := svc.Resolve(context.Background(), w.ID, "burner recalibrated")
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if !resolved.Resolved || resolved.ResolvedAt == nil || !resolved.ResolvedAt.Equal(testNow) {
		t.Errorf("Expected resolved at %s, got %+v", testNow, resolved)
	}

	_, err = svc.Resolve(context.Background(), w.ID, "again")
	if !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("Expected ErrAlreadyResolved, got %v", err)
	}
	stored, _ := store.GetWarning(context.Background(), w.ID)
	if stored.ResolutionNote != "burner recalibrated" {
		t.Errorf("Expected second resolve to leave note unchanged, got %q", stored.ResolutionNote)
	}

	if _, err := svc.Resolve(context.Background(), 999, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	unresolved := false
	open, _ := svc.Warnings(context.Background(), repository.WarningFilter{Resolved: &unresolved})
	if len(open) != 0 {
		t.Errorf("Expected no open warnings, got %d", len(open))
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if s.Mean != 5 {
		t.Errorf("Expected mean 5, got %f", s.Mean)
	}
	if math.Abs(s.Stdev-2.138089935) > 1e-6 {
		t.Errorf("Expected sample stdev 2.138, got %f", s.Stdev)
	}
	if one := Summarize([]float64{3}); one.Stdev != 0 {
		t.Errorf("Expected zero stdev for one value, got %f", one.Stdev)
	}
}
