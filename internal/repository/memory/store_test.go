package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/shopspring/decimal"
)

func TestStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateItem(ctx, &domain.Item{Name: "GreenX", Category: domain.CategoryRaw}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	items, _ := store.ListItems(ctx)
	if len(items) != 0 {
		t.Errorf("Expected rolled back transaction to leave no items, got %d", len(items))
	}
}

func TestStore_CommitVisibleAfterTx(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var id int64
	err := store.WithTx(ctx, func(tx repository.Tx) error {
		item := &domain.Item{Name: "GreenX", Category: domain.CategoryRaw}
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		id = item.ID
		return tx.UpdateItemStock(ctx, item.ID, decimal.NewFromInt(10), decimal.NewFromInt(5000))
	})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	item, err := store.GetItem(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if !item.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected quantity 10, got %s", item.Quantity)
	}

	if _, err := store.GetItem(ctx, id+1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown item, got %v", err)
	}
}

func TestStore_DuplicateItemName(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	create := func() error {
		return store.WithTx(ctx, func(tx repository.Tx) error {
			return tx.CreateItem(ctx, &domain.Item{Name: "GreenX", Category: domain.CategoryRaw})
		})
	}
	if err := create(); err != nil {
		t.Fatalf("First create failed: %v", err)
	}
	if err := create(); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
}

func TestStore_InboundBatchesFIFOOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	err := store.WithTx(ctx, func(tx repository.Tx) error {
		for _, offset := range []int{3, 1, 2} {
			b := &domain.InboundBatch{
				ItemID:     1,
				Quantity:   decimal.NewFromInt(int64(offset)),
				Remaining:  decimal.NewFromInt(int64(offset)),
				ReceivedAt: base.AddDate(0, 0, offset),
			}
			if err := tx.CreateInboundBatch(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to seed batches: %v", err)
	}

	batches, _ := store.ListInboundBatches(ctx, 1)
	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches, got %d", len(batches))
	}
	for i := 1; i < len(batches); i++ {
		if batches[i].ReceivedAt.Before(batches[i-1].ReceivedAt) {
			t.Errorf("Batches not in receipt order at %d", i)
		}
	}
}

func TestStore_QueryLedgerFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	err := store.WithTx(ctx, func(tx repository.Tx) error {
		types := []domain.ChangeType{domain.ChangeReceipt, domain.ChangeAdjustment, domain.ChangeReceipt, domain.ChangeWaste}
		for i, ct := range types {
			e := &domain.LedgerEntry{ItemID: 1, ChangeType: ct, Delta: decimal.NewFromInt(1), CreatedAt: base.Add(time.Duration(i) * time.Hour)}
			if err := tx.InsertLedgerEntry(ctx, e); err != nil {
				return err
			}
		}
		return tx.InsertLedgerEntry(ctx, &domain.LedgerEntry{ItemID: 2, ChangeType: domain.ChangeReceipt, CreatedAt: base})
	})
	if err != nil {
		t.Fatalf("Failed to seed ledger: %v", err)
	}

	entries, total, _ := store.QueryLedger(ctx, repository.LedgerFilter{ItemID: 1, ChangeTypes: []domain.ChangeType{domain.ChangeReceipt}})
	if total != 2 || len(entries) != 2 {
		t.Errorf("Expected 2 receipts, got total=%d len=%d", total, len(entries))
	}

	from := base.Add(time.Hour)
	to := base.Add(3 * time.Hour)
	entries, total, _ = store.QueryLedger(ctx, repository.LedgerFilter{ItemID: 1, From: &from, To: &to})
	if total != 2 {
		t.Errorf("Expected 2 entries in [1h,3h), got %d", total)
	}

	entries, total, _ = store.QueryLedger(ctx, repository.LedgerFilter{ItemID: 1, Page: 2, PageSize: 3})
	if total != 4 || len(entries) != 1 {
		t.Errorf("Expected second page with 1 of 4 entries, got total=%d len=%d", total, len(entries))
	}
	if entries[0].ChangeType != domain.ChangeWaste {
		t.Errorf("Expected last entry to be WASTE, got %s", entries[0].ChangeType)
	}
}

func TestStore_LastBatchNumber(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.WithTx(ctx, func(tx repository.Tx) error {
		for _, n := range []string{"R250301-001", "R250301-999", "R250301-1000", "R250302-001"} {
			if err := tx.InsertBatch(ctx, &domain.Batch{BatchNumber: n}); err != nil {
				return err
			}
		}
		last, err := tx.LastBatchNumber(ctx, "R250301-")
		if err != nil {
			return err
		}
		if last != "R250301-1000" {
			t.Errorf("Expected R250301-1000, got %s", last)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}
