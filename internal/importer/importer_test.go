package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func writeXLSX(t *testing.T, dir, name string, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("Failed to build cell name: %v", err)
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("Failed to write row %d: %v", i, err)
		}
	}
	path := filepath.Join(dir, name)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("Failed to save %s: %v", name, err)
	}
	return path
}

func seedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "items.csv", "name,category,expected_loss\nGreenX,raw,0.15\nGreenY,RAW,\n")
	writeXLSX(t, dir, "recipes.xlsx", [][]interface{}{
		{"recipe", "item", "proportion"},
		{"House", "GreenX", "0.6"},
		{"House", "GreenY", "0.4"},
	})
	writeFile(t, dir, "receipts.csv", "item,quantity,unit_price,received_at,note\nGreenX,100,500,2025-03-01,\nGreenY,50,400,2025-03-02,first lot\n")
	writeFile(t, dir, "notes.txt", "ignored")
	return dir
}

func TestImportDir(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	im := New(store, func() time.Time { return now })

	summaries, err := im.ImportDir(ctx, seedDir(t))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []struct {
		kind    Kind
		created int
	}{
		{KindItems, 2},
		{KindRecipes, 1},
		{KindReceipts, 2},
	}
	if len(summaries) != len(want) {
		t.Fatalf("Expected %d summaries, got %d", len(want), len(summaries))
	}
	for i, w := range want {
		if summaries[i].Kind != w.kind || summaries[i].Created != w.created {
			t.Fatalf("Expected summary %d to be %s/%d, got %s/%d", i, w.kind, w.created, summaries[i].Kind, summaries[i].Created)
		}
	}

	greenX, err := store.FindItemByName(ctx, "GreenX")
	if err != nil {
		t.Fatalf("Expected GreenX to exist: %v", err)
	}
	if !greenX.Quantity.Equal(decimal.NewFromInt(100)) || !greenX.AvgCost.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("Expected GreenX 100 kg at 500, got %s at %s", greenX.Quantity, greenX.AvgCost)
	}
	if !greenX.ExpectedLoss.Valid || !greenX.ExpectedLoss.Decimal.Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("Expected GreenX expected loss 0.15, got %+v", greenX.ExpectedLoss)
	}

	recipe, err := store.FindRecipeByName(ctx, "house")
	if err != nil {
		t.Fatalf("Expected recipe House to exist: %v", err)
	}
	if len(recipe.Components) != 2 {
		t.Fatalf("Expected 2 components, got %d", len(recipe.Components))
	}

	batches, _ := store.ListInboundBatches(ctx, greenX.ID)
	if len(batches) != 1 || !batches[0].ReceivedAt.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Expected one inbound batch received 2025-03-01, got %+v", batches)
	}
}

func TestImportDirIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	im := New(store, nil)
	dir := seedDir(t)

	if _, err := im.ImportDir(ctx, dir); err != nil {
		t.Fatalf("Expected first import to succeed, got %v", err)
	}
	summaries, err := im.ImportDir(ctx, dir)
	if err != nil {
		t.Fatalf("Expected second import to succeed, got %v", err)
	}
	for _, s := range summaries {
		if s.Created != 0 || s.Skipped == 0 {
			t.Fatalf("Expected %s to be skipped entirely, got %+v", s.Kind, s)
		}
	}

	greenX, _ := store.FindItemByName(ctx, "GreenX")
	if !greenX.Quantity.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("Expected balance to stay 100, got %s", greenX.Quantity)
	}
}

func TestImportRollsBackFailedFile(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	im := New(store, nil)
	dir := t.TempDir()
	writeFile(t, dir, "items.csv", "name\nGreenX\n")
	writeFile(t, dir, "receipts.csv", "item,quantity,unit_price\nGreenX,10,100\nMissing,5,100\n")

	summaries, err := im.ImportDir(ctx, dir)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if len(summaries) != 1 || summaries[0].Kind != KindItems {
		t.Fatalf("Expected only the items summary, got %+v", summaries)
	}

	greenX, _ := store.FindItemByName(ctx, "GreenX")
	if !greenX.Quantity.IsZero() {
		t.Fatalf("Expected receipts to roll back, balance is %s", greenX.Quantity)
	}
}

func TestImportRejectsBadRows(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{"missing column", "items.csv", "category\nRAW\n", nil},
		{"bad category", "items.csv", "name,category\nGreenX,FROZEN\n", domain.ErrInvalidRequest},
		{"bad proportions", "recipes.csv", "recipe,item,proportion\nHouse,GreenX,0.5\n", domain.ErrInvalidRecipe},
		{"negative quantity", "receipts.csv", "item,quantity,unit_price\nGreenX,-1,100\n", domain.ErrInvalidQuantity},
		{"bad date", "receipts.csv", "item,quantity,unit_price,received_at\nGreenX,1,100,yesterday\n", domain.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewStore()
			im := New(store, nil)
			dir := t.TempDir()
			if _, err := im.ImportFile(ctx, writeFile(t, dir, "items-base.csv", "name\nGreenX\n")); err != nil {
				t.Fatalf("Failed to seed base item: %v", err)
			}

			_, err := im.ImportFile(ctx, writeFile(t, dir, tt.file, tt.content))
			if err == nil {
				t.Fatalf("Expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		path string
		want Kind
		ok   bool
	}{
		{"/seed/items.csv", KindItems, true},
		{"Recipes-2025.xlsx", KindRecipes, true},
		{"receipts_march.csv", KindReceipts, true},
		{"suppliers.csv", "", false},
	}
	for _, tt := range tests {
		got, ok := KindOf(tt.path)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("KindOf(%q): expected %q/%v, got %q/%v", tt.path, tt.want, tt.ok, got, ok)
		}
	}
}
