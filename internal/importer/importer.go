// Package importer seeds the catalog and opening stock from CSV or XLSX
// sheets. The sheet kind is taken from the file name: items*, recipes* and
// receipts*. Each file is applied in its own transaction and re-importing a
// file skips rows that already exist.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/roastery/internal/catalog"
	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/ledger"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindItems    Kind = "items"
	KindRecipes  Kind = "recipes"
	KindReceipts Kind = "receipts"
)

// order is the sequence files are applied in: recipes and receipts refer to
// items by name.
var order = map[Kind]int{KindItems: 0, KindRecipes: 1, KindReceipts: 2}

// KindOf classifies a seed file by its base name.
func KindOf(path string) (Kind, bool) {
	base := strings.ToLower(filepath.Base(path))
	for _, kind := range []Kind{KindItems, KindRecipes, KindReceipts} {
		if strings.HasPrefix(base, string(kind)) {
			return kind, true
		}
	}
	return "", false
}

// Supported reports whether path has a readable sheet extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

type Summary struct {
	File    string
	Kind    Kind
	Created int
	Skipped int
}

const defaultWorkers = 4

type Importer struct {
	store   repository.Store
	now     func() time.Time
	workers int
}

func New(store repository.Store, now func() time.Time) *Importer {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Importer{store: store, now: now, workers: defaultWorkers}
}

// SetWorkers sets how many files are parsed concurrently.
func (im *Importer) SetWorkers(n int) {
	im.workers = n
}

// ImportDir imports every seed file directly inside dir.
func (im *Importer) ImportDir(ctx context.Context, dir string) ([]Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed dir %s: %w", dir, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !Supported(entry.Name()) {
			continue
		}
		if _, ok := KindOf(entry.Name()); !ok {
			log.Debug().Str("file", entry.Name()).Msg("skipping unrecognised seed file")
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return im.ImportFiles(ctx, paths)
}

// ImportFiles parses the files concurrently, then applies items first, then
// recipes, then receipts.
func (im *Importer) ImportFiles(ctx context.Context, paths []string) ([]Summary, error) {
	sorted := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, ok := KindOf(path); !ok {
			return nil, fmt.Errorf("%w: cannot tell the kind of seed file %s", domain.ErrInvalidRequest, path)
		}
		sorted = append(sorted, path)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		ki, _ := KindOf(sorted[i])
		kj, _ := KindOf(sorted[j])
		if order[ki] != order[kj] {
			return order[ki] < order[kj]
		}
		return sorted[i] < sorted[j]
	})

	tables, err := parseParallel(ctx, sorted, im.workers)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(sorted))
	for i, path := range sorted {
		kind, _ := KindOf(path)
		summary, err := im.apply(ctx, path, kind, tables[i])
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

func (im *Importer) ImportFile(ctx context.Context, path string) (*Summary, error) {
	kind, ok := KindOf(path)
	if !ok {
		return nil, fmt.Errorf("%w: cannot tell the kind of seed file %s", domain.ErrInvalidRequest, path)
	}
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	return im.apply(ctx, path, kind, t)
}

// apply writes one parsed file in a single transaction.
func (im *Importer) apply(ctx context.Context, path string, kind Kind, t *table) (*Summary, error) {
	summary := &Summary{File: path, Kind: kind}
	err := im.store.WithTx(ctx, func(tx repository.Tx) error {
		switch kind {
		case KindItems:
			return im.importItems(ctx, tx, t, summary)
		case KindRecipes:
			return im.importRecipes(ctx, tx, t, summary)
		default:
			return im.importReceipts(ctx, tx, t, summary)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", path, err)
	}

	log.Info().
		Str("file", path).
		Str("kind", string(kind)).
		Int("created", summary.Created).
		Int("skipped", summary.Skipped).
		Msg("seed file imported")
	return summary, nil
}

func rowError(row int, err error) error {
	// +2: 1-based and the header row.
	return fmt.Errorf("row %d: %w", row+2, err)
}

// lookupItem returns the item named name, or nil when it does not exist.
func lookupItem(ctx context.Context, tx repository.Tx, name string) (*domain.Item, error) {
	item, err := tx.FindItemByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return item, err
}

func parseDecimal(col, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidRequest, col, value)
	}
	return d, nil
}

func (im *Importer) importItems(ctx context.Context, tx repository.Tx, t *table, summary *Summary) error {
	if err := t.require("name"); err != nil {
		return err
	}
	for i, row := range t.rows {
		name := t.get(row, "name")
		existing, err := lookupItem(ctx, tx, name)
		if err != nil {
			return rowError(i, err)
		}
		if existing != nil {
			summary.Skipped++
			continue
		}

		req := catalog.ItemRequest{
			Name:     name,
			Category: t.get(row, "category"),
			Profile:  t.get(row, "profile"),
		}
		if raw := t.get(row, "expected_loss"); raw != "" {
			loss, err := parseDecimal("expected_loss", raw)
			if err != nil {
				return rowError(i, err)
			}
			req.ExpectedLoss = &loss
		}

		item, err := catalog.NewItem(req)
		if err != nil {
			return rowError(i, err)
		}
		item.CreatedAt = im.now()
		if err := tx.CreateItem(ctx, item); err != nil {
			return rowError(i, err)
		}
		summary.Created++
	}
	return nil
}

// importRecipes reads one component per row; rows sharing a recipe name form
// one recipe.
func (im *Importer) importRecipes(ctx context.Context, tx repository.Tx, t *table, summary *Summary) error {
	if err := t.require("recipe", "item", "proportion"); err != nil {
		return err
	}

	var names []string
	recipes := make(map[string]*domain.Recipe)
	for i, row := range t.rows {
		name := t.get(row, "recipe")
		if name == "" {
			return rowError(i, fmt.Errorf("%w: recipe name is required", domain.ErrInvalidRequest))
		}
		key := strings.ToLower(name)
		recipe, ok := recipes[key]
		if !ok {
			recipe = &domain.Recipe{Name: name, CreatedAt: im.now()}
			recipes[key] = recipe
			names = append(names, key)
		}

		itemName := t.get(row, "item")
		item, err := lookupItem(ctx, tx, itemName)
		if err != nil {
			return rowError(i, err)
		}
		if item == nil {
			return rowError(i, domain.NewNotFound("item", itemName))
		}
		proportion, err := parseDecimal("proportion", t.get(row, "proportion"))
		if err != nil {
			return rowError(i, err)
		}
		recipe.Components = append(recipe.Components, domain.RecipeComponent{ItemID: item.ID, Proportion: proportion})
	}

	for _, key := range names {
		recipe := recipes[key]
		if _, err := tx.FindRecipeByName(ctx, recipe.Name); err == nil {
			summary.Skipped++
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err := recipe.Validate(); err != nil {
			return fmt.Errorf("recipe %s: %w", recipe.Name, err)
		}
		if err := tx.CreateRecipe(ctx, recipe); err != nil {
			return fmt.Errorf("recipe %s: %w", recipe.Name, err)
		}
		summary.Created++
	}
	return nil
}

// importReceipts skips a row when the item already has an inbound batch with
// the same receipt time, quantity and price.
func (im *Importer) importReceipts(ctx context.Context, tx repository.Tx, t *table, summary *Summary) error {
	if err := t.require("item", "quantity", "unit_price"); err != nil {
		return err
	}
	now := im.now()
	for i, row := range t.rows {
		itemName := t.get(row, "item")
		item, err := lookupItem(ctx, tx, itemName)
		if err != nil {
			return rowError(i, err)
		}
		if item == nil {
			return rowError(i, domain.NewNotFound("item", itemName))
		}

		qty, err := parseDecimal("quantity", t.get(row, "quantity"))
		if err != nil {
			return rowError(i, err)
		}
		if !qty.IsPositive() {
			return rowError(i, domain.InvalidQuantity("quantity", qty))
		}
		price, err := parseDecimal("unit_price", t.get(row, "unit_price"))
		if err != nil {
			return rowError(i, err)
		}
		if price.IsNegative() {
			return rowError(i, fmt.Errorf("%w: unit_price must not be negative, got %s", domain.ErrInvalidQuantity, price))
		}

		receivedAt := now
		if raw := t.get(row, "received_at"); raw != "" {
			receivedAt, err = parseTime(raw)
			if err != nil {
				return rowError(i, err)
			}
		}

		dup, err := alreadyReceived(ctx, tx, item.ID, receivedAt, qty, price)
		if err != nil {
			return rowError(i, err)
		}
		if dup {
			summary.Skipped++
			continue
		}

		if _, err := ledger.Receive(ctx, tx, ledger.ReceiveRequest{
			ItemID:     item.ID,
			Quantity:   qty,
			UnitPrice:  price,
			ReceivedAt: receivedAt,
			Note:       t.get(row, "note"),
		}, now); err != nil {
			return rowError(i, err)
		}
		summary.Created++
	}
	return nil
}

func alreadyReceived(ctx context.Context, tx repository.Tx, itemID int64, at time.Time, qty, price decimal.Decimal) (bool, error) {
	batches, err := tx.ListInboundBatches(ctx, itemID)
	if err != nil {
		return false, err
	}
	for _, b := range batches {
		if b.ReceivedAt.Equal(at) && b.Quantity.Equal(qty) && b.UnitPrice.Equal(price) {
			return true, nil
		}
	}
	return false, nil
}

func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid received_at %q", domain.ErrInvalidRequest, value)
	}
	return t, nil
}
