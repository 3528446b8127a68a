// Package memory is an in-process implementation of repository.Store. A
// transaction works on a private copy of the state and publishes it on
// commit; one transaction runs at a time.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/shopspring/decimal"
)

type counters struct {
	item, recipe, inbound, ledger, batch, warning int64
}

type state struct {
	items    map[int64]domain.Item
	recipes  map[int64]domain.Recipe
	inbound  map[int64]domain.InboundBatch
	ledger   []domain.LedgerEntry
	batches  map[int64]domain.Batch
	warnings map[int64]domain.QualityWarning
	seq      counters
}

func newState() *state {
	return &state{
		items:    make(map[int64]domain.Item),
		recipes:  make(map[int64]domain.Recipe),
		inbound:  make(map[int64]domain.InboundBatch),
		batches:  make(map[int64]domain.Batch),
		warnings: make(map[int64]domain.QualityWarning),
	}
}

func (s *state) clone() *state {
	c := &state{
		items:    make(map[int64]domain.Item, len(s.items)),
		recipes:  make(map[int64]domain.Recipe, len(s.recipes)),
		inbound:  make(map[int64]domain.InboundBatch, len(s.inbound)),
		ledger:   append([]domain.LedgerEntry(nil), s.ledger...),
		batches:  make(map[int64]domain.Batch, len(s.batches)),
		warnings: make(map[int64]domain.QualityWarning, len(s.warnings)),
		seq:      s.seq,
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.recipes {
		v.Components = append([]domain.RecipeComponent(nil), v.Components...)
		c.recipes[k] = v
	}
	for k, v := range s.inbound {
		c.inbound[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.warnings {
		c.warnings[k] = v
	}
	return c
}

// Store keeps inventory state in memory.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the time source used to stamp new rows.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Verify interface compliance
var _ repository.Store = (*Store)(nil)

// WithTx runs fn against a copy of the state and commits it when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{view: view{st: work}, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) read() view {
	return view{st: s.st}
}

func (s *Store) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetItem(ctx, id)
}

func (s *Store) FindItemByName(ctx context.Context, name string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindItemByName(ctx, name)
}

func (s *Store) FindOutputItem(ctx context.Context, key repository.OutputKey) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindOutputItem(ctx, key)
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListItems(ctx)
}

func (s *Store) GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetRecipe(ctx, id)
}

func (s *Store) FindRecipeByName(ctx context.Context, name string) (*domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindRecipeByName(ctx, name)
}

func (s *Store) ListInboundBatches(ctx context.Context, itemID int64) ([]domain.InboundBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListInboundBatches(ctx, itemID)
}

func (s *Store) GetLedgerEntry(ctx context.Context, id int64) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetLedgerEntry(ctx, id)
}

func (s *Store) QueryLedger(ctx context.Context, filter repository.LedgerFilter) ([]domain.LedgerEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().QueryLedger(ctx, filter)
}

func (s *Store) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetBatch(ctx, id)
}

func (s *Store) ListBatches(ctx context.Context, filter repository.BatchFilter) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListBatches(ctx, filter)
}

func (s *Store) GetWarning(ctx context.Context, id int64) (*domain.QualityWarning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetWarning(ctx, id)
}

func (s *Store) ListWarnings(ctx context.Context, filter repository.WarningFilter) ([]domain.QualityWarning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListWarnings(ctx, filter)
}

// view answers reads against one state snapshot.
type view struct {
	st *state
}

func (v view) GetItem(_ context.Context, id int64) (*domain.Item, error) {
	item, ok := v.st.items[id]
	if !ok {
		return nil, domain.NewNotFound("item", id)
	}
	return &item, nil
}

func (v view) FindItemByName(_ context.Context, name string) (*domain.Item, error) {
	for _, item := range v.st.items {
		if strings.EqualFold(item.Name, strings.TrimSpace(name)) {
			found := item
			return &found, nil
		}
	}
	return nil, domain.NewNotFound("item", name)
}

func (v view) FindOutputItem(_ context.Context, key repository.OutputKey) (*domain.Item, error) {
	for _, item := range v.st.items {
		switch {
		case key.RecipeID != nil:
			if item.RecipeID != nil && *item.RecipeID == *key.RecipeID {
				found := item
				return &found, nil
			}
		case key.ParentItemID != nil:
			if item.ParentItemID != nil && *item.ParentItemID == *key.ParentItemID && item.Profile == key.Profile {
				found := item
				return &found, nil
			}
		}
	}
	return nil, domain.NewNotFound("output item", key.Profile)
}

func (v view) ListItems(_ context.Context) ([]domain.Item, error) {
	items := make([]domain.Item, 0, len(v.st.items))
	for _, item := range v.st.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (v view) GetRecipe(_ context.Context, id int64) (*domain.Recipe, error) {
	recipe, ok := v.st.recipes[id]
	if !ok {
		return nil, domain.NewNotFound("recipe", id)
	}
	recipe.Components = append([]domain.RecipeComponent(nil), recipe.Components...)
	return &recipe, nil
}

func (v view) FindRecipeByName(ctx context.Context, name string) (*domain.Recipe, error) {
	for id, recipe := range v.st.recipes {
		if strings.EqualFold(recipe.Name, strings.TrimSpace(name)) {
			return v.GetRecipe(ctx, id)
		}
	}
	return nil, domain.NewNotFound("recipe", name)
}

func (v view) ListInboundBatches(_ context.Context, itemID int64) ([]domain.InboundBatch, error) {
	var batches []domain.InboundBatch
	for _, b := range v.st.inbound {
		if b.ItemID == itemID {
			batches = append(batches, b)
		}
	}
	// FIFO order: oldest receipt first, insertion order breaks ties
	sort.Slice(batches, func(i, j int) bool {
		if !batches[i].ReceivedAt.Equal(batches[j].ReceivedAt) {
			return batches[i].ReceivedAt.Before(batches[j].ReceivedAt)
		}
		return batches[i].ID < batches[j].ID
	})
	return batches, nil
}

func (v view) GetLedgerEntry(_ context.Context, id int64) (*domain.LedgerEntry, error) {
	for _, e := range v.st.ledger {
		if e.ID == id {
			entry := e
			return &entry, nil
		}
	}
	return nil, domain.NewNotFound("ledger entry", id)
}

func (v view) QueryLedger(_ context.Context, filter repository.LedgerFilter) ([]domain.LedgerEntry, int, error) {
	filter.Normalize()

	types := make(map[domain.ChangeType]struct{}, len(filter.ChangeTypes))
	for _, ct := range filter.ChangeTypes {
		types[ct] = struct{}{}
	}

	var matched []domain.LedgerEntry
	for _, e := range v.st.ledger {
		if e.ItemID != filter.ItemID {
			continue
		}
		if len(types) > 0 {
			if _, ok := types[e.ChangeType]; !ok {
				continue
			}
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !e.CreatedAt.Before(*filter.To) {
			continue
		}
		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	start := filter.Offset()
	if start >= total {
		return []domain.LedgerEntry{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (v view) GetBatch(_ context.Context, id int64) (*domain.Batch, error) {
	b, ok := v.st.batches[id]
	if !ok {
		return nil, domain.NewNotFound("batch", id)
	}
	return &b, nil
}

func (v view) ListBatches(_ context.Context, filter repository.BatchFilter) ([]domain.Batch, error) {
	var batches []domain.Batch
	for _, b := range v.st.batches {
		if filter.OutputItemID != nil && b.OutputItemID != *filter.OutputItemID {
			continue
		}
		if filter.From != nil && b.ProducedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !b.ProducedAt.Before(*filter.To) {
			continue
		}
		batches = append(batches, b)
	}

	sort.Slice(batches, func(i, j int) bool {
		less := batches[i].ID < batches[j].ID
		if !batches[i].ProducedAt.Equal(batches[j].ProducedAt) {
			less = batches[i].ProducedAt.Before(batches[j].ProducedAt)
		}
		if filter.NewestFirst {
			return !less
		}
		return less
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(batches) {
			return []domain.Batch{}, nil
		}
		batches = batches[filter.Offset:]
	}
	if filter.Limit > 0 && len(batches) > filter.Limit {
		batches = batches[:filter.Limit]
	}
	return batches, nil
}

func (v view) GetWarning(_ context.Context, id int64) (*domain.QualityWarning, error) {
	w, ok := v.st.warnings[id]
	if !ok {
		return nil, domain.NewNotFound("warning", id)
	}
	return &w, nil
}

func (v view) ListWarnings(_ context.Context, filter repository.WarningFilter) ([]domain.QualityWarning, error) {
	warnings := []domain.QualityWarning{}
	for _, w := range v.st.warnings {
		if filter.ItemID != nil && w.ItemID != *filter.ItemID {
			continue
		}
		if filter.Resolved != nil && w.Resolved != *filter.Resolved {
			continue
		}
		if filter.From != nil && w.CreatedAt.Before(*filter.From) {
			continue
		}
		warnings = append(warnings, w)
	}
	sort.Slice(warnings, func(i, j int) bool {
		if !warnings[i].CreatedAt.Equal(warnings[j].CreatedAt) {
			return warnings[i].CreatedAt.After(warnings[j].CreatedAt)
		}
		return warnings[i].ID > warnings[j].ID
	})
	return warnings, nil
}

// tx mutates a private copy of the state.
type tx struct {
	view
	now func() time.Time
}

// LockItems is a no-op: the store runs one transaction at a time.
func (t *tx) LockItems(_ context.Context, _ ...int64) error { return nil }

func (t *tx) LockKey(_ context.Context, _ string) error { return nil }

func (t *tx) stamp(ts *time.Time) {
	if ts.IsZero() {
		*ts = t.now()
	}
}

func (t *tx) CreateItem(ctx context.Context, item *domain.Item) error {
	if _, err := t.FindItemByName(ctx, item.Name); err == nil {
		return fmt.Errorf("%w: item %q already exists", domain.ErrConflict, item.Name)
	}
	t.st.seq.item++
	item.ID = t.st.seq.item
	t.stamp(&item.CreatedAt)
	item.UpdatedAt = item.CreatedAt
	t.st.items[item.ID] = *item
	return nil
}

func (t *tx) UpdateItemStock(_ context.Context, id int64, quantity, avgCost decimal.Decimal) error {
	item, ok := t.st.items[id]
	if !ok {
		return domain.NewNotFound("item", id)
	}
	item.Quantity = quantity
	item.AvgCost = avgCost
	item.UpdatedAt = t.now()
	t.st.items[id] = item
	return nil
}

func (t *tx) CreateRecipe(ctx context.Context, recipe *domain.Recipe) error {
	if _, err := t.FindRecipeByName(ctx, recipe.Name); err == nil {
		return fmt.Errorf("%w: recipe %q already exists", domain.ErrConflict, recipe.Name)
	}
	t.st.seq.recipe++
	recipe.ID = t.st.seq.recipe
	t.stamp(&recipe.CreatedAt)
	for i := range recipe.Components {
		recipe.Components[i].RecipeID = recipe.ID
	}
	stored := *recipe
	stored.Components = append([]domain.RecipeComponent(nil), recipe.Components...)
	t.st.recipes[recipe.ID] = stored
	return nil
}

func (t *tx) CreateInboundBatch(_ context.Context, batch *domain.InboundBatch) error {
	t.st.seq.inbound++
	batch.ID = t.st.seq.inbound
	t.stamp(&batch.CreatedAt)
	t.stamp(&batch.ReceivedAt)
	t.st.inbound[batch.ID] = *batch
	return nil
}

func (t *tx) UpdateInboundRemaining(_ context.Context, id int64, remaining decimal.Decimal) error {
	b, ok := t.st.inbound[id]
	if !ok {
		return domain.NewNotFound("inbound batch", id)
	}
	b.Remaining = remaining
	t.st.inbound[id] = b
	return nil
}

func (t *tx) InsertLedgerEntry(_ context.Context, entry *domain.LedgerEntry) error {
	t.st.seq.ledger++
	entry.ID = t.st.seq.ledger
	t.stamp(&entry.CreatedAt)
	t.st.ledger = append(t.st.ledger, *entry)
	return nil
}

func (t *tx) LastBatchNumber(_ context.Context, prefix string) (string, error) {
	last := ""
	for _, b := range t.st.batches {
		if !strings.HasPrefix(b.BatchNumber, prefix) {
			continue
		}
		if len(b.BatchNumber) > len(last) || (len(b.BatchNumber) == len(last) && b.BatchNumber > last) {
			last = b.BatchNumber
		}
	}
	return last, nil
}

func (t *tx) InsertBatch(_ context.Context, batch *domain.Batch) error {
	for _, b := range t.st.batches {
		if b.BatchNumber == batch.BatchNumber {
			return fmt.Errorf("%w: batch number %s already used", domain.ErrConflict, batch.BatchNumber)
		}
	}
	t.st.seq.batch++
	batch.ID = t.st.seq.batch
	t.stamp(&batch.ProducedAt)
	t.st.batches[batch.ID] = *batch
	return nil
}

func (t *tx) InsertWarning(_ context.Context, warning *domain.QualityWarning) error {
	t.st.seq.warning++
	warning.ID = t.st.seq.warning
	t.stamp(&warning.CreatedAt)
	t.st.warnings[warning.ID] = *warning
	return nil
}

func (t *tx) UpdateWarning(_ context.Context, warning *domain.QualityWarning) error {
	if _, ok := t.st.warnings[warning.ID]; !ok {
		return domain.NewNotFound("warning", warning.ID)
	}
	t.st.warnings[warning.ID] = *warning
	return nil
}
