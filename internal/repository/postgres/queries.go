package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/jmoiron/sqlx"
)

const itemColumns = `id, name, category, profile, quantity, avg_cost, parent_item_id, recipe_id,
	expected_loss, created_at, updated_at`

const ledgerColumns = `id, item_id, change_type, delta, balance_after, unit_cost, batch_id,
	corrects_entry_id, note, created_at`

const batchColumns = `id, batch_number, kind, output_item_id, recipe_id, input_quantity,
	output_quantity, yield_loss, production_cost, produced_at, notes`

const warningColumns = `id, batch_id, item_id, direction, severity, loss_rate, expected_loss,
	deviation, consecutive_count, resolved, resolution_note, resolved_at, created_at`

// queries implements repository.Reader over either the pool or an open transaction.
type queries struct {
	ext sqlx.ExtContext
}

func notFound(err error, entity string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFound(entity, id)
	}
	return fmt.Errorf("failed to get %s: %w", entity, err)
}

func (q queries) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	var item domain.Item
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	if err := sqlx.GetContext(ctx, q.ext, &item, query, id); err != nil {
		return nil, notFound(err, "item", id)
	}
	return &item, nil
}

func (q queries) FindItemByName(ctx context.Context, name string) (*domain.Item, error) {
	var item domain.Item
	query := `SELECT ` + itemColumns + ` FROM items WHERE LOWER(name) = LOWER($1)`
	if err := sqlx.GetContext(ctx, q.ext, &item, query, strings.TrimSpace(name)); err != nil {
		return nil, notFound(err, "item", name)
	}
	return &item, nil
}

func (q queries) FindOutputItem(ctx context.Context, key repository.OutputKey) (*domain.Item, error) {
	var (
		item  domain.Item
		err   error
		query string
	)
	switch {
	case key.RecipeID != nil:
		query = `SELECT ` + itemColumns + ` FROM items WHERE recipe_id = $1 ORDER BY id LIMIT 1`
		err = sqlx.GetContext(ctx, q.ext, &item, query, *key.RecipeID)
	case key.ParentItemID != nil:
		query = `SELECT ` + itemColumns + ` FROM items WHERE parent_item_id = $1 AND profile = $2 ORDER BY id LIMIT 1`
		err = sqlx.GetContext(ctx, q.ext, &item, query, *key.ParentItemID, key.Profile)
	default:
		return nil, domain.NewNotFound("output item", key.Profile)
	}
	if err != nil {
		return nil, notFound(err, "output item", key.Profile)
	}
	return &item, nil
}

func (q queries) ListItems(ctx context.Context) ([]domain.Item, error) {
	items := []domain.Item{}
	query := `SELECT ` + itemColumns + ` FROM items ORDER BY id`
	if err := sqlx.SelectContext(ctx, q.ext, &items, query); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (q queries) GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error) {
	var recipe domain.Recipe
	if err := sqlx.GetContext(ctx, q.ext, &recipe, `SELECT id, name, created_at FROM recipes WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "recipe", id)
	}
	if err := q.loadComponents(ctx, &recipe); err != nil {
		return nil, err
	}
	return &recipe, nil
}

func (q queries) FindRecipeByName(ctx context.Context, name string) (*domain.Recipe, error) {
	var recipe domain.Recipe
	query := `SELECT id, name, created_at FROM recipes WHERE LOWER(name) = LOWER($1)`
	if err := sqlx.GetContext(ctx, q.ext, &recipe, query, strings.TrimSpace(name)); err != nil {
		return nil, notFound(err, "recipe", name)
	}
	if err := q.loadComponents(ctx, &recipe); err != nil {
		return nil, err
	}
	return &recipe, nil
}

func (q queries) loadComponents(ctx context.Context, recipe *domain.Recipe) error {
	recipe.Components = []domain.RecipeComponent{}
	query := `SELECT recipe_id, item_id, proportion FROM recipe_components WHERE recipe_id = $1 ORDER BY item_id`
	if err := sqlx.SelectContext(ctx, q.ext, &recipe.Components, query, recipe.ID); err != nil {
		return fmt.Errorf("failed to load recipe components: %w", err)
	}
	return nil
}

func (q queries) ListInboundBatches(ctx context.Context, itemID int64) ([]domain.InboundBatch, error) {
	batches := []domain.InboundBatch{}
	query := `
		SELECT id, item_id, quantity, unit_price, remaining, received_at, note, created_at
		FROM inbound_batches
		WHERE item_id = $1
		ORDER BY received_at ASC, id ASC
	`
	if err := sqlx.SelectContext(ctx, q.ext, &batches, query, itemID); err != nil {
		return nil, fmt.Errorf("failed to list inbound batches: %w", err)
	}
	return batches, nil
}

func (q queries) GetLedgerEntry(ctx context.Context, id int64) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE id = $1`
	if err := sqlx.GetContext(ctx, q.ext, &entry, query, id); err != nil {
		return nil, notFound(err, "ledger entry", id)
	}
	return &entry, nil
}

func (q queries) QueryLedger(ctx context.Context, filter repository.LedgerFilter) ([]domain.LedgerEntry, int, error) {
	filter.Normalize()

	where := []string{"item_id = ?"}
	args := []interface{}{filter.ItemID}
	if len(filter.ChangeTypes) > 0 {
		types := make([]string, len(filter.ChangeTypes))
		for i, ct := range filter.ChangeTypes {
			types[i] = string(ct)
		}
		where = append(where, "change_type IN (?)")
		args = append(args, types)
	}
	if filter.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, "created_at < ?")
		args = append(args, *filter.To)
	}
	clause := strings.Join(where, " AND ")

	countQuery, countArgs, err := sqlx.In(`SELECT COUNT(*) FROM ledger_entries WHERE `+clause, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build ledger count: %w", err)
	}
	var total int
	if err := sqlx.GetContext(ctx, q.ext, &total, q.ext.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	pageQuery, pageArgs, err := sqlx.In(
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE `+clause+` ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`,
		append(args, filter.PageSize, filter.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build ledger query: %w", err)
	}
	entries := []domain.LedgerEntry{}
	if err := sqlx.SelectContext(ctx, q.ext, &entries, q.ext.Rebind(pageQuery), pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to query ledger: %w", err)
	}
	return entries, total, nil
}

func (q queries) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	var batch domain.Batch
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	if err := sqlx.GetContext(ctx, q.ext, &batch, query, id); err != nil {
		return nil, notFound(err, "batch", id)
	}
	return &batch, nil
}

func (q queries) ListBatches(ctx context.Context, filter repository.BatchFilter) ([]domain.Batch, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.OutputItemID != nil {
		where = append(where, "output_item_id = ?")
		args = append(args, *filter.OutputItemID)
	}
	if filter.From != nil {
		where = append(where, "produced_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, "produced_at < ?")
		args = append(args, *filter.To)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + batchColumns + ` FROM batches`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if filter.NewestFirst {
		sb.WriteString(" ORDER BY produced_at DESC, id DESC")
	} else {
		sb.WriteString(" ORDER BY produced_at ASC, id ASC")
	}
	if filter.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, filter.Offset)
	}

	batches := []domain.Batch{}
	if err := sqlx.SelectContext(ctx, q.ext, &batches, q.ext.Rebind(sb.String()), args...); err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

func (q queries) GetWarning(ctx context.Context, id int64) (*domain.QualityWarning, error) {
	var warning domain.QualityWarning
	query := `SELECT ` + warningColumns + ` FROM quality_warnings WHERE id = $1`
	if err := sqlx.GetContext(ctx, q.ext, &warning, query, id); err != nil {
		return nil, notFound(err, "warning", id)
	}
	return &warning, nil
}

func (q queries) ListWarnings(ctx context.Context, filter repository.WarningFilter) ([]domain.QualityWarning, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ItemID != nil {
		where = append(where, "item_id = ?")
		args = append(args, *filter.ItemID)
	}
	if filter.Resolved != nil {
		where = append(where, "resolved = ?")
		args = append(args, *filter.Resolved)
	}
	if filter.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.From)
	}

	query := `SELECT ` + warningColumns + ` FROM quality_warnings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	warnings := []domain.QualityWarning{}
	if err := sqlx.SelectContext(ctx, q.ext, &warnings, q.ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list warnings: %w", err)
	}
	return warnings, nil
}
