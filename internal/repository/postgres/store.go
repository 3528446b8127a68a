package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// Store is the PostgreSQL implementation of repository.Store.
type Store struct {
	queries
	db *DB
}

// Verify interface compliance
var (
	_ repository.Store = (*Store)(nil)
	_ repository.Tx    = (*tx)(nil)
)

func NewStore(db *DB) *Store {
	return &Store{queries: queries{ext: db.DB}, db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.db.WithTx(ctx, func(sqlTx *sqlx.Tx) error {
		return fn(&tx{queries: queries{ext: sqlTx}})
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

type tx struct {
	queries
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

// nullTime lets the database default a zero timestamp.
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// LockItems row-locks the items in id order so concurrent runs cannot deadlock.
func (t *tx) LockItems(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`SELECT id FROM items WHERE id IN (?) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return fmt.Errorf("failed to build item lock: %w", err)
	}
	var locked []int64
	if err := sqlx.SelectContext(ctx, t.ext, &locked, t.ext.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to lock items: %w", err)
	}
	return nil
}

func (t *tx) LockKey(ctx context.Context, key string) error {
	if _, err := t.ext.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("failed to lock key %s: %w", key, err)
	}
	return nil
}

func (t *tx) CreateItem(ctx context.Context, item *domain.Item) error {
	query := `
		INSERT INTO items (
			name, category, profile, quantity, avg_cost, parent_item_id, recipe_id,
			expected_loss, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()), COALESCE($9, NOW()))
		RETURNING id, created_at, updated_at
	`
	row := t.ext.QueryRowxContext(ctx, query,
		item.Name, item.Category, item.Profile, item.Quantity, item.AvgCost,
		item.ParentItemID, item.RecipeID, item.ExpectedLoss, nullTime(item.CreatedAt),
	)
	if err := row.Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: item %q already exists", domain.ErrConflict, item.Name)
		}
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func (t *tx) UpdateItemStock(ctx context.Context, id int64, quantity, avgCost decimal.Decimal) error {
	res, err := t.ext.ExecContext(ctx,
		`UPDATE items SET quantity = $2, avg_cost = $3, updated_at = NOW() WHERE id = $1`,
		id, quantity, avgCost,
	)
	if err != nil {
		return fmt.Errorf("failed to update item stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFound("item", id)
	}
	return nil
}

func (t *tx) CreateRecipe(ctx context.Context, recipe *domain.Recipe) error {
	row := t.ext.QueryRowxContext(ctx,
		`INSERT INTO recipes (name, created_at) VALUES ($1, COALESCE($2, NOW())) RETURNING id, created_at`,
		recipe.Name, nullTime(recipe.CreatedAt),
	)
	if err := row.Scan(&recipe.ID, &recipe.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: recipe %q already exists", domain.ErrConflict, recipe.Name)
		}
		return fmt.Errorf("failed to create recipe: %w", err)
	}

	for i := range recipe.Components {
		c := &recipe.Components[i]
		c.RecipeID = recipe.ID
		if _, err := t.ext.ExecContext(ctx,
			`INSERT INTO recipe_components (recipe_id, item_id, proportion) VALUES ($1, $2, $3)`,
			c.RecipeID, c.ItemID, c.Proportion,
		); err != nil {
			return fmt.Errorf("failed to add recipe component %d: %w", c.ItemID, err)
		}
	}
	return nil
}

func (t *tx) CreateInboundBatch(ctx context.Context, batch *domain.InboundBatch) error {
	query := `
		INSERT INTO inbound_batches (item_id, quantity, unit_price, remaining, received_at, note, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()), $6, COALESCE($7, NOW()))
		RETURNING id, received_at, created_at
	`
	row := t.ext.QueryRowxContext(ctx, query,
		batch.ItemID, batch.Quantity, batch.UnitPrice, batch.Remaining,
		nullTime(batch.ReceivedAt), batch.Note, nullTime(batch.CreatedAt),
	)
	if err := row.Scan(&batch.ID, &batch.ReceivedAt, &batch.CreatedAt); err != nil {
		return fmt.Errorf("failed to create inbound batch: %w", err)
	}
	return nil
}

func (t *tx) UpdateInboundRemaining(ctx context.Context, id int64, remaining decimal.Decimal) error {
	res, err := t.ext.ExecContext(ctx, `UPDATE inbound_batches SET remaining = $2 WHERE id = $1`, id, remaining)
	if err != nil {
		return fmt.Errorf("failed to update inbound batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFound("inbound batch", id)
	}
	return nil
}

func (t *tx) InsertLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (
			item_id, change_type, delta, balance_after, unit_cost, batch_id,
			corrects_entry_id, note, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))
		RETURNING id, created_at
	`
	row := t.ext.QueryRowxContext(ctx, query,
		entry.ItemID, entry.ChangeType, entry.Delta, entry.BalanceAfter, entry.UnitCost,
		entry.BatchID, entry.CorrectsEntryID, entry.Note, nullTime(entry.CreatedAt),
	)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (t *tx) LastBatchNumber(ctx context.Context, prefix string) (string, error) {
	var number string
	query := `
		SELECT batch_number FROM batches
		WHERE batch_number LIKE $1
		ORDER BY LENGTH(batch_number) DESC, batch_number DESC
		LIMIT 1
	`
	err := sqlx.GetContext(ctx, t.ext, &number, query, prefix+"%")
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last batch number: %w", err)
	}
	return number, nil
}

func (t *tx) InsertBatch(ctx context.Context, batch *domain.Batch) error {
	query := `
		INSERT INTO batches (
			batch_number, kind, output_item_id, recipe_id, input_quantity, output_quantity,
			yield_loss, production_cost, produced_at, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()), $10)
		RETURNING id, produced_at
	`
	row := t.ext.QueryRowxContext(ctx, query,
		batch.BatchNumber, batch.Kind, batch.OutputItemID, batch.RecipeID, batch.InputQuantity,
		batch.OutputQuantity, batch.YieldLoss, batch.ProductionCost, nullTime(batch.ProducedAt), batch.Notes,
	)
	if err := row.Scan(&batch.ID, &batch.ProducedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: batch number %s already used", domain.ErrConflict, batch.BatchNumber)
		}
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

func (t *tx) InsertWarning(ctx context.Context, warning *domain.QualityWarning) error {
	query := `
		INSERT INTO quality_warnings (
			batch_id, item_id, direction, severity, loss_rate, expected_loss, deviation,
			consecutive_count, resolved, resolution_note, resolved_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()))
		RETURNING id, created_at
	`
	row := t.ext.QueryRowxContext(ctx, query,
		warning.BatchID, warning.ItemID, warning.Direction, warning.Severity, warning.LossRate,
		warning.ExpectedLoss, warning.Deviation, warning.ConsecutiveCount, warning.Resolved,
		warning.ResolutionNote, warning.ResolvedAt, nullTime(warning.CreatedAt),
	)
	if err := row.Scan(&warning.ID, &warning.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert warning: %w", err)
	}
	return nil
}

func (t *tx) UpdateWarning(ctx context.Context, warning *domain.QualityWarning) error {
	res, err := t.ext.ExecContext(ctx,
		`UPDATE quality_warnings SET resolved = $2, resolution_note = $3, resolved_at = $4 WHERE id = $1`,
		warning.ID, warning.Resolved, warning.ResolutionNote, warning.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update warning: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFound("warning", warning.ID)
	}
	return nil
}
