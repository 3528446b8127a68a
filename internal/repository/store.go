// internal/repository/store.go
package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// LedgerFilter selects ledger entries for one item. From is inclusive, To is
// exclusive. Page is 1-based.
type LedgerFilter struct {
	ItemID      int64
	ChangeTypes []domain.ChangeType
	From        *time.Time
	To          *time.Time
	Page        int
	PageSize    int
}

// Normalize clamps paging to sane bounds.
func (f *LedgerFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
}

func (f LedgerFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// BatchFilter selects production batches. With NewestFirst the result is
// ordered by produced_at desc, id desc; otherwise ascending.
type BatchFilter struct {
	OutputItemID *int64
	From         *time.Time
	To           *time.Time
	NewestFirst  bool
	Limit        int
	Offset       int
}

type WarningFilter struct {
	ItemID   *int64
	Resolved *bool
	From     *time.Time
}

// OutputKey identifies a produced item: a roast profile of a parent item, or
// the blend of a recipe.
type OutputKey struct {
	ParentItemID *int64
	RecipeID     *int64
	Profile      string
}

// Reader exposes the read side shared by the store and its transactions.
type Reader interface {
	GetItem(ctx context.Context, id int64) (*domain.Item, error)
	FindItemByName(ctx context.Context, name string) (*domain.Item, error)
	FindOutputItem(ctx context.Context, key OutputKey) (*domain.Item, error)
	ListItems(ctx context.Context) ([]domain.Item, error)
	GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error)
	FindRecipeByName(ctx context.Context, name string) (*domain.Recipe, error)
	ListInboundBatches(ctx context.Context, itemID int64) ([]domain.InboundBatch, error)
	GetLedgerEntry(ctx context.Context, id int64) (*domain.LedgerEntry, error)
	QueryLedger(ctx context.Context, filter LedgerFilter) ([]domain.LedgerEntry, int, error)
	GetBatch(ctx context.Context, id int64) (*domain.Batch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]domain.Batch, error)
	GetWarning(ctx context.Context, id int64) (*domain.QualityWarning, error)
	ListWarnings(ctx context.Context, filter WarningFilter) ([]domain.QualityWarning, error)
}

// Tx is a unit of work. Nothing written through it is visible to other
// readers until the enclosing WithTx returns nil.
type Tx interface {
	Reader

	// LockItems takes exclusive per-item locks held until the transaction ends.
	LockItems(ctx context.Context, ids ...int64) error
	// LockKey takes an exclusive lock on an arbitrary key, held until the
	// transaction ends. Used for batch-number allocation and output creation.
	LockKey(ctx context.Context, key string) error

	CreateItem(ctx context.Context, item *domain.Item) error
	UpdateItemStock(ctx context.Context, id int64, quantity, avgCost decimal.Decimal) error
	CreateRecipe(ctx context.Context, recipe *domain.Recipe) error
	CreateInboundBatch(ctx context.Context, batch *domain.InboundBatch) error
	UpdateInboundRemaining(ctx context.Context, id int64, remaining decimal.Decimal) error
	InsertLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error
	// LastBatchNumber returns the highest batch number starting with prefix, or "".
	LastBatchNumber(ctx context.Context, prefix string) (string, error)
	InsertBatch(ctx context.Context, batch *domain.Batch) error
	InsertWarning(ctx context.Context, warning *domain.QualityWarning) error
	UpdateWarning(ctx context.Context, warning *domain.QualityWarning) error
}

// Store is the transactional inventory store.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
