// Package store is the opaque transactional table store used by the
// repository layer. Records cross this boundary as plain rows keyed by
// snake_case column names; the store knows nothing about entities.
package store

import (
	"context"
	"errors"
)

// Row is one record keyed by column name.
type Row = map[string]any

var (
	// ErrTxDone is returned when a transaction is used after Commit or Rollback.
	ErrTxDone = errors.New("store: transaction already committed or rolled back")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrMissingFilter guards Update and Delete against unscoped writes.
	ErrMissingFilter = errors.New("store: update or delete without filter")
)

// Query selects rows. Filters are equality matches (a slice value means IN,
// nil means IS NULL). Zero Limit means no limit.
type Query struct {
	Filters map[string]any
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Table is the call interface for one table, bound either to the store or to
// a transaction.
type Table interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Count(ctx context.Context, filters map[string]any) (int64, error)
	Insert(ctx context.Context, row Row) error
	Update(ctx context.Context, filters map[string]any, values Row) (int64, error)
	Delete(ctx context.Context, filters map[string]any) (int64, error)
	// Upsert inserts row or, when a row with the same conflict columns exists,
	// updates every column except the conflict and immutable ones.
	Upsert(ctx context.Context, row Row, conflict []string, immutable ...string) error
}

// Queryer hands out table handles.
type Queryer interface {
	From(table string) Table
}

// Tx is a single-use transaction handle.
type Tx interface {
	Queryer
	Commit() error
	Rollback() error
}

// Store is the root handle: non-transactional reads and writes via From,
// units of work via Begin.
type Store interface {
	Queryer
	Begin(ctx context.Context) (Tx, error)
	Close() error
}
