package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of a *gorm.DB.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

// DB exposes the underlying handle for migrations and health checks.
func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) From(table string) Table {
	return &gormTable{db: s.db, name: table}
}

// Begin starts a transaction bound to ctx.
func (s *GormStore) Begin(ctx context.Context) (Tx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormTx{db: tx}, nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	mu   sync.Mutex
	db   *gorm.DB
	done bool
}

func (t *gormTx) From(table string) Table {
	return &gormTable{db: t.db, name: table, alive: t.alive}
}

func (t *gormTx) alive() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	return nil
}

func (t *gormTx) finish(fn func() *gorm.DB) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return fn().Error
}

func (t *gormTx) Commit() error   { return t.finish(t.db.Commit) }
func (t *gormTx) Rollback() error { return t.finish(t.db.Rollback) }

type gormTable struct {
	db    *gorm.DB
	name  string
	alive func() error
}

func (t *gormTable) session(ctx context.Context) (*gorm.DB, error) {
	if t.alive != nil {
		if err := t.alive(); err != nil {
			return nil, err
		}
	}
	return t.db.WithContext(ctx).Table(t.name), nil
}

func (t *gormTable) Select(ctx context.Context, q Query) ([]Row, error) {
	db, err := t.session(ctx)
	if err != nil {
		return nil, err
	}
	if len(q.Filters) > 0 {
		db = db.Where(map[string]interface{}(q.Filters))
	}
	if q.OrderBy != "" {
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderBy}, Desc: q.Desc})
		if q.OrderBy != "id" {
			db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: q.Desc})
		}
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	var rows []map[string]interface{}
	if err := db.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func (t *gormTable) Count(ctx context.Context, filters map[string]any) (int64, error) {
	db, err := t.session(ctx)
	if err != nil {
		return 0, err
	}
	if len(filters) > 0 {
		db = db.Where(map[string]interface{}(filters))
	}
	var n int64
	if err := db.Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (t *gormTable) Insert(ctx context.Context, row Row) error {
	db, err := t.session(ctx)
	if err != nil {
		return err
	}
	return translate(db.Create(copyRow(row)).Error)
}

func (t *gormTable) Update(ctx context.Context, filters map[string]any, values Row) (int64, error) {
	if len(filters) == 0 {
		return 0, ErrMissingFilter
	}
	db, err := t.session(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Where(map[string]interface{}(filters)).Updates(copyRow(values))
	return res.RowsAffected, translate(res.Error)
}

func (t *gormTable) Delete(ctx context.Context, filters map[string]any) (int64, error) {
	if len(filters) == 0 {
		return 0, ErrMissingFilter
	}
	if t.alive != nil {
		if err := t.alive(); err != nil {
			return 0, err
		}
	}
	cols := sortedKeys(filters)
	conds := make([]string, 0, len(cols))
	args := []interface{}{clause.Table{Name: t.name}}
	for _, c := range cols {
		if filters[c] == nil {
			conds = append(conds, "? IS NULL")
			args = append(args, clause.Column{Name: c})
			continue
		}
		conds = append(conds, "? = ?")
		args = append(args, clause.Column{Name: c}, filters[c])
	}
	res := t.db.WithContext(ctx).Exec("DELETE FROM ? WHERE "+strings.Join(conds, " AND "), args...)
	return res.RowsAffected, translate(res.Error)
}

func (t *gormTable) Upsert(ctx context.Context, row Row, conflict []string, immutable ...string) error {
	db, err := t.session(ctx)
	if err != nil {
		return err
	}
	skip := make(map[string]struct{}, len(conflict)+len(immutable))
	conflictCols := make([]clause.Column, 0, len(conflict))
	for _, c := range conflict {
		skip[c] = struct{}{}
		conflictCols = append(conflictCols, clause.Column{Name: c})
	}
	for _, c := range immutable {
		skip[c] = struct{}{}
	}
	var update []string
	for _, c := range sortedKeys(row) {
		if _, ok := skip[c]; !ok {
			update = append(update, c)
		}
	}
	oc := clause.OnConflict{Columns: conflictCols, DoNothing: len(update) == 0}
	if len(update) > 0 {
		oc.DoUpdates = clause.AssignmentColumns(update)
	}
	return translate(db.Clauses(oc).Create(copyRow(row)).Error)
}

// translate maps driver-specific unique violations to ErrDuplicate.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	low := strings.ToLower(err.Error())
	if strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value") {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func copyRow(r Row) map[string]interface{} {
	out := make(map[string]interface{}, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
