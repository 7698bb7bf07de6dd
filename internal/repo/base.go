package repo

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-challenge-backend/internal/apperr"
	"github.com/tbourn/go-challenge-backend/internal/codec"
	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/events"
	"github.com/tbourn/go-challenge-backend/internal/retry"
	"github.com/tbourn/go-challenge-backend/internal/store"
	"github.com/tbourn/go-challenge-backend/internal/sysutil"
)

// Paging bounds for List and FindBy.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var tracer = otel.Tracer("github.com/tbourn/go-challenge-backend/internal/repo")

// Config wires one repository. Store, Table and Domain are required.
type Config struct {
	Store  store.Store
	Table  string
	Domain string

	// MaxRetries, when positive, overrides Retry.MaxAttempts.
	MaxRetries int
	Retry      retry.Policy

	// Bus receives events after commit. Nil disables publishing.
	Bus events.Publisher

	// ValidateIDFormat requires ids to be UUIDs.
	ValidateIDFormat bool

	Logger *zerolog.Logger
	Now    func() time.Time
}

// ListOptions pages and sorts a read. Field names are lowerCamel.
type ListOptions struct {
	Limit         int
	Offset        int
	SortBy        string
	SortDirection string // "asc" (default) or "desc"
	Filters       map[string]any
}

// Stats summarizes a filtered set of rows.
type Stats struct {
	Count       int64
	LastUpdated time.Time
}

// Base is the generic repository every entity repository embeds. It speaks
// to the store in rows and to callers in entities.
type Base[T domain.Entity] struct {
	st     store.Store
	table  string
	domain string
	policy retry.Policy
	bus    events.Publisher
	uuids  bool
	mapper *apperr.Mapper
	meta   entityMeta
	newFn  func() T
	log    *zerolog.Logger
	now    func() time.Time
}

// NewBase returns a repository for T. newFn must return a fresh, non-nil T.
func NewBase[T domain.Entity](cfg Config, newFn func() T) *Base[T] {
	p := cfg.Retry.Normalize()
	if cfg.MaxRetries > 0 {
		p.MaxAttempts = cfg.MaxRetries
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Base[T]{
		st:     cfg.Store,
		table:  cfg.Table,
		domain: cfg.Domain,
		policy: p,
		bus:    cfg.Bus,
		uuids:  cfg.ValidateIDFormat,
		mapper: apperr.DomainMapper(cfg.Domain),
		meta:   metaOf(newFn()),
		newFn:  newFn,
		log:    cfg.Logger,
		now:    now,
	}
}

// Domain returns the domain name used for errors and events.
func (b *Base[T]) Domain() string { return b.domain }

// Table returns the backing table name.
func (b *Base[T]) Table() string { return b.table }

// Store returns the backing store, for services composing units of work.
func (b *Base[T]) Store() store.Store { return b.st }

// Bus returns the event publisher, possibly nil.
func (b *Base[T]) Bus() events.Publisher { return b.bus }

// Policy returns the effective retry policy.
func (b *Base[T]) Policy() retry.Policy { return b.policy }

// Map converts err into this repository's domain.
func (b *Base[T]) Map(err error, meta map[string]any) error { return b.mapper.Map(err, meta) }

func (b *Base[T]) logger(ctx context.Context) *zerolog.Logger {
	if b.log != nil {
		return b.log
	}
	return sysutil.LoggerFrom(ctx)
}

func (b *Base[T]) op(name string) string { return b.domain + "." + name }

func (b *Base[T]) span(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "repo."+b.op(name), trace.WithAttributes(
		attribute.String("db.table", b.table),
		attribute.String("repo.domain", b.domain),
	))
}

func endSpan(sp trace.Span, err error) {
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, err.Error())
	}
	sp.End()
}

// ValidateID rejects blank ids and, when enabled, ids that are not UUIDs.
func (b *Base[T]) ValidateID(id string) error {
	rules := []validation.Rule{validation.Required}
	if b.uuids {
		rules = append(rules, is.UUID)
	}
	if err := validation.Validate(strings.TrimSpace(id), rules...); err != nil {
		return apperr.Validation(b.domain, "invalid id: "+err.Error(), map[string]any{"id": id})
	}
	return nil
}

// ValidateRequiredParams reports every name whose value in params is
// missing, nil or blank in one validation error.
func (b *Base[T]) ValidateRequiredParams(params map[string]any, names ...string) error {
	var missing []string
	for _, n := range names {
		v, ok := params[n]
		if !ok || isNil(v) {
			missing = append(missing, n)
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return apperr.Validation(b.domain, "missing required parameters: "+strings.Join(missing, ", "),
		map[string]any{"missing": missing})
}

// FindByID returns the entity with id, or a nil T when none exists.
func (b *Base[T]) FindByID(ctx context.Context, id string) (out T, err error) {
	ctx, sp := b.span(ctx, "findById")
	defer func() { endSpan(sp, err) }()

	if err := b.ValidateID(id); err != nil {
		return out, err
	}
	out, err = retry.Do(ctx, b.op("findById"), b.policy, func(ctx context.Context) (T, error) {
		return b.findIn(ctx, b.st, id)
	})
	if err != nil {
		return out, b.mapper.Map(err, map[string]any{"id": id})
	}
	return out, nil
}

// FindByIDTx is FindByID inside a caller's transaction, without retries.
func (b *Base[T]) FindByIDTx(ctx context.Context, tx store.Tx, id string) (T, error) {
	var zero T
	if err := b.ValidateID(id); err != nil {
		return zero, err
	}
	out, err := b.findIn(ctx, tx, id)
	if err != nil {
		return zero, b.mapper.Map(err, map[string]any{"id": id})
	}
	return out, nil
}

func (b *Base[T]) findIn(ctx context.Context, q store.Queryer, id string) (T, error) {
	var zero T
	rows, err := q.From(b.table).Select(ctx, store.Query{Filters: map[string]any{"id": id}, Limit: 1})
	if err != nil {
		return zero, apperr.Database(b.domain, b.op("findById"), err, map[string]any{"id": id})
	}
	if len(rows) == 0 {
		return zero, nil
	}
	return b.decode(rows[0])
}

func (b *Base[T]) decode(row store.Row) (T, error) {
	out, err := decodeRow(row, b.meta, b.newFn)
	if err != nil {
		var zero T
		return zero, apperr.Repository(b.domain, "decode "+b.table+" row", err, nil)
	}
	return out, nil
}

// Save validates entity, stamps identity and timestamps, upserts it and
// returns the persisted state. Pending events are published after commit;
// if the save fails they are put back on the entity.
func (b *Base[T]) Save(ctx context.Context, entity T) (out T, err error) {
	ctx, sp := b.span(ctx, "save")
	defer func() { endSpan(sp, err) }()

	if isNil(entity) {
		return out, apperr.Validation(b.domain, "entity is required", nil)
	}
	if err := apperr.FromValidation(b.domain, entity.Validate()); err != nil {
		return out, err
	}

	prevID := entity.GetID()
	prevCreated, prevUpdated := entity.Timestamps()
	pending := entity.PullEvents()

	out, err = retry.Do(ctx, b.op("save"), b.policy, func(ctx context.Context) (T, error) {
		// A rolled back attempt may have stamped the entity; start over from
		// the caller's state so a new entity is still inserted as new.
		entity.SetID(prevID)
		entity.SetTimestamps(prevCreated, prevUpdated)
		return WithTransaction(ctx, b.st, func(ctx context.Context, tx store.Tx) (Outcome[T], error) {
			saved, err := b.SaveTx(ctx, tx, entity)
			if err != nil {
				return Outcome[T]{}, err
			}
			return Outcome[T]{Result: saved, Events: WithEntityID(pending, saved.GetID())}, nil
		}, b.txOptions("save"))
	})
	if err != nil {
		b.logger(ctx).Debug().Err(err).Str("table", b.table).Int("requeued", len(pending)).Msg("save failed")
		entity.RequeueEvents(pending)
		entity.SetID(prevID)
		entity.SetTimestamps(prevCreated, prevUpdated)
		return out, b.mapper.Map(err, map[string]any{"id": prevID})
	}
	return out, nil
}

// SaveTx writes entity inside tx and reads it back. It does not touch the
// entity's event queue; the caller decides what to publish.
func (b *Base[T]) SaveTx(ctx context.Context, tx store.Tx, entity T) (T, error) {
	var zero T
	if isNil(entity) {
		return zero, apperr.Validation(b.domain, "entity is required", nil)
	}
	if err := apperr.FromValidation(b.domain, entity.Validate()); err != nil {
		return zero, err
	}
	b.stamp(entity)

	row, err := encodeRow(entity, b.meta)
	if err != nil {
		return zero, apperr.Repository(b.domain, "encode "+b.table+" row", err, nil)
	}
	id := entity.GetID()
	if err := tx.From(b.table).Upsert(ctx, row, []string{"id"}, "created_at"); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			ve := apperr.Validation(b.domain, b.domain+" already exists", map[string]any{"id": id, "reason": "duplicate"})
			ve.Cause = err
			return zero, ve
		}
		return zero, apperr.Database(b.domain, b.op("save"), err, map[string]any{"id": id})
	}
	saved, err := b.findIn(ctx, tx, id)
	if err != nil {
		return zero, err
	}
	if isNil(saved) {
		return zero, apperr.Database(b.domain, b.op("save"), errors.New("row missing after upsert"), map[string]any{"id": id})
	}
	return saved, nil
}

// stamp assigns an id on first save and keeps updatedAt strictly increasing.
func (b *Base[T]) stamp(entity T) {
	now := b.now().UTC().Truncate(time.Microsecond)
	created, updated := entity.Timestamps()
	if strings.TrimSpace(entity.GetID()) == "" {
		entity.SetID(uuid.NewString())
		entity.SetTimestamps(now, now)
		return
	}
	if created.IsZero() {
		created = now
	}
	if !now.After(updated) {
		now = updated.Truncate(time.Microsecond).Add(time.Microsecond)
	}
	entity.SetTimestamps(created.UTC().Truncate(time.Microsecond), now)
}

// Delete removes the entity with id and emits "<domain>.deleted" carrying
// its prior state. It reports whether anything was deleted.
func (b *Base[T]) Delete(ctx context.Context, id string) (ok bool, err error) {
	ctx, sp := b.span(ctx, "delete")
	defer func() { endSpan(sp, err) }()

	if err := b.ValidateID(id); err != nil {
		return false, err
	}
	ok, err = retry.Do(ctx, b.op("delete"), b.policy, func(ctx context.Context) (bool, error) {
		return WithTransaction(ctx, b.st, func(ctx context.Context, tx store.Tx) (Outcome[bool], error) {
			return b.deleteTx(ctx, tx, id)
		}, b.txOptions("delete"))
	})
	if err != nil {
		return false, b.mapper.Map(err, map[string]any{"id": id})
	}
	return ok, nil
}

// DeleteStrict is Delete that reports a missing entity as not found.
func (b *Base[T]) DeleteStrict(ctx context.Context, id string) error {
	ok, err := b.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound(b.domain, b.domain, id)
	}
	return nil
}

func (b *Base[T]) deleteTx(ctx context.Context, tx store.Tx, id string) (Outcome[bool], error) {
	t := tx.From(b.table)
	filters := map[string]any{"id": id}
	rows, err := t.Select(ctx, store.Query{Filters: filters, Limit: 1})
	if err != nil {
		return Outcome[bool]{}, apperr.Database(b.domain, b.op("delete"), err, filters)
	}
	if len(rows) == 0 {
		return Outcome[bool]{Result: false}, nil
	}
	previous, err := domainValues(rows[0], b.meta)
	if err != nil {
		return Outcome[bool]{}, apperr.Repository(b.domain, "decode "+b.table+" row", err, nil)
	}
	n, err := t.Delete(ctx, filters)
	if err != nil {
		return Outcome[bool]{}, apperr.Database(b.domain, b.op("delete"), err, filters)
	}
	if n == 0 {
		return Outcome[bool]{Result: false}, nil
	}
	ev := domain.NewEvent(b.domain+".deleted", map[string]any{"id": id, "previous": previous})
	return Outcome[bool]{Result: true, Events: []domain.Event{ev}}, nil
}

func (b *Base[T]) txOptions(op string) TxOptions {
	return TxOptions{Bus: b.bus, Operation: b.op(op), EntityType: b.domain, Logger: b.log}
}

// List returns a page of entities matching opts.Filters.
func (b *Base[T]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	return b.FindBy(ctx, opts.Filters, opts)
}

// FindBy returns a page of entities matching filters. Filters given here
// take precedence over opts.Filters.
func (b *Base[T]) FindBy(ctx context.Context, filters map[string]any, opts ListOptions) (out []T, err error) {
	ctx, sp := b.span(ctx, "findBy")
	defer func() { endSpan(sp, err) }()

	merged := make(map[string]any, len(opts.Filters)+len(filters))
	for k, v := range opts.Filters {
		merged[k] = v
	}
	for k, v := range filters {
		merged[k] = v
	}
	q, err := b.query(merged, opts)
	if err != nil {
		return nil, err
	}
	out, err = retry.Do(ctx, b.op("findBy"), b.policy, func(ctx context.Context) ([]T, error) {
		rows, err := b.st.From(b.table).Select(ctx, q)
		if err != nil {
			return nil, apperr.Database(b.domain, b.op("findBy"), err, nil)
		}
		items := make([]T, 0, len(rows))
		for _, r := range rows {
			item, err := b.decode(r)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	})
	if err != nil {
		return nil, b.mapper.Map(err, nil)
	}
	return out, nil
}

// Count returns the number of entities matching filters.
func (b *Base[T]) Count(ctx context.Context, filters map[string]any) (int64, error) {
	cols, err := b.columns(filters)
	if err != nil {
		return 0, err
	}
	n, err := retry.Do(ctx, b.op("count"), b.policy, func(ctx context.Context) (int64, error) {
		n, err := b.st.From(b.table).Count(ctx, cols)
		if err != nil {
			return 0, apperr.Database(b.domain, b.op("count"), err, nil)
		}
		return n, nil
	})
	if err != nil {
		return 0, b.mapper.Map(err, nil)
	}
	return n, nil
}

// Stats returns the count and latest updatedAt of entities matching
// filters, suitable for building ETags.
func (b *Base[T]) Stats(ctx context.Context, filters map[string]any) (Stats, error) {
	cols, err := b.columns(filters)
	if err != nil {
		return Stats{}, err
	}
	st, err := retry.Do(ctx, b.op("stats"), b.policy, func(ctx context.Context) (Stats, error) {
		t := b.st.From(b.table)
		n, err := t.Count(ctx, cols)
		if err != nil {
			return Stats{}, apperr.Database(b.domain, b.op("stats"), err, nil)
		}
		out := Stats{Count: n}
		if n == 0 {
			return out, nil
		}
		rows, err := t.Select(ctx, store.Query{Filters: cols, OrderBy: "updated_at", Desc: true, Limit: 1})
		if err != nil {
			return Stats{}, apperr.Database(b.domain, b.op("stats"), err, nil)
		}
		if len(rows) == 1 {
			ts, err := parseTime(rows[0]["updated_at"])
			if err != nil {
				return Stats{}, apperr.Repository(b.domain, "decode updated_at", err, nil)
			}
			if ts != nil {
				out.LastUpdated = *ts
			}
		}
		return out, nil
	})
	if err != nil {
		return Stats{}, b.mapper.Map(err, nil)
	}
	return st, nil
}

func (b *Base[T]) query(filters map[string]any, opts ListOptions) (store.Query, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return store.Query{}, apperr.Validation(b.domain, "limit and offset must not be negative",
			map[string]any{"limit": opts.Limit, "offset": opts.Offset})
	}
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	cols, err := b.columns(filters)
	if err != nil {
		return store.Query{}, err
	}
	q := store.Query{Filters: cols, Limit: limit, Offset: opts.Offset, OrderBy: "created_at"}
	if opts.SortBy != "" {
		if !b.sortable(opts.SortBy) {
			return store.Query{}, apperr.Validation(b.domain, "unknown sort field "+opts.SortBy,
				map[string]any{"sortBy": opts.SortBy})
		}
		q.OrderBy = codec.ToSnake(opts.SortBy)
	}
	switch strings.ToLower(opts.SortDirection) {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		return store.Query{}, apperr.Validation(b.domain, "sort direction must be asc or desc",
			map[string]any{"sortDirection": opts.SortDirection})
	}
	return q, nil
}

func (b *Base[T]) sortable(field string) bool {
	k, ok := b.meta.kinds[field]
	return ok && k != kindJSON
}

// columns validates lowerCamel filter names and converts them to columns.
func (b *Base[T]) columns(filters map[string]any) (map[string]any, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	var unknown []string
	out := make(map[string]any, len(filters))
	for k, v := range filters {
		if !b.sortable(k) {
			unknown = append(unknown, k)
			continue
		}
		if t, ok := v.(time.Time); ok {
			v = t.UTC()
		}
		out[codec.ToSnake(k)] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, apperr.Validation(b.domain, "unknown filter fields: "+strings.Join(unknown, ", "),
			map[string]any{"fields": unknown})
	}
	return out, nil
}

// WithEntityID copies evs, adding the entity id to payloads that lack one.
// Entities record creation events before an id is assigned.
func WithEntityID(evs []domain.Event, id string) []domain.Event {
	if len(evs) == 0 {
		return nil
	}
	out := make([]domain.Event, len(evs))
	for i, ev := range evs {
		p := make(map[string]any, len(ev.Payload)+1)
		for k, v := range ev.Payload {
			p[k] = v
		}
		if _, ok := p["id"]; !ok {
			p["id"] = id
		}
		ev.Payload = p
		out[i] = ev
	}
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
