package repo

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-challenge-backend/internal/apperr"
	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/events"
	"github.com/tbourn/go-challenge-backend/internal/observability"
	"github.com/tbourn/go-challenge-backend/internal/store"
	"github.com/tbourn/go-challenge-backend/internal/sysutil"
)

// Outcome is what a unit of work returns: its result and the domain events
// to publish once the transaction has committed.
type Outcome[R any] struct {
	Result R
	Events []domain.Event
}

// TxOptions tunes WithTransaction. The zero value publishes nothing because
// it has no Bus.
type TxOptions struct {
	Bus        events.Publisher
	SkipEvents bool
	Operation  string
	EntityType string
	Logger     *zerolog.Logger
}

// TxState is the lifecycle position of one unit of work.
type TxState uint8

const (
	TxIdle TxState = iota
	TxBegan
	TxCommitted
	TxEventsPublished
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxBegan:
		return "began"
	case TxCommitted:
		return "committed"
	case TxEventsPublished:
		return "events_published"
	case TxRolledBack:
		return "rolled_back"
	default:
		return "idle"
	}
}

type unit struct {
	state TxState
	lg    zerolog.Logger
}

func (u *unit) to(s TxState) {
	u.lg.Debug().Str("from", u.state.String()).Str("to", s.String()).Msg("unit of work")
	u.state = s
}

// WithTransaction runs fn inside a store transaction. On success it commits
// and then publishes the outcome's events in order; publish failures are
// logged and do not undo the commit. On failure it rolls back and publishes
// nothing. Errors that are not already *apperr.Error become database errors.
func WithTransaction[R any](ctx context.Context, st store.Store, fn func(ctx context.Context, tx store.Tx) (Outcome[R], error), opts TxOptions) (R, error) {
	var zero R
	op := opts.Operation
	if op == "" {
		op = "withTransaction"
	}
	base := sysutil.LoggerFrom(ctx)
	if opts.Logger != nil {
		base = opts.Logger
	}
	u := &unit{lg: base.With().Str("operation", op).Str("entity_type", opts.EntityType).Logger()}
	meta := map[string]any{"operation": op, "entityType": opts.EntityType}

	tx, err := st.Begin(ctx)
	if err != nil {
		observability.Transactions.WithLabelValues(opts.EntityType, "begin_failed").Inc()
		return zero, apperr.Database("", "withTransaction.begin", err, meta)
	}
	u.to(TxBegan)

	out, err := fn(ctx, tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			u.lg.Error().Err(rbErr).AnErr("cause", err).Msg("rollback failed")
		}
		u.to(TxRolledBack)
		observability.Transactions.WithLabelValues(opts.EntityType, "rolled_back").Inc()
		if _, ok := apperr.As(err); ok {
			return zero, err
		}
		return zero, apperr.Database("", op, err, meta)
	}

	if err := tx.Commit(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, store.ErrTxDone) {
			u.lg.Error().Err(rbErr).Msg("rollback after failed commit")
		}
		u.to(TxRolledBack)
		observability.Transactions.WithLabelValues(opts.EntityType, "commit_failed").Inc()
		return zero, apperr.Database("", "withTransaction", err, meta)
	}
	u.to(TxCommitted)
	observability.Transactions.WithLabelValues(opts.EntityType, "committed").Inc()

	if opts.SkipEvents || opts.Bus == nil || len(out.Events) == 0 {
		return out.Result, nil
	}
	// The commit is durable; a caller cancelling now must not drop events.
	pubCtx := context.WithoutCancel(ctx)
	for _, ev := range out.Events {
		if err := opts.Bus.Publish(pubCtx, ev); err != nil {
			observability.EventsPublished.WithLabelValues(ev.Type, "failed").Inc()
			u.lg.Error().Err(err).Str("event_type", ev.Type).Msg("publish after commit failed")
			continue
		}
		observability.EventsPublished.WithLabelValues(ev.Type, "ok").Inc()
	}
	u.to(TxEventsPublished)
	return out.Result, nil
}
