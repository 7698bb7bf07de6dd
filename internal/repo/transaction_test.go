package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-challenge-backend/internal/apperr"
	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/events"
	"github.com/tbourn/go-challenge-backend/internal/observability"
	"github.com/tbourn/go-challenge-backend/internal/store"
)

func journeyRow(id, user string) store.Row {
	return store.Row{
		"id":          id,
		"user_id":     user,
		"event_type":  "challenge.created",
		"occurred_at": "2025-01-01 00:00:00+00:00",
		"created_at":  "2025-01-01 00:00:00+00:00",
		"updated_at":  "2025-01-01 00:00:00+00:00",
	}
}

func TestWithTransaction_CommitThenPublishInOrder(t *testing.T) {
	st := newTestStore(t)
	bus := &events.Recorder{}
	ctx := context.Background()

	e1 := domain.NewEvent("a.one", nil)
	e2 := domain.NewEvent("a.two", nil)
	got, err := WithTransaction(ctx, st, func(ctx context.Context, tx store.Tx) (Outcome[string], error) {
		if len(bus.Events()) != 0 {
			t.Fatalf("published before commit")
		}
		if err := tx.From("journey_events").Insert(ctx, journeyRow("j1", "u1")); err != nil {
			return Outcome[string]{}, err
		}
		return Outcome[string]{Result: "ok", Events: []domain.Event{e1, e2}}, nil
	}, TxOptions{Bus: bus, EntityType: "journey"})
	if err != nil || got != "ok" {
		t.Fatalf("WithTransaction: %q %v", got, err)
	}
	if types := bus.Types(); len(types) != 2 || types[0] != "a.one" || types[1] != "a.two" {
		t.Fatalf("unexpected publish order %v", types)
	}
	if n, _ := st.From("journey_events").Count(ctx, nil); n != 1 {
		t.Fatalf("row not committed: %d", n)
	}
}

func TestWithTransaction_ErrorRollsBackAndPublishesNothing(t *testing.T) {
	st := newTestStore(t)
	bus := &events.Recorder{}
	ctx := context.Background()
	boom := errors.New("boom")

	rolled := observability.Transactions.WithLabelValues("journey", "rolled_back")
	before := testutil.ToFloat64(rolled)

	_, err := WithTransaction(ctx, st, func(ctx context.Context, tx store.Tx) (Outcome[int], error) {
		if err := tx.From("journey_events").Insert(ctx, journeyRow("j1", "u1")); err != nil {
			return Outcome[int]{}, err
		}
		return Outcome[int]{Events: []domain.Event{domain.NewEvent("x", nil)}}, boom
	}, TxOptions{Bus: bus, EntityType: "journey", Operation: "journey.test"})

	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindDatabase || !errors.Is(err, boom) {
		t.Fatalf("expected database error wrapping cause, got %v", err)
	}
	if ae.Meta("operation") != "journey.test" {
		t.Fatalf("operation meta %v", ae.Metadata)
	}
	if len(bus.Events()) != 0 {
		t.Fatalf("published after rollback: %v", bus.Types())
	}
	if n, _ := st.From("journey_events").Count(ctx, nil); n != 0 {
		t.Fatalf("write survived rollback: %d", n)
	}
	if d := testutil.ToFloat64(rolled) - before; d != 1 {
		t.Fatalf("rolled_back delta=%v", d)
	}
}

func TestWithTransaction_AppErrorReturnedAsIs(t *testing.T) {
	st := newTestStore(t)
	want := apperr.Validation("journey", "bad", nil)
	_, err := WithTransaction(context.Background(), st, func(context.Context, store.Tx) (Outcome[int], error) {
		return Outcome[int]{}, want
	}, TxOptions{})
	if err != want {
		t.Fatalf("expected the same error, got %v", err)
	}
}

func TestWithTransaction_PublishFailureKeepsCommit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	bus := &events.Recorder{Fail: func(ev domain.Event) error {
		if ev.Type == "a.one" {
			return errors.New("subscriber down")
		}
		return nil
	}}

	_, err := WithTransaction(ctx, st, func(ctx context.Context, tx store.Tx) (Outcome[struct{}], error) {
		if err := tx.From("journey_events").Insert(ctx, journeyRow("j1", "u1")); err != nil {
			return Outcome[struct{}]{}, err
		}
		return Outcome[struct{}]{Events: []domain.Event{domain.NewEvent("a.one", nil), domain.NewEvent("a.two", nil)}}, nil
	}, TxOptions{Bus: bus, EntityType: "journey"})
	if err != nil {
		t.Fatalf("publish failure must not fail the unit: %v", err)
	}
	if types := bus.Types(); len(types) != 2 {
		t.Fatalf("remaining events must still be published: %v", types)
	}
	if n, _ := st.From("journey_events").Count(ctx, nil); n != 1 {
		t.Fatalf("commit lost: %d", n)
	}
}

func TestWithTransaction_SkipEvents(t *testing.T) {
	st := newTestStore(t)
	bus := &events.Recorder{}
	_, err := WithTransaction(context.Background(), st, func(context.Context, store.Tx) (Outcome[int], error) {
		return Outcome[int]{Events: []domain.Event{domain.NewEvent("x", nil)}}, nil
	}, TxOptions{Bus: bus, SkipEvents: true})
	if err != nil || len(bus.Events()) != 0 {
		t.Fatalf("err=%v events=%v", err, bus.Types())
	}
}

func TestWithTransaction_BeginFailure(t *testing.T) {
	st := newTestStore(t)
	_ = st.Close()

	called := false
	_, err := WithTransaction(context.Background(), st, func(context.Context, store.Tx) (Outcome[int], error) {
		called = true
		return Outcome[int]{}, nil
	}, TxOptions{})
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindDatabase || ae.Meta("operation") != "withTransaction.begin" {
		t.Fatalf("expected begin database error, got %v", err)
	}
	if called {
		t.Fatalf("fn must not run without a transaction")
	}
}

// commitFailStore hands out real transactions whose Commit fails without
// committing.
type commitFailStore struct {
	*store.GormStore
	err       error
	rollbacks int
}

func (s *commitFailStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.GormStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &commitFailTx{Tx: tx, s: s}, nil
}

type commitFailTx struct {
	store.Tx
	s *commitFailStore
}

func (t *commitFailTx) Commit() error { return t.s.err }

func (t *commitFailTx) Rollback() error {
	t.s.rollbacks++
	return t.Tx.Rollback()
}

func TestWithTransaction_CommitFailureRollsBackAndPublishesNothing(t *testing.T) {
	base := newTestStore(t)
	st := &commitFailStore{GormStore: base, err: errors.New("disk I/O error")}
	bus := &events.Recorder{}
	ctx := context.Background()

	_, err := WithTransaction(ctx, st, func(ctx context.Context, tx store.Tx) (Outcome[string], error) {
		if err := tx.From("journey_events").Insert(ctx, journeyRow("j3", "u1")); err != nil {
			return Outcome[string]{}, err
		}
		return Outcome[string]{Result: "ok", Events: []domain.Event{domain.NewEvent("a.one", nil)}}, nil
	}, TxOptions{Bus: bus, EntityType: "journey"})

	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindDatabase || ae.Meta("operation") != "withTransaction" {
		t.Fatalf("expected commit database error, got %v", err)
	}
	if !errors.Is(err, st.err) {
		t.Fatalf("commit cause lost: %v", err)
	}
	if st.rollbacks != 1 {
		t.Fatalf("expected one rollback, got %d", st.rollbacks)
	}
	if n := len(bus.Events()); n != 0 {
		t.Fatalf("events published after failed commit: %d", n)
	}
	if n, _ := base.From("journey_events").Count(ctx, nil); n != 0 {
		t.Fatalf("row visible after failed commit: %d", n)
	}
}

func TestWithTransaction_TxSingleUse(t *testing.T) {
	st := newTestStore(t)
	var leaked store.Tx
	_, err := WithTransaction(context.Background(), st, func(_ context.Context, tx store.Tx) (Outcome[int], error) {
		leaked = tx
		return Outcome[int]{}, nil
	}, TxOptions{})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}
	if err := leaked.From("journey_events").Insert(context.Background(), journeyRow("j2", "u1")); !errors.Is(err, store.ErrTxDone) {
		t.Fatalf("expected ErrTxDone, got %v", err)
	}
}

func TestTxState_String(t *testing.T) {
	want := map[TxState]string{
		TxIdle: "idle", TxBegan: "began", TxCommitted: "committed",
		TxEventsPublished: "events_published", TxRolledBack: "rolled_back",
	}
	for s, w := range want {
		if s.String() != w {
			t.Fatalf("%d: %q want %q", s, s.String(), w)
		}
	}
}
