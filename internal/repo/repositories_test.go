package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/store"
)

func TestAutoMigrate_CreatesAllTables(t *testing.T) {
	st := newTestStore(t)
	m := st.DB().Migrator()
	for _, model := range Models() {
		if !m.HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
	if !m.HasIndex(&domain.Idempotency{}, "ux_idem_user_scope_key") {
		t.Fatalf("missing idempotency unique index")
	}
}

func TestProgressRepo_FindByUser(t *testing.T) {
	st := newTestStore(t)
	r := NewProgressRepo(testDeps(st, nil))
	ctx := context.Background()

	if got, err := r.FindByUser(ctx, "u1", ""); err != nil || got != nil {
		t.Fatalf("expected nil, got (%v, %v)", got, err)
	}
	overall := domain.NewProgress("u1", "")
	if _, err := r.Save(ctx, overall); err != nil {
		t.Fatalf("save overall: %v", err)
	}
	perChallenge := domain.NewProgress("u1", "c1")
	if err := perChallenge.RecordScore(85, time.Now()); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := r.Save(ctx, perChallenge); err != nil {
		t.Fatalf("save per challenge: %v", err)
	}

	got, err := r.FindByUser(ctx, "u1", "c1")
	if err != nil || got == nil || got.BestScore != 85 || got.Level != 5 || got.LastActivityAt == nil {
		t.Fatalf("unexpected per-challenge progress %+v err=%v", got, err)
	}
	got, _ = r.FindByUser(ctx, "u1", "")
	if got == nil || got.ChallengeID != "" || got.Attempts != 0 {
		t.Fatalf("unexpected overall progress %+v", got)
	}
	all, err := r.ListByUser(ctx, "u1", ListOptions{})
	if err != nil || len(all) != 2 {
		t.Fatalf("ListByUser: %d %v", len(all), err)
	}
	if _, err := r.FindByUser(ctx, "", ""); err == nil {
		t.Fatalf("expected validation error for missing user")
	}
}

func TestJourneyRepo_ListByUserNewestFirst(t *testing.T) {
	st := newTestStore(t)
	r := NewJourneyRepo(testDeps(st, nil))
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, typ := range []string{"challenge.created", "evaluation.submitted", "progress.updated"} {
		if _, err := r.Save(ctx, domain.NewJourneyEvent("u1", typ, map[string]any{"n": i}, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := r.ListByUser(ctx, "u1", ListOptions{})
	if err != nil || len(got) != 3 {
		t.Fatalf("ListByUser: %d %v", len(got), err)
	}
	if got[0].EventType != "progress.updated" || got[2].EventType != "challenge.created" {
		t.Fatalf("unexpected order: %s .. %s", got[0].EventType, got[2].EventType)
	}
	if !got[0].OccurredAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("occurredAt=%v", got[0].OccurredAt)
	}
}

func TestEvaluationRepo_Lists(t *testing.T) {
	st := newTestStore(t)
	r := NewEvaluationRepo(testDeps(st, nil))
	ctx := context.Background()
	ch := "00000000-0000-4000-8000-00000000000a"

	for _, u := range []string{"u1", "u1", "u2"} {
		if _, err := r.Save(ctx, domain.NewEvaluation(ch, u, "answer")); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	mine, err := r.ListByUser(ctx, "u1", ListOptions{})
	if err != nil || len(mine) != 2 {
		t.Fatalf("ListByUser: %d %v", len(mine), err)
	}
	all, err := r.ListByChallenge(ctx, ch, ListOptions{})
	if err != nil || len(all) != 3 {
		t.Fatalf("ListByChallenge: %d %v", len(all), err)
	}
}

func TestIdempotencyRepo_CreateFindDuplicateExpired(t *testing.T) {
	st := newTestStore(t)
	r := NewIdempotencyRepo(testDeps(st, nil))
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	rec := func(resource string, expires time.Time) *domain.Idempotency {
		return &domain.Idempotency{UserID: "u1", Scope: "evaluations", Key: "k1", ResourceID: resource, Status: 201, ExpiresAt: expires}
	}
	inTx := func(fn func(tx store.Tx) error) error {
		_, err := WithTransaction(ctx, st, func(ctx context.Context, tx store.Tx) (Outcome[struct{}], error) {
			return Outcome[struct{}]{}, fn(tx)
		}, TxOptions{})
		return err
	}

	if err := inTx(func(tx store.Tx) error {
		got, err := r.FindActiveTx(ctx, tx, "u1", "evaluations", "k1", now)
		if err != nil || got != nil {
			t.Fatalf("expected no record, got (%v, %v)", got, err)
		}
		_, err = r.CreateTx(ctx, tx, rec("e1", now.Add(time.Hour)), now)
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := inTx(func(tx store.Tx) error {
		_, err := r.CreateTx(ctx, tx, rec("e2", now.Add(time.Hour)), now)
		return err
	})
	if !IsDuplicate(err) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	if err := inTx(func(tx store.Tx) error {
		got, err := r.FindActiveTx(ctx, tx, "u1", "evaluations", "k1", now)
		if err != nil || got == nil || got.ResourceID != "e1" || got.Status != 201 {
			t.Fatalf("expected live record e1, got (%+v, %v)", got, err)
		}
		return nil
	}); err != nil {
		t.Fatalf("find: %v", err)
	}

	later := now.Add(2 * time.Hour)
	if err := inTx(func(tx store.Tx) error {
		if got, _ := r.FindActiveTx(ctx, tx, "u1", "evaluations", "k1", later); got != nil {
			t.Fatalf("expired record returned")
		}
		_, err := r.CreateTx(ctx, tx, rec("e3", later.Add(time.Hour)), later)
		return err
	}); err != nil {
		t.Fatalf("replace expired: %v", err)
	}
	if n, _ := r.Count(ctx, nil); n != 1 {
		t.Fatalf("rows=%d want 1", n)
	}
	got, err := r.FindActive(ctx, "u1", "evaluations", "k1", later)
	if err != nil || got == nil || got.ResourceID != "e3" {
		t.Fatalf("FindActive outside tx: (%+v, %v)", got, err)
	}
	if got, _ := r.FindActive(ctx, "u1", "other", "k1", later); got != nil {
		t.Fatalf("scope must namespace keys")
	}
}
