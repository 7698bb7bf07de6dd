package repo

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-challenge-backend/internal/apperr"
	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/events"
	"github.com/tbourn/go-challenge-backend/internal/retry"
	"github.com/tbourn/go-challenge-backend/internal/store"
)

// Repository is the contract every entity repository satisfies.
type Repository[T domain.Entity] interface {
	FindByID(ctx context.Context, id string) (T, error)
	Save(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, opts ListOptions) ([]T, error)
	Count(ctx context.Context, filters map[string]any) (int64, error)
}

var (
	_ Repository[*domain.Challenge]      = (*ChallengeRepo)(nil)
	_ Repository[*domain.Evaluation]     = (*EvaluationRepo)(nil)
	_ Repository[*domain.Progress]       = (*ProgressRepo)(nil)
	_ Repository[*domain.Recommendation] = (*RecommendationRepo)(nil)
	_ Repository[*domain.JourneyEvent]   = (*JourneyRepo)(nil)
	_ Repository[*domain.Idempotency]    = (*IdempotencyRepo)(nil)
)

// Deps are the collaborators shared by all repositories.
type Deps struct {
	Store            store.Store
	Bus              events.Publisher
	Retry            retry.Policy
	MaxRetries       int
	ValidateIDFormat bool
	Logger           *zerolog.Logger
	Now              func() time.Time
}

func (d Deps) config(domainName, table string) Config {
	var lg *zerolog.Logger
	if d.Logger != nil {
		l := d.Logger.With().Str("repo", domainName).Logger()
		lg = &l
	}
	return Config{
		Store:            d.Store,
		Table:            table,
		Domain:           domainName,
		MaxRetries:       d.MaxRetries,
		Retry:            d.Retry,
		Bus:              d.Bus,
		ValidateIDFormat: d.ValidateIDFormat,
		Logger:           lg,
		Now:              d.Now,
	}
}

// ChallengeRepo persists challenges.
type ChallengeRepo struct {
	*Base[*domain.Challenge]
}

func NewChallengeRepo(d Deps) *ChallengeRepo {
	return &ChallengeRepo{NewBase(d.config(DomainChallenge, domain.Challenge{}.TableName()), func() *domain.Challenge { return &domain.Challenge{} })}
}

// ListByUser returns a user's challenges, newest first unless opts sorts
// otherwise. An empty status matches every status.
func (r *ChallengeRepo) ListByUser(ctx context.Context, userID, status string, opts ListOptions) ([]*domain.Challenge, error) {
	if err := r.ValidateRequiredParams(map[string]any{"userId": userID}, "userId"); err != nil {
		return nil, err
	}
	return r.FindBy(ctx, userFilter(userID, status), newestFirst(opts))
}

// StatsByUser returns the count and latest update of a user's challenges.
// An empty status matches every status.
func (r *ChallengeRepo) StatsByUser(ctx context.Context, userID, status string) (Stats, error) {
	if err := r.ValidateRequiredParams(map[string]any{"userId": userID}, "userId"); err != nil {
		return Stats{}, err
	}
	return r.Stats(ctx, userFilter(userID, status))
}

// EvaluationRepo persists evaluations.
type EvaluationRepo struct {
	*Base[*domain.Evaluation]
}

func NewEvaluationRepo(d Deps) *EvaluationRepo {
	return &EvaluationRepo{NewBase(d.config(DomainEvaluation, domain.Evaluation{}.TableName()), func() *domain.Evaluation { return &domain.Evaluation{} })}
}

// ListByUser returns a user's evaluations, newest first.
func (r *EvaluationRepo) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*domain.Evaluation, error) {
	if err := r.ValidateRequiredParams(map[string]any{"userId": userID}, "userId"); err != nil {
		return nil, err
	}
	return r.FindBy(ctx, map[string]any{"userId": userID}, newestFirst(opts))
}

// ListByChallenge returns the evaluations submitted for a challenge.
func (r *EvaluationRepo) ListByChallenge(ctx context.Context, challengeID string, opts ListOptions) ([]*domain.Evaluation, error) {
	if err := r.ValidateID(challengeID); err != nil {
		return nil, err
	}
	return r.FindBy(ctx, map[string]any{"challengeId": challengeID}, newestFirst(opts))
}

// ProgressRepo persists progress records.
type ProgressRepo struct {
	*Base[*domain.Progress]
}

func NewProgressRepo(d Deps) *ProgressRepo {
	return &ProgressRepo{NewBase(d.config(DomainProgress, domain.Progress{}.TableName()), func() *domain.Progress { return &domain.Progress{} })}
}

// FindByUser returns the user's progress for challengeID (empty for the
// overall record), or nil.
func (r *ProgressRepo) FindByUser(ctx context.Context, userID, challengeID string) (*domain.Progress, error) {
	if err := r.ValidateRequiredParams(map[string]any{"userId": userID}, "userId"); err != nil {
		return nil, err
	}
	items, err := r.FindBy(ctx, map[string]any{"userId": userID, "challengeId": challengeID}, ListOptions{Limit: 1})
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// ListByUser returns every progress record of a user.
func (r *ProgressRepo) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*domain.Progress, error) {
	if err := r.ValidateRequiredParams(map[string]any{"userId": userID}, "userId"); err != nil {
		return nil, err
	}
	if opts.SortBy == "" {
		opts.SortBy, opts.SortDirection = "updatedAt", "desc"
	}
	return r.FindBy(ctx, map[string]any{"userId": userID}, opts)
}

// RecommendationRepo persists recommendations.
type RecommendationRepo struct {
	*Base[*domain.Recommendation]
}

func NewRecommendationRepo(d Deps) *RecommendationRepo {
	return &RecommendationRepo{NewBase(d.config(DomainRecommendation, domain.Recommendation{}.TableName()), func() *domain.Recommendation { return &domain.Recommendation{} })}
}

// ListByUser returns a user's recommendations, newest first. An empty status
// matches every status.
func (r *RecommendationRepo) ListByUser(ctx context.Context, userID, status string, opts ListOptions) ([]*domain.Recommendation, error) {
	if err := r.ValidateRequiredParams(map[string]any{"userId": userID}, "userId"); err != nil {
		return nil, err
	}
	return r.FindBy(ctx, userFilter(userID, status), newestFirst(opts))
}

// JourneyRepo persists journey entries.
type JourneyRepo struct {
	*Base[*domain.JourneyEvent]
}

func NewJourneyRepo(d Deps) *JourneyRepo {
	return &JourneyRepo{NewBase(d.config(DomainJourney, domain.JourneyEvent{}.TableName()), func() *domain.JourneyEvent { return &domain.JourneyEvent{} })}
}

// ListByUser returns a user's journey, most recent occurrence first.
func (r *JourneyRepo) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*domain.JourneyEvent, error) {
	if err := r.ValidateRequiredParams(map[string]any{"userId": userID}, "userId"); err != nil {
		return nil, err
	}
	if opts.SortBy == "" {
		opts.SortBy, opts.SortDirection = "occurredAt", "desc"
	}
	return r.FindBy(ctx, map[string]any{"userId": userID}, opts)
}

// IdempotencyRepo persists idempotency records. It is used inside service
// units of work, so its helpers take a transaction.
type IdempotencyRepo struct {
	*Base[*domain.Idempotency]
}

func NewIdempotencyRepo(d Deps) *IdempotencyRepo {
	return &IdempotencyRepo{NewBase(d.config(DomainIdempotency, domain.Idempotency{}.TableName()), func() *domain.Idempotency { return &domain.Idempotency{} })}
}

// FindActiveTx returns the unexpired record for (userID, scope, key), or nil.
func (r *IdempotencyRepo) FindActiveTx(ctx context.Context, tx store.Tx, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return r.findActive(ctx, tx, userID, scope, key, now)
}

// FindActive is FindActiveTx outside a unit of work. The HTTP layer uses it
// to spot replays before any work is done.
func (r *IdempotencyRepo) FindActive(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return r.findActive(ctx, r.Store(), userID, scope, key, now)
}

func (r *IdempotencyRepo) findActive(ctx context.Context, q store.Queryer, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	rec, err := r.findKey(ctx, q, userID, scope, key)
	if err != nil || rec == nil || rec.Expired(now) {
		return nil, err
	}
	return rec, nil
}

// CreateTx stores rec, replacing an expired record with the same key. A live
// record with the same key yields a validation error with reason
// "duplicate".
func (r *IdempotencyRepo) CreateTx(ctx context.Context, tx store.Tx, rec *domain.Idempotency, now time.Time) (*domain.Idempotency, error) {
	old, err := r.findKey(ctx, tx, rec.UserID, rec.Scope, rec.Key)
	if err != nil {
		return nil, err
	}
	if old != nil && old.Expired(now) {
		if _, err := tx.From(r.Table()).Delete(ctx, map[string]any{"id": old.ID}); err != nil {
			return nil, apperr.Database(DomainIdempotency, "idempotency.create", err, nil)
		}
	}
	return r.SaveTx(ctx, tx, rec)
}

func (r *IdempotencyRepo) findKey(ctx context.Context, q store.Queryer, userID, scope, key string) (*domain.Idempotency, error) {
	params := map[string]any{"userId": userID, "scope": scope, "key": key}
	if err := r.ValidateRequiredParams(params, "userId", "scope", "key"); err != nil {
		return nil, err
	}
	rows, err := q.From(r.Table()).Select(ctx, store.Query{
		Filters: map[string]any{"user_id": userID, "scope": scope, "key": key},
		Limit:   1,
	})
	if err != nil {
		return nil, apperr.Database(DomainIdempotency, "idempotency.find", err, nil)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return r.decode(rows[0])
}

// IsDuplicate reports whether err is the validation error SaveTx returns on
// a unique-key violation.
func IsDuplicate(err error) bool {
	ae, ok := apperr.As(err)
	return ok && ae.Kind == apperr.KindValidation && ae.Meta("reason") == "duplicate"
}

func userFilter(userID, status string) map[string]any {
	f := map[string]any{"userId": userID}
	if s := strings.TrimSpace(status); s != "" {
		f["status"] = s
	}
	return f
}

func newestFirst(opts ListOptions) ListOptions {
	if opts.SortBy == "" {
		opts.SortBy, opts.SortDirection = "createdAt", "desc"
	}
	return opts
}
