// Package services – EvaluationService
//
// EvaluationService records submissions against a user's challenges and
// their completion with a score. Submissions guarded by an idempotency key
// write the evaluation and the key record in one unit of work, so a retried
// request returns the original evaluation instead of creating a second one.
package services

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-challenge-backend/internal/apperr"
	"github.com/tbourn/go-challenge-backend/internal/cache"
	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/repo"
	"github.com/tbourn/go-challenge-backend/internal/retry"
	"github.com/tbourn/go-challenge-backend/internal/store"
	"github.com/tbourn/go-challenge-backend/internal/utils"
)

// ScopeSubmitEvaluation namespaces idempotency keys of evaluation submissions.
const ScopeSubmitEvaluation = "evaluation.submit"

// ChallengeReader is the read side of challenges that other services need.
type ChallengeReader interface {
	Get(ctx context.Context, userID, id string) (*domain.Challenge, error)
}

// Submission is the result of Submit. Replayed is true when an earlier
// submission with the same idempotency key was returned.
type Submission struct {
	Evaluation *domain.Evaluation
	Replayed   bool
}

// EvaluationService coordinates evaluation persistence.
type EvaluationService struct {
	Evaluations *repo.EvaluationRepo
	Idempotency *repo.IdempotencyRepo
	Challenges  ChallengeReader
	Cache       *cache.Manager

	TTL            time.Duration
	IdempotencyTTL time.Duration
	Now            func() time.Time
}

// NewEvaluationService constructs an EvaluationService with a 24h
// idempotency window.
func NewEvaluationService(ev *repo.EvaluationRepo, idem *repo.IdempotencyRepo, ch ChallengeReader, m *cache.Manager, ttl time.Duration) *EvaluationService {
	return &EvaluationService{
		Evaluations:    ev,
		Idempotency:    idem,
		Challenges:     ch,
		Cache:          m,
		TTL:            ttl,
		IdempotencyTTL: 24 * time.Hour,
		Now:            time.Now,
	}
}

func evaluationListPrefix(userID string) string {
	return cache.Key(repo.DomainEvaluation, "byUser", userID) + ":*"
}

// Submit records a response to one of the user's challenges. With a non-empty
// idempotencyKey, a repeated call returns the first evaluation.
func (s *EvaluationService) Submit(ctx context.Context, userID, challengeID, response, idempotencyKey string) (Submission, error) {
	ctx, span := startSpan(ctx, "EvaluationService.Submit",
		attribute.String("user.id", userID), attribute.String("challenge.id", challengeID))
	defer span.End()

	ch, err := s.Challenges.Get(ctx, userID, challengeID)
	if err != nil {
		return Submission{}, err
	}
	if ch.Status == domain.ChallengeArchived {
		return Submission{}, ErrChallengeArchived
	}

	e := domain.NewEvaluation(challengeID, userID, response)
	if idempotencyKey == "" {
		saved, err := s.Evaluations.Save(ctx, e)
		if err != nil {
			return Submission{}, err
		}
		invalidate(ctx, s.Cache, repo.DomainEvaluation, saved.ID, evaluationListPrefix(userID))
		return Submission{Evaluation: saved}, nil
	}

	sub, err := s.submitOnce(ctx, userID, idempotencyKey, e)
	if repo.IsDuplicate(err) {
		// A concurrent request with the same key committed first.
		sub, err = s.submitOnce(ctx, userID, idempotencyKey, e)
	}
	if err != nil {
		return Submission{}, internalError(err)
	}
	if sub.Evaluation.ChallengeID != challengeID {
		return Submission{}, ErrIdempotencyKeyReused
	}
	if !sub.Replayed {
		invalidate(ctx, s.Cache, repo.DomainEvaluation, sub.Evaluation.ID, evaluationListPrefix(userID))
	}
	return sub, nil
}

func (s *EvaluationService) submitOnce(ctx context.Context, userID, key string, e *domain.Evaluation) (Submission, error) {
	return retry.Do(ctx, "evaluation.submit", s.Evaluations.Policy(), func(ctx context.Context) (Submission, error) {
		return repo.WithTransaction(ctx, s.Evaluations.Store(), func(ctx context.Context, tx store.Tx) (repo.Outcome[Submission], error) {
			now := s.Now().UTC()
			rec, err := s.Idempotency.FindActiveTx(ctx, tx, userID, ScopeSubmitEvaluation, key, now)
			if err != nil {
				return repo.Outcome[Submission]{}, err
			}
			if rec != nil {
				prev, err := s.Evaluations.FindByIDTx(ctx, tx, rec.ResourceID)
				if err != nil {
					return repo.Outcome[Submission]{}, err
				}
				if prev == nil {
					return repo.Outcome[Submission]{}, notFound(repo.DomainEvaluation, rec.ResourceID)
				}
				return repo.Outcome[Submission]{Result: Submission{Evaluation: prev, Replayed: true}}, nil
			}

			// Work on a copy so a rolled back attempt leaves e untouched.
			fresh := *e
			pending := fresh.PullEvents()
			saved, err := s.Evaluations.SaveTx(ctx, tx, &fresh)
			if err != nil {
				return repo.Outcome[Submission]{}, err
			}
			_, err = s.Idempotency.CreateTx(ctx, tx, &domain.Idempotency{
				UserID:     userID,
				Scope:      ScopeSubmitEvaluation,
				Key:        key,
				ResourceID: saved.ID,
				Status:     http.StatusCreated,
				ExpiresAt:  now.Add(s.IdempotencyTTL),
			}, now)
			if err != nil {
				return repo.Outcome[Submission]{}, err
			}
			return repo.Outcome[Submission]{
				Result: Submission{Evaluation: saved},
				Events: repo.WithEntityID(pending, saved.ID),
			}, nil
		}, repo.TxOptions{Bus: s.Evaluations.Bus(), Operation: "evaluation.submit", EntityType: repo.DomainEvaluation})
	})
}

// Get returns the user's evaluation.
func (s *EvaluationService) Get(ctx context.Context, userID, id string) (*domain.Evaluation, error) {
	e, err := readThrough(ctx, s.Cache, cache.ByIDKey(repo.DomainEvaluation, id), s.TTL,
		func() error { return notFound(repo.DomainEvaluation, id) },
		func(ctx context.Context) (*domain.Evaluation, error) { return s.Evaluations.FindByID(ctx, id) })
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, notFound(repo.DomainEvaluation, id)
	}
	return e, nil
}

// Complete scores a pending evaluation. Progress is updated by subscribers
// of evaluation.completed once the write commits.
func (s *EvaluationService) Complete(ctx context.Context, userID, id string, score float64, feedback map[string]any) (*domain.Evaluation, error) {
	ctx, span := startSpan(ctx, "EvaluationService.Complete", attribute.String("evaluation.id", id))
	defer span.End()

	e, err := s.Evaluations.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil || e.UserID != userID {
		return nil, notFound(repo.DomainEvaluation, id)
	}
	if err := e.Complete(score, feedback); err != nil {
		return nil, apperr.FromValidation(repo.DomainEvaluation, err)
	}
	saved, err := s.Evaluations.Save(ctx, e)
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.Cache, repo.DomainEvaluation, id, evaluationListPrefix(userID))
	return saved, nil
}

// ListMine returns a page of the user's evaluations, newest first.
func (s *EvaluationService) ListMine(ctx context.Context, userID string, page, pageSize int) ([]*domain.Evaluation, error) {
	limit, offset := utils.PageBounds(page, pageSize)
	key := listKey(repo.DomainEvaluation, "byUser", userID, limit, offset)
	return readThrough(ctx, s.Cache, key, s.TTL, nil, func(ctx context.Context) ([]*domain.Evaluation, error) {
		return s.Evaluations.ListByUser(ctx, userID, repo.ListOptions{Limit: limit, Offset: offset})
	})
}
