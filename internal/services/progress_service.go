// Package services – ProgressService
//
// ProgressService maintains per-challenge and overall progress records. Scores
// arrive either directly (PUT /progress) or from evaluation.completed events.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tbourn/go-challenge-backend/internal/apperr"
	"github.com/tbourn/go-challenge-backend/internal/cache"
	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/events"
	"github.com/tbourn/go-challenge-backend/internal/repo"
	"github.com/tbourn/go-challenge-backend/internal/sysutil"
)

// ProgressService records scores and serves progress reads.
type ProgressService struct {
	Repo  *repo.ProgressRepo
	Cache *cache.Manager
	TTL   time.Duration
	Now   func() time.Time
}

// NewProgressService constructs a ProgressService.
func NewProgressService(r *repo.ProgressRepo, m *cache.Manager, ttl time.Duration) *ProgressService {
	return &ProgressService{Repo: r, Cache: m, TTL: ttl, Now: time.Now}
}

func progressKey(userID, challengeID string) string {
	return cache.Key(repo.DomainProgress, "byUser", userID, challengeID)
}

func progressUserPrefix(userID string) string {
	return cache.Key(repo.DomainProgress, "byUser", userID) + ":*"
}

// Get returns the user's progress for challengeID; an empty challengeID
// selects the overall record.
func (s *ProgressService) Get(ctx context.Context, userID, challengeID string) (*domain.Progress, error) {
	return readThrough(ctx, s.Cache, progressKey(userID, challengeID), s.TTL,
		func() error { return notFound(repo.DomainProgress, userID+"/"+challengeID) },
		func(ctx context.Context) (*domain.Progress, error) { return s.Repo.FindByUser(ctx, userID, challengeID) })
}

// List returns every progress record of the user.
func (s *ProgressService) List(ctx context.Context, userID string) ([]*domain.Progress, error) {
	return readThrough(ctx, s.Cache, progressKey(userID, "*all"), s.TTL, nil, func(ctx context.Context) ([]*domain.Progress, error) {
		return s.Repo.ListByUser(ctx, userID, repo.ListOptions{Limit: repo.MaxLimit})
	})
}

// RecordScore applies an attempt to the challenge record and to the user's
// overall record. It returns the updated challenge record.
func (s *ProgressService) RecordScore(ctx context.Context, userID, challengeID string, score float64) (*domain.Progress, error) {
	ctx, span := startSpan(ctx, "ProgressService.RecordScore")
	defer span.End()

	p, err := s.record(ctx, userID, challengeID, score)
	if err != nil {
		return nil, err
	}
	if challengeID != "" {
		if _, err := s.record(ctx, userID, "", score); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *ProgressService) record(ctx context.Context, userID, challengeID string, score float64) (*domain.Progress, error) {
	saved, err := s.recordOnce(ctx, userID, challengeID, score)
	if repo.IsDuplicate(err) {
		// Another request created the record first; apply on top of it.
		saved, err = s.recordOnce(ctx, userID, challengeID, score)
	}
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.Cache, repo.DomainProgress, saved.ID, progressUserPrefix(userID))
	return saved, nil
}

func (s *ProgressService) recordOnce(ctx context.Context, userID, challengeID string, score float64) (*domain.Progress, error) {
	p, err := s.Repo.FindByUser(ctx, userID, challengeID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = domain.NewProgress(userID, challengeID)
	}
	if err := p.RecordScore(score, s.Now()); err != nil {
		return nil, apperr.FromValidation(repo.DomainProgress, err)
	}
	return s.Repo.Save(ctx, p)
}

// HandleEvaluationCompleted updates progress from an evaluation.completed
// event.
func (s *ProgressService) HandleEvaluationCompleted(ctx context.Context, ev domain.Event) error {
	userID, _ := ev.Payload["userId"].(string)
	challengeID, _ := ev.Payload["challengeId"].(string)
	score, ok := toFloat(ev.Payload["score"])
	if userID == "" || !ok {
		return fmt.Errorf("progress: malformed %s payload", ev.Type)
	}
	if _, err := s.RecordScore(ctx, userID, challengeID, score); err != nil {
		sysutil.LoggerFrom(ctx).Error().Err(err).Str("user_id", userID).Msg("progress update from evaluation failed")
		return err
	}
	return nil
}

// Subscribe registers the service's event handlers on bus. Events relayed
// from other instances are skipped; the publishing instance records them.
func (s *ProgressService) Subscribe(bus events.Bus) func() {
	return bus.Subscribe(domain.EventEvaluationCompleted, events.LocalOnly(s.HandleEvaluationCompleted))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
