// Package services – RecommendationService
//
// RecommendationService derives an adaptive next step for a user from their
// progress and recent evaluations: a target difficulty and the categories
// that need practice.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-challenge-backend/internal/apperr"
	"github.com/tbourn/go-challenge-backend/internal/cache"
	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/repo"
	"github.com/tbourn/go-challenge-backend/internal/utils"
)

// Recommendation tuning.
const (
	recentEvaluations = 20
	maxFocusAreas     = 3
)

// RecommendationService generates and resolves recommendations.
type RecommendationService struct {
	Repo        *repo.RecommendationRepo
	Progress    *repo.ProgressRepo
	Evaluations *repo.EvaluationRepo
	Challenges  *repo.ChallengeRepo
	Cache       *cache.Manager
	TTL         time.Duration
}

// NewRecommendationService constructs a RecommendationService.
func NewRecommendationService(r *repo.RecommendationRepo, p *repo.ProgressRepo, e *repo.EvaluationRepo, c *repo.ChallengeRepo, m *cache.Manager, ttl time.Duration) *RecommendationService {
	return &RecommendationService{Repo: r, Progress: p, Evaluations: e, Challenges: c, Cache: m, TTL: ttl}
}

func recommendationListPrefix(userID string) string {
	return cache.Key(repo.DomainRecommendation, "byUser", userID) + ":*"
}

// DifficultyFor maps an average best score to the next difficulty.
func DifficultyFor(avg float64) string {
	switch {
	case avg < 40:
		return domain.DifficultyBeginner
	case avg < domain.PassingScore:
		return domain.DifficultyIntermediate
	case avg < 80:
		return domain.DifficultyAdvanced
	default:
		return domain.DifficultyExpert
	}
}

// Generate builds and stores a pending recommendation for userID.
func (s *RecommendationService) Generate(ctx context.Context, userID string) (*domain.Recommendation, error) {
	ctx, span := startSpan(ctx, "RecommendationService.Generate", attribute.String("user.id", userID))
	defer span.End()

	var (
		progress []*domain.Progress
		evals    []*domain.Evaluation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		progress, err = s.Progress.ListByUser(gctx, userID, repo.ListOptions{Limit: repo.MaxLimit})
		return err
	})
	g.Go(func() error {
		var err error
		evals, err = s.Evaluations.ListByUser(gctx, userID, repo.ListOptions{Limit: recentEvaluations})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, internalError(err)
	}

	avg, samples := averageBest(progress)
	difficulty := DifficultyFor(avg)
	focus, err := s.focusAreas(ctx, evals)
	if err != nil {
		return nil, err
	}

	reason := "no completed challenges yet; start with fundamentals"
	if samples > 0 {
		reason = fmt.Sprintf("average best score %.0f across %d challenges", avg, samples)
		if len(focus) > 0 {
			reason += "; practice " + strings.Join(focus, ", ")
		}
	}

	rec := domain.NewRecommendation(userID, "", difficulty, reason, focus)
	saved, err := s.Repo.Save(ctx, rec)
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.Cache, repo.DomainRecommendation, saved.ID, recommendationListPrefix(userID))
	return saved, nil
}

func averageBest(progress []*domain.Progress) (float64, int) {
	var sum float64
	n := 0
	for _, p := range progress {
		if p.ChallengeID == "" || p.Attempts == 0 {
			continue
		}
		sum += p.BestScore
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// focusAreas returns the categories of challenges whose recent completed
// evaluations scored below passing, most frequent first.
func (s *RecommendationService) focusAreas(ctx context.Context, evals []*domain.Evaluation) ([]string, error) {
	weak := map[string]struct{}{}
	for _, e := range evals {
		if e.Status == domain.EvaluationCompleted && e.Score < domain.PassingScore {
			weak[e.ChallengeID] = struct{}{}
		}
	}
	counts := map[string]int{}
	for id := range weak {
		c, err := s.Challenges.FindByID(ctx, id)
		if err != nil {
			if apperr.IsValidation(err) {
				continue
			}
			return nil, err
		}
		if c != nil && c.Category != "" {
			counts[c.Category]++
		}
	}
	out := make([]string, 0, len(counts))
	for cat := range counts {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > maxFocusAreas {
		out = out[:maxFocusAreas]
	}
	return out, nil
}

// List returns a page of the user's recommendations, optionally by status.
func (s *RecommendationService) List(ctx context.Context, userID, status string, page, pageSize int) ([]*domain.Recommendation, error) {
	limit, offset := utils.PageBounds(page, pageSize)
	key := listKey(repo.DomainRecommendation, "byUser", userID, status, limit, offset)
	return readThrough(ctx, s.Cache, key, s.TTL, nil, func(ctx context.Context) ([]*domain.Recommendation, error) {
		return s.Repo.ListByUser(ctx, userID, status, repo.ListOptions{Limit: limit, Offset: offset})
	})
}

// Accept marks the user's pending recommendation as accepted.
func (s *RecommendationService) Accept(ctx context.Context, userID, id string) (*domain.Recommendation, error) {
	return s.resolve(ctx, userID, id, (*domain.Recommendation).Accept)
}

// Dismiss marks the user's pending recommendation as dismissed.
func (s *RecommendationService) Dismiss(ctx context.Context, userID, id string) (*domain.Recommendation, error) {
	return s.resolve(ctx, userID, id, (*domain.Recommendation).Dismiss)
}

func (s *RecommendationService) resolve(ctx context.Context, userID, id string, fn func(*domain.Recommendation) error) (*domain.Recommendation, error) {
	r, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil || r.UserID != userID {
		return nil, notFound(repo.DomainRecommendation, id)
	}
	if err := fn(r); err != nil {
		return nil, apperr.FromValidation(repo.DomainRecommendation, err)
	}
	saved, err := s.Repo.Save(ctx, r)
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.Cache, repo.DomainRecommendation, id, recommendationListPrefix(userID))
	return saved, nil
}
