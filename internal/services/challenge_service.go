// Package services – ChallengeService
//
// ChallengeService owns the lifecycle of generated challenges: creation,
// revision, publishing, archiving and deletion, all scoped to the owning
// user. Reads go through the cache; every committed write invalidates the
// entity and the owner's list pages.
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-challenge-backend/internal/apperr"
	"github.com/tbourn/go-challenge-backend/internal/cache"
	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/repo"
	"github.com/tbourn/go-challenge-backend/internal/utils"
)

// ChallengeRepo defines the repository contract required by ChallengeService.
type ChallengeRepo interface {
	FindByID(ctx context.Context, id string) (*domain.Challenge, error)
	Save(ctx context.Context, c *domain.Challenge) (*domain.Challenge, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListByUser(ctx context.Context, userID, status string, opts repo.ListOptions) ([]*domain.Challenge, error)
	StatsByUser(ctx context.Context, userID, status string) (repo.Stats, error)
}

// ChallengeInput carries the editable fields of a challenge.
type ChallengeInput struct {
	Title       string
	Description string
	Category    string
	Difficulty  string
	Content     map[string]any
	Tags        []string
}

// ChallengePage is one page of a user's challenges plus the totals used for
// pagination headers and ETags.
type ChallengePage struct {
	Items []*domain.Challenge
	Stats repo.Stats
}

// ChallengeService provides challenge-level operations.
type ChallengeService struct {
	Repo  ChallengeRepo
	Cache *cache.Manager
	TTL   time.Duration
}

// NewChallengeService constructs a ChallengeService. m may be nil to disable
// caching.
func NewChallengeService(r ChallengeRepo, m *cache.Manager, ttl time.Duration) *ChallengeService {
	return &ChallengeService{Repo: r, Cache: m, TTL: ttl}
}

func challengeListPrefix(userID string) string {
	return cache.Key(repo.DomainChallenge, "byUser", userID) + ":*"
}

// Create stores a new draft challenge owned by userID.
func (s *ChallengeService) Create(ctx context.Context, userID string, in ChallengeInput) (*domain.Challenge, error) {
	ctx, span := startSpan(ctx, "ChallengeService.Create", attribute.String("user.id", userID))
	defer span.End()

	c := domain.NewChallenge(userID, in.Title, in.Description, in.Category, in.Difficulty, in.Content, in.Tags)
	saved, err := s.Repo.Save(ctx, c)
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.Cache, repo.DomainChallenge, saved.ID, challengeListPrefix(userID))
	return saved, nil
}

// Get returns the challenge if it exists and belongs to userID.
func (s *ChallengeService) Get(ctx context.Context, userID, id string) (*domain.Challenge, error) {
	ctx, span := startSpan(ctx, "ChallengeService.Get", attribute.String("challenge.id", id))
	defer span.End()

	c, err := readThrough(ctx, s.Cache, cache.ByIDKey(repo.DomainChallenge, id), s.TTL,
		func() error { return notFound(repo.DomainChallenge, id) },
		func(ctx context.Context) (*domain.Challenge, error) { return s.Repo.FindByID(ctx, id) })
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, notFound(repo.DomainChallenge, id)
	}
	return c, nil
}

// load reads the challenge uncached so the caller can mutate it safely.
func (s *ChallengeService) load(ctx context.Context, userID, id string) (*domain.Challenge, error) {
	c, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil || c.UserID != userID {
		return nil, notFound(repo.DomainChallenge, id)
	}
	return c, nil
}

func (s *ChallengeService) mutate(ctx context.Context, userID, id string, fn func(c *domain.Challenge) error) (*domain.Challenge, error) {
	c, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, apperr.FromValidation(repo.DomainChallenge, err)
	}
	saved, err := s.Repo.Save(ctx, c)
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.Cache, repo.DomainChallenge, id, challengeListPrefix(userID))
	return saved, nil
}

// Update revises title, description, category, content and tags.
func (s *ChallengeService) Update(ctx context.Context, userID, id string, in ChallengeInput) (*domain.Challenge, error) {
	return s.mutate(ctx, userID, id, func(c *domain.Challenge) error {
		c.Revise(in.Title, in.Description, in.Category, in.Content, in.Tags)
		return nil
	})
}

// Publish makes a draft challenge active.
func (s *ChallengeService) Publish(ctx context.Context, userID, id string) (*domain.Challenge, error) {
	return s.mutate(ctx, userID, id, func(c *domain.Challenge) error { return c.Publish() })
}

// Archive retires a challenge.
func (s *ChallengeService) Archive(ctx context.Context, userID, id string) (*domain.Challenge, error) {
	return s.mutate(ctx, userID, id, func(c *domain.Challenge) error {
		c.Archive()
		return nil
	})
}

// Delete removes a challenge owned by userID.
func (s *ChallengeService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.load(ctx, userID, id); err != nil {
		return err
	}
	ok, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	invalidate(ctx, s.Cache, repo.DomainChallenge, id, challengeListPrefix(userID))
	if !ok {
		return notFound(repo.DomainChallenge, id)
	}
	return nil
}

// ListPage returns a page of the user's challenges, newest first, optionally
// filtered by status.
func (s *ChallengeService) ListPage(ctx context.Context, userID, status string, page, pageSize int) (ChallengePage, error) {
	ctx, span := startSpan(ctx, "ChallengeService.ListPage",
		attribute.String("user.id", userID), attribute.Int("page", page), attribute.Int("page_size", pageSize))
	defer span.End()

	limit, offset := utils.PageBounds(page, pageSize)
	key := listKey(repo.DomainChallenge, "byUser", userID, status, limit, offset)
	return readThrough(ctx, s.Cache, key, s.TTL, nil, func(ctx context.Context) (ChallengePage, error) {
		st, err := s.Repo.StatsByUser(ctx, userID, status)
		if err != nil {
			return ChallengePage{}, err
		}
		items := []*domain.Challenge{}
		if st.Count > 0 {
			items, err = s.Repo.ListByUser(ctx, userID, status, repo.ListOptions{Limit: limit, Offset: offset})
			if err != nil {
				return ChallengePage{}, err
			}
		}
		return ChallengePage{Items: items, Stats: st}, nil
	})
}
