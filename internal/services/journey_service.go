// Package services – JourneyService
//
// JourneyService keeps a per-user log of notable domain events. It listens
// on the event bus and persists one journey entry per event it tracks.
package services

import (
	"context"
	"time"

	"github.com/tbourn/go-challenge-backend/internal/cache"
	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/events"
	"github.com/tbourn/go-challenge-backend/internal/repo"
	"github.com/tbourn/go-challenge-backend/internal/utils"
)

// TrackedEvents are the event types recorded in a user's journey. Journey
// events themselves are never tracked.
var TrackedEvents = []string{
	domain.EventChallengeCreated,
	domain.EventChallengePublished,
	domain.EventChallengeArchived,
	domain.EventEvaluationSubmitted,
	domain.EventEvaluationCompleted,
	domain.EventProgressMilestone,
	domain.EventRecommendationAccepted,
}

// JourneyService records and lists journey entries.
type JourneyService struct {
	Repo  *repo.JourneyRepo
	Cache *cache.Manager
	TTL   time.Duration
}

// NewJourneyService constructs a JourneyService.
func NewJourneyService(r *repo.JourneyRepo, m *cache.Manager, ttl time.Duration) *JourneyService {
	return &JourneyService{Repo: r, Cache: m, TTL: ttl}
}

func journeyListPrefix(userID string) string {
	return cache.Key(repo.DomainJourney, "byUser", userID) + ":*"
}

// Record stores a journey entry for userID.
func (s *JourneyService) Record(ctx context.Context, userID, eventType string, payload map[string]any, at time.Time) (*domain.JourneyEvent, error) {
	saved, err := s.Repo.Save(ctx, domain.NewJourneyEvent(userID, eventType, payload, at))
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.Cache, repo.DomainJourney, saved.ID, journeyListPrefix(userID))
	return saved, nil
}

// List returns a page of the user's journey, most recent first.
func (s *JourneyService) List(ctx context.Context, userID string, page, pageSize int) ([]*domain.JourneyEvent, error) {
	limit, offset := utils.PageBounds(page, pageSize)
	key := listKey(repo.DomainJourney, "byUser", userID, limit, offset)
	return readThrough(ctx, s.Cache, key, s.TTL, nil, func(ctx context.Context) ([]*domain.JourneyEvent, error) {
		return s.Repo.ListByUser(ctx, userID, repo.ListOptions{Limit: limit, Offset: offset})
	})
}

// Handle records ev for the user named in its payload. Events without a
// user are ignored.
func (s *JourneyService) Handle(ctx context.Context, ev domain.Event) error {
	userID, _ := ev.Payload["userId"].(string)
	if userID == "" {
		return nil
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.Record(ctx, userID, ev.Type, ev.Payload, at)
	return err
}

// Subscribe registers Handle for every tracked event type published by this
// instance and returns a function removing all registrations.
func (s *JourneyService) Subscribe(bus events.Bus) func() {
	unsubs := make([]func(), 0, len(TrackedEvents))
	for _, t := range TrackedEvents {
		unsubs = append(unsubs, bus.Subscribe(t, events.LocalOnly(s.Handle)))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
