package services

import (
	"context"
	"strings"

	"github.com/tbourn/go-challenge-backend/internal/cache"
	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/events"
	"github.com/tbourn/go-challenge-backend/internal/repo"
)

// ownerPrefixes maps an entity type to the pattern of its cached per-user
// lists.
var ownerPrefixes = map[string]func(userID string) string{
	repo.DomainChallenge:      challengeListPrefix,
	repo.DomainEvaluation:     evaluationListPrefix,
	repo.DomainProgress:       progressUserPrefix,
	repo.DomainRecommendation: recommendationListPrefix,
	repo.DomainJourney:        journeyListPrefix,
}

// SubscribeCacheSync drops this instance's cache entries for writes
// committed by other instances. Local writes are invalidated by the
// services themselves.
func SubscribeCacheSync(bus events.Bus, m *cache.Manager) func() {
	if m == nil {
		return func() {}
	}
	return bus.Subscribe(events.Wildcard, events.RemoteOnly(func(ctx context.Context, ev domain.Event) error {
		return invalidateForEvent(ctx, m, ev)
	}))
}

// invalidateForEvent derives the entity type from the event type prefix and
// the id and owner from the payload set by the repository.
func invalidateForEvent(ctx context.Context, m *cache.Manager, ev domain.Event) error {
	entityType, _, ok := strings.Cut(ev.Type, ".")
	prefix, known := ownerPrefixes[entityType]
	if !ok || !known {
		return nil
	}
	id, _ := ev.Payload["id"].(string)
	userID, _ := ev.Payload["userId"].(string)
	if userID == "" {
		if prev, ok := ev.Payload["previous"].(map[string]any); ok {
			userID, _ = prev["userId"].(string)
		}
	}
	if id == "" && userID == "" {
		return nil
	}
	var extra []string
	if userID != "" {
		extra = append(extra, prefix(userID))
	}
	return m.InvalidateEntity(ctx, entityType, id, extra...)
}
