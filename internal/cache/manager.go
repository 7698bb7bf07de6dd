package cache

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tbourn/go-challenge-backend/internal/observability"
	"github.com/tbourn/go-challenge-backend/internal/sysutil"
)

// Manager knows which cache keys depend on which entity type and removes
// them after a committed write. Patterns ending in '*' match by prefix;
// "{id}" inside a pattern is replaced by the entity id.
type Manager struct {
	cache Service

	mu       sync.RWMutex
	patterns map[string][]string
	counts   map[string]int64
}

// NewManager returns a Manager operating on c.
func NewManager(c Service) *Manager {
	return &Manager{
		cache:    c,
		patterns: make(map[string][]string),
		counts:   make(map[string]int64),
	}
}

// Cache returns the underlying cache.
func (m *Manager) Cache() Service { return m.cache }

// Register adds dependent key patterns for entityType.
func (m *Manager) Register(entityType string, patterns ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns[entityType] = append(m.patterns[entityType], patterns...)
}

// Patterns returns the registered patterns for entityType.
func (m *Manager) Patterns(entityType string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.patterns[entityType]...)
}

// InvalidateEntity removes the entity's primary-key entry, every registered
// pattern for its type and any extra patterns (typically secondary indexes
// such as "challenge:byUser:<userId>:*"). All deletions are attempted.
func (m *Manager) InvalidateEntity(ctx context.Context, entityType, id string, extra ...string) error {
	targets := []string{}
	if id != "" {
		targets = append(targets, ByIDKey(entityType, id))
	}
	for _, p := range m.Patterns(entityType) {
		targets = append(targets, strings.ReplaceAll(p, "{id}", id))
	}
	targets = append(targets, extra...)

	var errs []error
	for _, t := range targets {
		if _, err := m.InvalidatePattern(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	m.counts[entityType]++
	m.mu.Unlock()
	observability.CacheInvalidations.WithLabelValues(entityType).Inc()

	err := errors.Join(errs...)
	if err != nil {
		sysutil.LoggerFrom(ctx).Warn().Err(err).
			Str("entity_type", entityType).
			Str("id", id).
			Msg("cache invalidation incomplete")
	}
	return err
}

// InvalidatePattern deletes one key, or every key with the prefix when the
// pattern ends in '*'. It returns the number of keys targeted.
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	prefix, ok := strings.CutSuffix(pattern, "*")
	if !ok {
		return 1, m.cache.Delete(ctx, pattern)
	}
	keys, err := m.cache.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	var errs []error
	for _, k := range keys {
		if err := m.cache.Delete(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return len(keys), errors.Join(errs...)
}

// Counts returns invalidations per entity type since start.
func (m *Manager) Counts() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}
