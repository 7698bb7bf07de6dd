// Package cache provides the read-through cache used by the service layer
// and the invalidation manager that keeps it coherent with committed writes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/viccon/sturdyc"
	"golang.org/x/sync/singleflight"
)

// Producer computes a value on a cache miss.
type Producer func(ctx context.Context) (any, error)

// Service is the cache contract consumed by services and the Manager.
type Service interface {
	// GetOrSet returns the cached value for key or stores the producer's
	// result for ttl. Producer errors are returned and nothing is stored.
	GetOrSet(ctx context.Context, key string, producer Producer, ttl time.Duration) (any, error)
	Delete(ctx context.Context, key string) error
	// Keys lists live keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// GetOrSet is the typed form of Service.GetOrSet.
func GetOrSet[T any](ctx context.Context, svc Service, key string, ttl time.Duration, producer func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := svc.GetOrSet(ctx, key, func(ctx context.Context) (any, error) {
		return producer(ctx)
	}, ttl)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: key %q holds %T", key, v)
	}
	return t, nil
}

// Key joins parts with ':'.
func Key(parts ...string) string { return strings.Join(parts, ":") }

// ByIDKey is the primary-key entry for an entity, e.g. "challenge:byId:<id>".
func ByIDKey(entityType, id string) string { return Key(entityType, "byId", id) }

// Config sizes the sturdyc client.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration // default and upper bound for entry TTLs
	EvictionPercentage int
}

// DefaultConfig returns a Config suited to a single API instance.
func DefaultConfig() Config {
	return Config{Capacity: 10000, NumShards: 64, TTL: 5 * time.Minute, EvictionPercentage: 10}
}

// Validate checks the sizing parameters.
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return errors.New("cache: capacity must be > 0")
	case c.NumShards <= 0:
		return errors.New("cache: shards must be > 0")
	case c.TTL <= 0:
		return errors.New("cache: ttl must be > 0")
	case c.EvictionPercentage < 1 || c.EvictionPercentage > 100:
		return errors.New("cache: eviction percentage must be between 1 and 100")
	}
	return nil
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Sturdy implements Service on a sharded in-memory sturdyc client. Entries
// carry their own expiry so callers can pick shorter TTLs per key.
// Concurrent misses on one key share a single producer call.
type Sturdy struct {
	client *sturdyc.Client[entry]
	group  singleflight.Group
	ttl    time.Duration
	now    func() time.Time

	// gen advances on every Delete. A producer whose read started before an
	// invalidation does not store its result.
	mu  sync.Mutex
	gen uint64
}

// NewSturdy builds the cache from cfg.
func NewSturdy(cfg Config) (*Sturdy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := sturdyc.New[entry](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage)
	return &Sturdy{client: client, ttl: cfg.TTL, now: time.Now}, nil
}

func (s *Sturdy) lookup(key string) (any, bool) {
	e, ok := s.client.Get(key)
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (s *Sturdy) GetOrSet(ctx context.Context, key string, producer Producer, ttl time.Duration) (any, error) {
	if v, ok := s.lookup(key); ok {
		return v, nil
	}
	if ttl <= 0 || ttl > s.ttl {
		ttl = s.ttl
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		if v, ok := s.lookup(key); ok {
			return v, nil
		}
		s.mu.Lock()
		start := s.gen
		s.mu.Unlock()

		val, err := producer(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.gen == start {
			s.client.Set(key, entry{value: val, expiresAt: s.now().Add(ttl)})
		}
		s.mu.Unlock()
		return val, nil
	})
	return v, err
}

func (s *Sturdy) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	s.gen++
	s.client.Delete(key)
	s.mu.Unlock()
	// Later callers start a fresh fill instead of joining one that may have
	// read before the write being invalidated.
	s.group.Forget(key)
	return nil
}

func (s *Sturdy) Keys(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for _, k := range s.client.ScanKeys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if _, ok := s.lookup(k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}
