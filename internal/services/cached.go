package services

import (
	"context"
	"reflect"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-challenge-backend/internal/cache"
)

var tracer = otel.Tracer("github.com/tbourn/go-challenge-backend/internal/services")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// readThrough serves key from the cache, loading it on a miss. A nil load
// result is reported as not found so that absence is never cached.
func readThrough[T any](ctx context.Context, m *cache.Manager, key string, ttl time.Duration, notFoundErr func() error, load func(context.Context) (T, error)) (T, error) {
	produce := func(ctx context.Context) (T, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		if isNilValue(v) {
			return v, notFoundErr()
		}
		return v, nil
	}
	if m == nil {
		v, err := produce(ctx)
		return v, internalError(err)
	}
	v, err := cache.GetOrSet(ctx, m.Cache(), key, ttl, produce)
	return v, internalError(err)
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// invalidate drops cached entries after a committed write. Failures are
// logged by the manager and never fail the write.
func invalidate(ctx context.Context, m *cache.Manager, entityType, id string, extra ...string) {
	if m == nil {
		return
	}
	_ = m.InvalidateEntity(ctx, entityType, id, extra...)
}

func listKey(parts ...any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		switch v := p.(type) {
		case string:
			s[i] = v
		case int:
			s[i] = strconv.Itoa(v)
		}
	}
	return cache.Key(s...)
}
