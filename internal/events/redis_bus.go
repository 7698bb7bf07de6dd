package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/sysutil"
)

// envelope is the wire form on the Redis channel.
type envelope struct {
	Source string       `json:"source"`
	Event  domain.Event `json:"event"`
}

// RedisBus dispatches to local subscribers and fans every event out on a
// Redis channel so other instances can deliver it to theirs.
type RedisBus struct {
	local   *Local
	rdb     goredis.UniversalClient
	channel string
	source  string
}

// NewRedisBus wraps local. Events received from the channel that this
// instance published itself are ignored.
func NewRedisBus(rdb goredis.UniversalClient, channel string, local *Local) (*RedisBus, error) {
	if rdb == nil {
		return nil, errors.New("events: redis client required")
	}
	if channel == "" {
		channel = "domain-events"
	}
	if local == nil {
		local = NewLocal()
	}
	return &RedisBus{local: local, rdb: rdb, channel: channel, source: uuid.NewString()}, nil
}

func (b *RedisBus) Subscribe(eventType string, h Handler) func() {
	return b.local.Subscribe(eventType, h)
}

// Publish delivers locally, then to the channel. Both are attempted; errors
// are joined.
func (b *RedisBus) Publish(ctx context.Context, ev domain.Event) error {
	localErr := b.local.Publish(ctx, ev)
	raw, err := json.Marshal(envelope{Source: b.source, Event: ev})
	if err != nil {
		return errors.Join(localErr, err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return errors.Join(localErr, fmt.Errorf("events: redis publish: %w", err))
	}
	return localErr
}

// Listen subscribes to the channel and forwards foreign events to local
// handlers until ctx is done. Forwarded events carry a context for which
// IsRemote reports true.
func (b *RedisBus) Listen(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("events: redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				b.deliver(ctx, []byte(m.Payload))
			}
		}
	}()
	return nil
}

func (b *RedisBus) deliver(ctx context.Context, payload []byte) bool {
	lg := sysutil.LoggerFrom(ctx)
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		lg.Warn().Err(err).Str("channel", b.channel).Msg("bad domain event payload")
		return false
	}
	if env.Source == b.source {
		return false
	}
	if err := b.local.Publish(WithRemote(ctx), env.Event); err != nil {
		lg.Error().Err(err).Str("event_type", env.Event.Type).Msg("remote event handler failed")
	}
	return true
}

// Close releases the Redis client.
func (b *RedisBus) Close() error { return b.rdb.Close() }
