// Package events delivers domain events to in-process subscribers and,
// optionally, to other instances through Redis pub/sub. Repositories publish
// only after their transaction commits.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tbourn/go-challenge-backend/internal/domain"
)

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// Handler consumes one event.
type Handler func(ctx context.Context, ev domain.Event) error

// Publisher is the side repositories depend on.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Bus publishes events and registers handlers.
type Bus interface {
	Publisher
	Subscribe(eventType string, h Handler) (unsubscribe func())
}

type subscription struct {
	id int
	h  Handler
}

// Local is a synchronous in-process bus. Handlers run in the publisher's
// goroutine, in registration order, type-specific handlers before wildcard
// handlers.
type Local struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID int
}

// NewLocal returns an empty bus.
func NewLocal() *Local {
	return &Local{subs: make(map[string][]subscription)}
}

// Subscribe registers h for eventType (or Wildcard).
func (b *Local) Subscribe(eventType string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[eventType]
			for i, s := range list {
				if s.id == id {
					b.subs[eventType] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev to every matching handler. All handlers run even if
// some fail; their errors are joined.
func (b *Local) Publish(ctx context.Context, ev domain.Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Type])+len(b.subs[Wildcard]))
	for _, s := range b.subs[ev.Type] {
		handlers = append(handlers, s.h)
	}
	if ev.Type != Wildcard {
		for _, s := range b.subs[Wildcard] {
			handlers = append(handlers, s.h)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := call(ctx, h, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func call(ctx context.Context, h Handler, ev domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("events: handler for %s panicked: %v", ev.Type, r)
		}
	}()
	return h(ctx, ev)
}

type remoteKey struct{}

// WithRemote marks ctx as carrying an event relayed from another instance.
func WithRemote(ctx context.Context) context.Context {
	return context.WithValue(ctx, remoteKey{}, true)
}

// IsRemote reports whether the event being handled was published by another
// instance and relayed here.
func IsRemote(ctx context.Context) bool {
	v, _ := ctx.Value(remoteKey{}).(bool)
	return v
}

// LocalOnly wraps h so it only sees events published by this instance.
// Handlers that write to the shared database use it: the publishing instance
// already ran them.
func LocalOnly(h Handler) Handler {
	return func(ctx context.Context, ev domain.Event) error {
		if IsRemote(ctx) {
			return nil
		}
		return h(ctx, ev)
	}
}

// RemoteOnly wraps h so it only sees events relayed from other instances,
// e.g. to drop cache entries another instance made stale.
func RemoteOnly(h Handler) Handler {
	return func(ctx context.Context, ev domain.Event) error {
		if !IsRemote(ctx) {
			return nil
		}
		return h(ctx, ev)
	}
}

// Recorder is a Publisher that keeps every event it receives. Useful for
// tests and for wiring without subscribers.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
	// Fail, when set, is called for each event; a non-nil result is
	// returned from Publish after the event is recorded.
	Fail func(domain.Event) error
}

func (r *Recorder) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	fail := r.Fail
	r.mu.Unlock()
	if fail != nil {
		return fail(ev)
	}
	return nil
}

// Events returns a copy of the recorded events in publish order.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}
