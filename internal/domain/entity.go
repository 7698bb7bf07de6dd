// Package domain defines the platform's entities and the domain events they
// record. Entities are plain structs mapped with GORM for schema migration;
// the repository layer persists them through the store as rows.
package domain

import "time"

// Event is an immutable record of something that happened to an entity.
// Events are queued on the entity and published only after the transaction
// that persisted the entity commits.
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(typ string, payload map[string]any) Event {
	return Event{Type: typ, Payload: payload, Timestamp: time.Now().UTC()}
}

// Entity is implemented by every persisted aggregate (through *Base) plus its
// own Validate method.
type Entity interface {
	GetID() string
	SetID(id string)
	Timestamps() (createdAt, updatedAt time.Time)
	SetTimestamps(createdAt, updatedAt time.Time)
	PullEvents() []Event
	RequeueEvents(evs []Event)
	Validate() error
}

// Base carries identity, timestamps and the pending event queue.
type Base struct {
	ID        string    `json:"id"        gorm:"type:varchar(36);primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;index"`

	events []Event
}

func (b *Base) GetID() string   { return b.ID }
func (b *Base) SetID(id string) { b.ID = id }

// IsNew reports whether the entity has never been saved.
func (b *Base) IsNew() bool { return b.ID == "" }

// HasPendingEvents reports whether events are waiting to be published.
func (b *Base) HasPendingEvents() bool { return len(b.events) > 0 }

func (b *Base) Timestamps() (time.Time, time.Time) { return b.CreatedAt, b.UpdatedAt }

func (b *Base) SetTimestamps(createdAt, updatedAt time.Time) {
	b.CreatedAt = createdAt
	b.UpdatedAt = updatedAt
}

// Record appends an event to the pending queue.
func (b *Base) Record(typ string, payload map[string]any) {
	b.events = append(b.events, NewEvent(typ, payload))
}

// PullEvents returns the pending events in order and clears the queue.
func (b *Base) PullEvents() []Event {
	out := b.events
	b.events = nil
	return out
}

// RequeueEvents puts evs back in front of any events recorded since they
// were pulled.
func (b *Base) RequeueEvents(evs []Event) {
	if len(evs) == 0 {
		return
	}
	q := make([]Event, 0, len(evs)+len(b.events))
	q = append(q, evs...)
	b.events = append(q, b.events...)
}
