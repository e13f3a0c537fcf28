// Package events carries booking and resource status notifications out of the
// scheduling core. Delivery to customers happens elsewhere.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	BookingCreated    = "booking.created"
	BookingConfirmed  = "booking.confirmed"
	BookingWaiting    = "booking.waiting"
	BookingInProgress = "booking.in_progress"
	BookingCompleted  = "booking.completed"
	BookingCanceled   = "booking.canceled"

	DateBlocked   = "resource.date_blocked"
	DateUnblocked = "resource.date_unblocked"
	DateHoursSet  = "resource.date_hours_set"
)

// Event is a lightweight domain notification.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	ResourceID uuid.UUID `json:"resource_id"`
	BookingID  uuid.UUID `json:"booking_id,omitempty"`
	Date       string    `json:"date"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Handler reacts to an event.
type Handler func(ctx context.Context, e Event) error

// Bus is an in-process pub/sub. Handlers run synchronously in Publish.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	all         []Handler
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for eventType, or for every type when
// eventType is empty.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if eventType == "" {
		b.all = append(b.all, h)
		return
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], h)
}

// Publish delivers e to every matching handler and returns the first handler
// error. Remaining handlers still run.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[e.Type])+len(b.all))
	handlers = append(handlers, b.subscribers[e.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	e = stamp(e)

	var first error
	for _, h := range handlers {
		if err := h(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func stamp(e Event) Event {
	if e.ID == uuid.Nil {
		if id, err := uuid.NewV7(); err == nil {
			e.ID = id
		}
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return e
}

// Multi fans out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	e = stamp(e)
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
