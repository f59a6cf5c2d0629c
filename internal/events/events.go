package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"courtbook/internal/models"
)

// Event is a booking lifecycle event emitted after commit.
type Event struct {
	ID        string
	Kind      models.EventKind
	Booking   models.Booking
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus provides in-process pub/sub for booking events.
type EventBus struct {
	subscribers map[models.EventKind][]EventHandler
	wildcard    []EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[models.EventKind][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event kind.
func (b *EventBus) Subscribe(kind models.EventKind, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], handler)
}

// SubscribeAll registers a handler for every event kind.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
}

// Publish notifies subscribers of the event kind. Handler errors are logged, never returned.
func (b *EventBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Kind]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	// Handlers run synchronously; they hand work off to their own queues.
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Warn().Err(err).
				Str("event_id", event.ID).
				Str("event", string(event.Kind)).
				Int64("booking_id", event.Booking.ID).
				Msg("event handler failed")
		}
	}
}

// ObserveConfirmed calls observe with every booking that becomes confirmed,
// either on creation or by an admin decision.
func (b *EventBus) ObserveConfirmed(observe func(models.Booking)) {
	handler := func(_ context.Context, e Event) error {
		observe(e.Booking)
		return nil
	}
	b.Subscribe(models.EventCreatedConfirmed, handler)
	b.Subscribe(models.EventConfirmed, handler)
}

// NotifyBookingEvent publishes a lifecycle event for b.
func (b *EventBus) NotifyBookingEvent(ctx context.Context, booking models.Booking, kind models.EventKind) {
	b.Publish(ctx, Event{Kind: kind, Booking: booking})
}
