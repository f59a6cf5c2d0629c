package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"courtbook/internal/events"
	"courtbook/internal/models"
)

// DefaultExchange is the topic exchange booking events are published to.
const DefaultExchange = "courtbook.events"

// amqpChannel is the subset of *amqp.Channel used for publishing.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// EventMessage is the JSON body published for each event. It carries no contact data.
type EventMessage struct {
	EventID    string               `json:"event_id"`
	Kind       models.EventKind     `json:"kind"`
	OccurredAt time.Time            `json:"occurred_at"`
	BookingID  int64                `json:"booking_id"`
	TenantID   int64                `json:"tenant_id"`
	BranchID   int64                `json:"branch_id"`
	ResourceID int64                `json:"resource_id"`
	UserID     string               `json:"user_id,omitempty"`
	GuestID    int64                `json:"guest_id,omitempty"`
	Status     models.BookingStatus `json:"status"`
	StartAt    time.Time            `json:"start_at"`
	EndAt      time.Time            `json:"end_at"`
	TotalPrice string               `json:"total_price"`
	Currency   string               `json:"currency"`
}

func newEventMessage(e events.Event) EventMessage {
	b := e.Booking
	return EventMessage{
		EventID:    e.ID,
		Kind:       e.Kind,
		OccurredAt: e.CreatedAt.UTC(),
		BookingID:  b.ID,
		TenantID:   b.TenantID,
		BranchID:   b.BranchID,
		ResourceID: b.ResourceID,
		UserID:     b.UserID,
		GuestID:    b.GuestID,
		Status:     b.Status,
		StartAt:    b.StartAt.UTC(),
		EndAt:      b.EndAt.UTC(),
		TotalPrice: b.TotalPrice.StringFixed(2),
		Currency:   b.Currency,
	}
}

// RoutingKey returns the topic key for an event kind, e.g. "booking.confirmed".
func RoutingKey(kind models.EventKind) string {
	return "booking." + string(kind)
}

// Publisher publishes booking events to a RabbitMQ topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	mu       sync.Mutex
}

// NewPublisher dials url and declares a durable topic exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func newPublisherWithChannel(ch amqpChannel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

func (p *Publisher) Name() string { return "amqp" }

// Deliver publishes e as a persistent JSON message.
func (p *Publisher) Deliver(ctx context.Context, e events.Event) error {
	body, err := json.Marshal(newEventMessage(e))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(e.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.CreatedAt,
		Type:         string(e.Kind),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", RoutingKey(e.Kind), err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
