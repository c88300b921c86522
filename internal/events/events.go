package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is the topic exchange all platform events go to
const Exchange = "codecrafters.events"

// Type is an event routing key
type Type string

const (
	ProgressSubmitted  Type = "progress.submitted"
	ConversationLogged Type = "conversation.logged"
	ProfileUpdated     Type = "profile.updated"
)

// Event is a single published message
type Event struct {
	Type       Type      `json:"type"`
	UserID     string    `json:"user_id"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers platform events
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// RabbitPublisher publishes events to a RabbitMQ topic exchange.
// With an empty URI it is disabled and Publish only logs.
type RabbitPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	enabled  bool
}

// NewRabbitPublisher connects and declares the exchange
func NewRabbitPublisher(uri string) (*RabbitPublisher, error) {
	if uri == "" {
		slog.Warn("rabbitmq URI is empty, event publishing is disabled")
		return &RabbitPublisher{exchange: Exchange}, nil
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		Exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	slog.Info("event publisher initialized", "exchange", Exchange)

	return &RabbitPublisher{
		conn:     conn,
		channel:  channel,
		exchange: Exchange,
		enabled:  true,
	}, nil
}

// Enabled reports whether events are actually delivered
func (p *RabbitPublisher) Enabled() bool {
	return p.enabled
}

// Publish sends the event with its type as routing key
func (p *RabbitPublisher) Publish(ctx context.Context, e Event) error {
	if !p.enabled {
		slog.Debug("event publishing disabled, skipping event", "type", e.Type)
		return nil
	}

	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,     // exchange
		string(e.Type), // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    e.OccurredAt,
			Body:         body,
			Headers: amqp.Table{
				"event_type": string(e.Type),
				"user_id":    e.UserID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("published event", "type", e.Type, "user_id", e.UserID)
	return nil
}

// Close closes the channel and connection
func (p *RabbitPublisher) Close() error {
	if !p.enabled {
		return nil
	}

	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Emit publishes and logs a failure instead of returning it
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		slog.Warn("failed to publish event", "type", e.Type, "user_id", e.UserID, "error", err)
	}
}

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher
func (r *Recorder) Publish(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Close implements Publisher
func (r *Recorder) Close() error {
	return nil
}

// Events returns the recorded events in publish order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Event, len(r.events))
	copy(result, r.events)
	return result
}
