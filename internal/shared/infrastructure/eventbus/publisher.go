// Package eventbus mirrors the task event log onto a message broker so
// other processes can react to task changes.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange for task domain events.
const ExchangeName = "taskbrain.domain.events"

// RoutingKeyFor maps an event type to its routing key, e.g.
// "taskbrain.task.completed".
func RoutingKeyFor(eventType domain.EventType) string {
	return "taskbrain.task." + string(eventType)
}

// Publisher mirrors task events to a broker. Publishing is best-effort:
// the event log in the store remains the single audit trail.
type Publisher interface {
	PublishTaskEvent(ctx context.Context, e *domain.TaskEvent) error
	Close() error
}

type eventEnvelope struct {
	TaskID    int64           `json:"task_id"`
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// RabbitMQPublisher publishes task events to a RabbitMQ topic exchange.
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewRabbitMQPublisher connects and declares the topic exchange.
func NewRabbitMQPublisher(url string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}

	logger.Info("RabbitMQ publisher connected", "exchange", ExchangeName)

	return &RabbitMQPublisher{conn: conn, channel: ch, logger: logger}, nil
}

// PublishTaskEvent sends the event to the exchange keyed by its type.
func (p *RabbitMQPublisher) PublishTaskEvent(ctx context.Context, e *domain.TaskEvent) error {
	payload, err := json.Marshal(eventEnvelope{
		TaskID:    e.TaskID,
		EventType: string(e.Type),
		EventData: e.Data,
		Timestamp: e.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	routingKey := RoutingKeyFor(e.Type)
	err = p.channel.PublishWithContext(ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
	if err != nil {
		p.logger.Error("failed to publish task event",
			"routing_key", routingKey,
			"task_id", e.TaskID,
			"error", err,
		)
		return err
	}

	p.logger.Debug("task event published", "routing_key", routingKey, "task_id", e.TaskID)
	return nil
}

// Close closes the channel and connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing channel", "error", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return err
		}
	}
	return nil
}

// NoopPublisher logs events instead of publishing. Used when RabbitMQ is
// unavailable in development.
type NoopPublisher struct {
	logger *slog.Logger
}

func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) PublishTaskEvent(_ context.Context, e *domain.TaskEvent) error {
	p.logger.Debug("noop publish", "routing_key", RoutingKeyFor(e.Type), "task_id", e.TaskID)
	return nil
}

func (p *NoopPublisher) Close() error { return nil }
