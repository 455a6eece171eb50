package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const exchangeName = "orders_topic"

// StatusUpdate is published on every committed lifecycle transition so the
// role views can react without polling.
type StatusUpdate struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	TableID    string    `json:"table_id"`
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	Total      float64   `json:"total"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher pushes status updates to interested subscribers. Publishing is
// best effort: the lifecycle engine logs a failed publish and moves on.
type Publisher interface {
	PublishStatusUpdate(ctx context.Context, update StatusUpdate) error
	Close() error
}

// RabbitMQPublisher publishes updates to a durable topic exchange with a
// routing key of orders.status.<new_status>.
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQPublisher(url string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("events: failed to declare exchange: %w", err)
	}

	log.Info().Str("exchange", exchangeName).Msg("Connected to RabbitMQ")
	return &RabbitMQPublisher{conn: conn, channel: channel}, nil
}

func (p *RabbitMQPublisher) PublishStatusUpdate(ctx context.Context, update StatusUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("events: failed to marshal status update: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	routingKey := "orders.status." + update.NewStatus
	err = p.channel.PublishWithContext(ctx,
		exchangeName, // exchange
		routingKey,   // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    update.OccurredAt,
		})
	if err != nil {
		return fmt.Errorf("events: failed to publish status update: %w", err)
	}

	log.Debug().
		Str("order_id", update.OrderID).
		Str("routing_key", routingKey).
		Msg("Status update published")
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishStatusUpdate(ctx context.Context, update StatusUpdate) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
