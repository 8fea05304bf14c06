package event

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"neswara/internal/metrics"
)

// ContentChangedMessage is published for every insert, update or delete on a watched collection.
// Document is empty for deletes.
type ContentChangedMessage struct {
	Event      string         `json:"event"`
	Collection string         `json:"collection"`
	DocumentID string         `json:"documentId"`
	Timestamp  time.Time      `json:"timestamp"`
	Document   map[string]any `json:"document,omitempty"`
}

// RoutingKey is "<collection>.<operation>", e.g. "news.updated".
func (m ContentChangedMessage) RoutingKey() string {
	return m.Collection + "." + m.Event
}

type PublishingChannel interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       PublishingChannel
	exchange string
	logger   zerolog.Logger
	now      func() time.Time
}

func NewRabbitPublisher(uri, exchange string, logger zerolog.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connection failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel creation failed: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare failed: %w", err)
	}

	return &RabbitPublisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		logger:   logger.With().Str("component", "publisher").Logger(),
		now:      time.Now,
	}, nil
}

func (p *RabbitPublisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *RabbitPublisher) PublishContentChanged(ctx context.Context, msg ContentChangedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = p.now().UTC()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(
		ctx,
		p.exchange,
		msg.RoutingKey(),
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    msg.Collection + "/" + msg.DocumentID,
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
	metrics.RecordPublish(msg.Collection, err)
	return err
}
