package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpPublisher struct {
	l        *slog.Logger
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher declares a durable topic exchange and publishes to it with confirms.
func NewAMQPPublisher(url, exchange string, l *slog.Logger) (Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error dialing amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("error opening amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("error declaring exchange %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("error enabling publisher confirms: %w", err)
	}

	return &amqpPublisher{
		l:        l,
		exchange: exchange,
		conn:     conn,
		ch:       ch,
	}, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, msg Envelope) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error encoding event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, string(msg.Meta.Type), false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.Meta.ID,
			Timestamp:    msg.Meta.OccurredAt,
			AppId:        msg.Meta.Source,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("error publishing %s: %w", msg.Meta.Type, err)
	}

	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("error waiting for confirm: %w", err)
	}
	if !ok {
		return fmt.Errorf("broker rejected %s", msg.Meta.Type)
	}

	p.l.Debug("Event published",
		slog.String("key", string(msg.Meta.Type)),
		slog.String("exchange", p.exchange),
	)
	return nil
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.ch.Close(), p.conn.Close())
}
