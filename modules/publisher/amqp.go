package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSink publishes to a durable topic exchange.
// The connection is opened lazily and reopened after any failure.
type AMQPSink struct {
	url      string
	exchange string

	lock sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPSink(url, exchange string) *AMQPSink {
	return &AMQPSink{url: url, exchange: exchange}
}

func (a *AMQPSink) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if err := a.connect(); err != nil {
		return err
	}
	if err := a.ch.PublishWithContext(ctx, a.exchange, routingKey, false, false, msg); err != nil {
		a.reset()
		return fmt.Errorf("publishing: %w", err)
	}
	return nil
}

func (a *AMQPSink) connect() error {
	if a.ch != nil && !a.ch.IsClosed() {
		return nil
	}
	a.reset()

	conn, err := amqp.Dial(a.url)
	if err != nil {
		return fmt.Errorf("dialing broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.ExchangeDeclare(a.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declaring exchange: %w", err)
	}

	slog.Info("connected to message broker", "exchange", a.exchange)
	a.conn, a.ch = conn, ch
	return nil
}

func (a *AMQPSink) reset() {
	if a.conn != nil {
		a.conn.Close()
	}
	a.conn, a.ch = nil, nil
}

// Close drops the broker connection, if any.
func (a *AMQPSink) Close() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.reset()
}
