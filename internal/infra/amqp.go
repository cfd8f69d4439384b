// README: RabbitMQ connection with publisher confirms for the event mirror.
package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type AMQP struct {
	conn *amqp.Connection
	ch   *amqp.Channel // confirm mode; each publish tracks its own delivery tag
}

func DialAMQP(url string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp confirm mode: %w", err)
	}
	return &AMQP{conn: conn, ch: ch}, nil
}

// DeclareFanout makes sure the durable fanout exchange exists.
func (c *AMQP) DeclareFanout(exchange string) error {
	if err := c.ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", exchange, err)
	}
	return nil
}

func (c *AMQP) Ping() error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// Publish sends body and blocks until the broker confirms this delivery or ctx ends.
// A confirm that arrives after ctx ended is dropped with its deferred handle.
func (c *AMQP) Publish(ctx context.Context, exchange, key string, body []byte, headers map[string]any) error {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table(headers),
		Body:         body,
	})
	if err != nil {
		return err
	}
	if dc == nil {
		return errors.New("channel is not in confirm mode")
	}
	ack, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ack {
		return fmt.Errorf("publish NACK from broker (tag %d)", dc.DeliveryTag)
	}
	return nil
}

func (c *AMQP) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
