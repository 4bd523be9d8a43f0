package queue

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Delivery is the broker metadata a handler may need besides the payload.
type Delivery struct {
	Body        []byte
	Queue       string
	Redelivered bool
	Headers     map[string]any
}

// Handler processes one delivery. A non-nil error nacks the message back onto
// the queue; the delivery limit governs redelivery before dead-lettering.
type Handler func(ctx context.Context, d Delivery) error

// Consumer runs a manual-ack consume loop on one queue.
type Consumer struct {
	channel *amqp.Channel
	queue   string
	handler Handler
	log     *slog.Logger
}

// NewConsumer opens a dedicated channel with the configured prefetch.
func NewConsumer(b *Broker, queue string, handler Handler, log *slog.Logger) (*Consumer, error) {
	channel, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening consumer channel: %w", err)
	}

	prefetch := b.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := channel.Qos(prefetch, 0, false); err != nil {
		channel.Close()
		return nil, fmt.Errorf("setting QoS: %w", err)
	}

	return &Consumer{channel: channel, queue: queue, handler: handler, log: log}, nil
}

// Run consumes until the context is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("registering consumer on %s: %w", c.queue, err)
	}
	c.log.Info("consuming", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			c.channel.Close()
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel for %s closed", c.queue)
			}
			c.dispatch(ctx, msg)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg amqp.Delivery) {
	d := Delivery{
		Body:        msg.Body,
		Queue:       c.queue,
		Redelivered: msg.Redelivered,
		Headers:     msg.Headers,
	}

	if err := c.handler(ctx, d); err != nil {
		c.log.Error("message handling failed", "queue", c.queue, "error", err)
		// Nack with requeue; the quorum queue redelivers up to its delivery
		// limit, then dead-letters.
		if nerr := msg.Nack(false, true); nerr != nil {
			c.log.Error("nack failed", "queue", c.queue, "error", nerr)
		}
		return
	}
	if aerr := msg.Ack(false); aerr != nil {
		c.log.Error("ack failed", "queue", c.queue, "error", aerr)
	}
}
