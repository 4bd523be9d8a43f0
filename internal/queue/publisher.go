package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dangthobach/data-extraction/internal/common"
)

// Publisher publishes ingest messages on a confirm-mode channel. Publish does
// not return success until the broker acknowledges the delivery.
type Publisher interface {
	Publish(ctx context.Context, msg *IngestMessage) error
}

// deferredConfirmation is the broker's acknowledgement handle for one publish.
type deferredConfirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// publishChannel is the slice of *amqp.Channel the publisher uses.
type publishChannel interface {
	publishDeferred(ctx context.Context, exchange, key string, msg amqp.Publishing) (deferredConfirmation, error)
}

type amqpChannel struct {
	ch *amqp.Channel
}

func (c amqpChannel) publishDeferred(ctx context.Context, exchange, key string, msg amqp.Publishing) (deferredConfirmation, error) {
	return c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key,
		true,  // mandatory
		false, // immediate
		msg)
}

type confirmPublisher struct {
	mu      sync.Mutex
	channel publishChannel
	cfg     common.BrokerConfig
	log     *slog.Logger
}

// NewPublisher opens a dedicated confirm-mode channel on the broker
// connection.
func NewPublisher(b *Broker, log *slog.Logger) (Publisher, error) {
	channel, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening publisher channel: %w", err)
	}
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		return nil, fmt.Errorf("enabling publisher confirms: %w", err)
	}
	return &confirmPublisher{channel: amqpChannel{ch: channel}, cfg: b.cfg, log: log}, nil
}

func (p *confirmPublisher) Publish(ctx context.Context, msg *IngestMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	confirmTimeout := p.cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 5 * time.Second
	}

	// The lock covers only the publish itself; the confirmation is awaited
	// unlocked so a slow broker ack never serializes concurrent submissions.
	p.mu.Lock()
	confirmation, err := p.channel.publishDeferred(ctx,
		p.cfg.Exchange, p.cfg.IngestKey,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.JobID,
			Timestamp:    time.Now(),
			Body:         body,
		})
	p.mu.Unlock()
	if err != nil {
		p.log.Error("publish failed", "job_id", msg.JobID, "error", err)
		return common.NewAppError("PUBLISH_FAILED", "failed to publish ingest message", common.ErrUnavailable)
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()
	acked, err := confirmation.WaitContext(waitCtx)
	if err != nil {
		p.log.Error("publish confirm timed out", "job_id", msg.JobID, "error", err)
		return common.NewAppError("PUBLISH_UNCONFIRMED", "broker did not confirm delivery in time", common.ErrUnavailable)
	}
	if !acked {
		p.log.Error("publish nacked by broker", "job_id", msg.JobID)
		return common.NewAppError("PUBLISH_NACKED", "message not acknowledged by broker", common.ErrUnavailable)
	}

	p.log.Debug("ingest message published and confirmed", "job_id", msg.JobID, "kind", msg.Kind)
	return nil
}
