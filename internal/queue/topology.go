package queue

import (
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dangthobach/data-extraction/internal/common"
)

const (
	dlqSuffix = ".dlq"
	dlxSuffix = ".dlx"
)

// Broker owns the AMQP connection and the declared topology: a durable quorum
// main queue with a bounded delivery limit, plus its dead-letter exchange and
// queue.
type Broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     common.BrokerConfig
	log     *slog.Logger
}

// DLQName returns the dead-letter queue for a main queue.
func DLQName(queue string) string { return queue + dlqSuffix }

// Connect dials the broker with retries and declares the topology.
func Connect(cfg common.BrokerConfig, log *slog.Logger) (*Broker, error) {
	conn, err := connectWithRetry(cfg.URL, 10, 5*time.Second, log)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	b := &Broker{conn: conn, channel: channel, cfg: cfg, log: log}
	if err := b.declareTopology(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func connectWithRetry(url string, maxRetries int, delay time.Duration, log *slog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < maxRetries; i++ {
		log.Info("connecting to broker", "attempt", i+1, "max", maxRetries)
		conn, err = amqp.Dial(url)
		if err == nil {
			log.Info("connected to broker")
			return conn, nil
		}
		log.Warn("broker connection failed", "error", err)
		if i < maxRetries-1 {
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("connecting to broker after %d attempts: %w", maxRetries, err)
}

func (b *Broker) declareTopology() error {
	cfg := b.cfg

	if err := b.channel.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange: %w", err)
	}
	if err := b.channel.ExchangeDeclare(cfg.Exchange+dlxSuffix, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring dead-letter exchange: %w", err)
	}

	deliveryLimit := cfg.DeliveryLimit
	if deliveryLimit <= 0 {
		deliveryLimit = 3
	}
	_, err := b.channel.QueueDeclare(cfg.IngestQueue, true, false, false, false, amqp.Table{
		"x-queue-type":              "quorum",
		"x-dead-letter-exchange":    cfg.Exchange + dlxSuffix,
		"x-dead-letter-routing-key": cfg.IngestKey + dlqSuffix,
		"x-delivery-limit":          int32(deliveryLimit),
	})
	if err != nil {
		return fmt.Errorf("declaring ingest queue: %w", err)
	}

	_, err = b.channel.QueueDeclare(DLQName(cfg.IngestQueue), true, false, false, false, amqp.Table{
		"x-queue-type": "quorum",
	})
	if err != nil {
		return fmt.Errorf("declaring dead-letter queue: %w", err)
	}

	if err := b.channel.QueueBind(cfg.IngestQueue, cfg.IngestKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("binding ingest queue: %w", err)
	}
	if err := b.channel.QueueBind(DLQName(cfg.IngestQueue), cfg.IngestKey+dlqSuffix, cfg.Exchange+dlxSuffix, false, nil); err != nil {
		return fmt.Errorf("binding dead-letter queue: %w", err)
	}

	b.log.Info("broker topology declared",
		"exchange", cfg.Exchange, "queue", cfg.IngestQueue, "dlq", DLQName(cfg.IngestQueue))
	return nil
}

// Close tears down the channel and the connection.
func (b *Broker) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
