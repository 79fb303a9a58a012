package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"daily-briefing/internal/resilience/retry"
)

// Broker owns the AMQP connection shared by the publisher and consumer.
type Broker struct {
	conn   *amqp.Connection
	cfg    Config
	logger *slog.Logger
}

// Connect dials the broker with backoff and declares the topology.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Broker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	host := ""
	if u, err := url.Parse(cfg.URL); err == nil {
		host = u.Host
	}
	logger.Info("connecting to rabbitmq", slog.String("host", host))

	dialCfg := retry.BrokerDialConfig()
	dialCfg.Retryable = dialRetryable

	var conn *amqp.Connection
	err := retry.WithBackoff(ctx, dialCfg, func() error {
		c, err := amqp.DialConfig(cfg.URL, amqp.Config{
			Heartbeat:  10 * time.Second,
			Locale:     "en_US",
			Properties: amqp.Table{"connection_name": cfg.ConsumerTag},
		})
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := Declare(ch, cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Info("rabbitmq topology declared",
		slog.String("exchange", cfg.Exchange),
		slog.String("exchange_kind", cfg.ExchangeKind),
		slog.String("queue", cfg.Queue))
	return &Broker{conn: conn, cfg: cfg, logger: logger}, nil
}

// dialRetryable extends the network classification with AMQP errors the
// broker marks recoverable, such as a connection forced closed during restart.
func dialRetryable(err error) bool {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Recover
	}
	return retry.IsRetryable(err)
}

// declarer is the part of *amqp.Channel used to declare topology.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare creates the exchange, the work queue and the binding between them.
// Declaring an existing topology with the same arguments is a no-op.
func Declare(ch declarer, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, cfg.ExchangeKind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	args := amqp.Table{}
	if cfg.DeadLetterExchange != "" {
		if err := ch.ExchangeDeclare(cfg.DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead letter exchange %s: %w", cfg.DeadLetterExchange, err)
		}
		args["x-dead-letter-exchange"] = cfg.DeadLetterExchange
	}
	if cfg.Deduplication {
		args["x-message-deduplication"] = true
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.bindingKey(), cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", cfg.Queue, err)
	}
	return nil
}

// Publisher opens a confirm-mode channel for publishing.
func (b *Broker) Publisher() (*Publisher, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	p, err := NewPublisher(ch, b.cfg, b.logger)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return p, nil
}

// Consumer opens a channel for consuming the work queue.
func (b *Broker) Consumer() (*Consumer, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	return NewConsumer(ch, b.cfg, b.logger), nil
}

// Check reports an error when the connection is gone.
func (b *Broker) Check(_ context.Context) error {
	if b.conn == nil || b.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close closes the connection and every channel opened on it.
func (b *Broker) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
