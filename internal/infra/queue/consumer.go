package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrRequeue asks the consumer to return the delivery to the queue.
	// Any other handler error rejects it without requeue.
	ErrRequeue = errors.New("requeue delivery")

	// ErrDeliveriesClosed is returned by Run when the broker closes the
	// delivery stream.
	ErrDeliveriesClosed = errors.New("delivery channel closed")
)

// Handler processes the body of one delivery.
type Handler func(ctx context.Context, d amqp.Delivery) error

// consumeChannel is the part of *amqp.Channel the consumer uses.
type consumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Consumer pulls deliveries and runs up to Prefetch handlers at once.
type Consumer struct {
	ch     consumeChannel
	cfg    Config
	logger *slog.Logger
}

// NewConsumer creates a Consumer on ch.
func NewConsumer(ch *amqp.Channel, cfg Config, logger *slog.Logger) *Consumer {
	return newConsumer(ch, cfg, logger)
}

func newConsumer(ch consumeChannel, cfg Config, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	return &Consumer{ch: ch, cfg: cfg, logger: logger}
}

// Run consumes until ctx is cancelled or the broker closes the stream.
// Cancelling ctx stops taking new deliveries only: handlers run on a context
// that keeps ctx's values but not its cancellation, and in-flight handlers
// finish and settle before Run returns.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}

	c.logger.Info("consumer started",
		slog.String("queue", c.cfg.Queue),
		slog.Int("prefetch", c.cfg.Prefetch))

	handlerCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(c.cfg.Prefetch)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			c.logger.Info("consumer stopped", slog.String("queue", c.cfg.Queue))
			return nil
		case d, ok := <-deliveries:
			if !ok {
				_ = g.Wait()
				return ErrDeliveriesClosed
			}
			g.Go(func() error {
				c.handle(handlerCtx, d, handle)
				return nil
			})
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handle Handler) {
	inflightDeliveries.Inc()
	defer inflightDeliveries.Dec()

	err := c.safeHandle(ctx, d, handle)
	switch {
	case err == nil:
		c.settle(d, "ack", d.Ack(false))
	case errors.Is(err, ErrRequeue):
		c.logger.Warn("delivery requeued",
			slog.String("message_id", d.MessageId),
			slog.Any("error", err))
		c.settle(d, "requeue", d.Nack(false, true))
	default:
		c.logger.Warn("delivery rejected",
			slog.String("message_id", d.MessageId),
			slog.Bool("redelivered", d.Redelivered),
			slog.Any("error", err))
		c.settle(d, "reject", d.Reject(false))
	}
}

func (c *Consumer) safeHandle(ctx context.Context, d amqp.Delivery, handle Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in delivery handler",
				slog.String("message_id", d.MessageId),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handle(ctx, d)
}

func (c *Consumer) settle(d amqp.Delivery, outcome string, err error) {
	deliveriesTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		c.logger.Error("failed to settle delivery",
			slog.String("message_id", d.MessageId),
			slog.String("outcome", outcome),
			slog.Any("error", err))
	}
}
