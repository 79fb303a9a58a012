package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"daily-briefing/internal/resilience/circuitbreaker"
	"daily-briefing/internal/usecase/schedule"
)

// Failure codes reported in schedule.FailedEntry.
const (
	CodeNacked        = "nacked"
	CodePublishError  = "publish_error"
	CodeChannelClosed = "channel_closed"
)

const messageType = "daily_briefing.due"

// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize.
var ErrBatchTooLarge = errors.New("batch exceeds max batch size")

// publishChannel is the part of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher publishes batches on a single confirm-mode channel.
// Batches are serialized so delivery tags map back to batch entries.
type Publisher struct {
	mu       sync.Mutex
	ch       publishChannel
	confirms <-chan amqp.Confirmation
	lastTag  uint64
	cfg      Config
	breaker  *circuitbreaker.CircuitBreaker
	logger   *slog.Logger
	now      func() time.Time
}

// NewPublisher puts ch into confirm mode and returns a Publisher over it.
func NewPublisher(ch *amqp.Channel, cfg Config, logger *slog.Logger) (*Publisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	p := newPublisher(ch, nil, cfg, logger)
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 2*p.cfg.MaxBatchSize))
	return p, nil
}

func newPublisher(ch publishChannel, confirms <-chan amqp.Confirmation, cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	return &Publisher{
		ch:       ch,
		confirms: confirms,
		cfg:      cfg,
		breaker:  circuitbreaker.New(circuitbreaker.QueueConfig()),
		logger:   logger,
		now:      time.Now,
	}
}

// MaxBatchSize implements schedule.QueueTransport.
func (p *Publisher) MaxBatchSize() int {
	return p.cfg.MaxBatchSize
}

// SendBatch publishes msgs and waits for the broker to confirm each one.
// Nacked messages and messages the channel dropped are reported in the
// result; an error means nothing in the batch can be assumed accepted.
func (p *Publisher) SendBatch(ctx context.Context, msgs []schedule.QueueMessage) (schedule.BatchResult, error) {
	if len(msgs) > p.cfg.MaxBatchSize {
		return schedule.BatchResult{}, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(msgs), p.cfg.MaxBatchSize)
	}
	if len(msgs) == 0 {
		return schedule.BatchResult{}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.publishBatch(ctx, msgs)
	})
	batchPublishDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		messagesPublishedTotal.WithLabelValues("failed").Add(float64(len(msgs)))
		return schedule.BatchResult{}, fmt.Errorf("publish batch: %w", err)
	}
	return out.(schedule.BatchResult), nil
}

func (p *Publisher) publishBatch(ctx context.Context, msgs []schedule.QueueMessage) (schedule.BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
	defer cancel()

	var result schedule.BatchResult
	batchID := uuid.NewString()
	pending := make(map[uint64]schedule.QueueMessage, len(msgs))
	order := make([]uint64, 0, len(msgs))

	for _, m := range msgs {
		err := p.ch.PublishWithContext(ctx, p.cfg.Exchange, p.cfg.routingKey(m.GroupKey), false, false, p.publishing(m, batchID))
		if err != nil {
			if len(order) == 0 && len(result.Failed) == 0 {
				return schedule.BatchResult{}, err
			}
			result.Failed = append(result.Failed, schedule.FailedEntry{ID: m.ID, Code: CodePublishError, Reason: err.Error()})
			messagesPublishedTotal.WithLabelValues("failed").Inc()
			continue
		}
		p.lastTag++
		pending[p.lastTag] = m
		order = append(order, p.lastTag)
	}

	nacked := make(map[uint64]schedule.QueueMessage)
	for len(pending) > 0 {
		select {
		case c, ok := <-p.confirms:
			if !ok {
				for _, tag := range order {
					if m, open := pending[tag]; open {
						result.Failed = append(result.Failed, schedule.FailedEntry{ID: m.ID, Code: CodeChannelClosed, Reason: "channel closed before confirm"})
						messagesPublishedTotal.WithLabelValues("failed").Inc()
					}
				}
				p.logger.Warn("queue channel closed while awaiting confirms",
					slog.String("batch_id", batchID),
					slog.Int("unconfirmed", len(pending)))
				return result, nil
			}
			m, ours := pending[c.DeliveryTag]
			if !ours {
				// confirm for a batch that timed out earlier
				continue
			}
			if c.Ack {
				messagesPublishedTotal.WithLabelValues("confirmed").Inc()
			} else {
				nacked[c.DeliveryTag] = m
				messagesPublishedTotal.WithLabelValues("nacked").Inc()
			}
			delete(pending, c.DeliveryTag)
		case <-ctx.Done():
			return schedule.BatchResult{}, fmt.Errorf("await confirms for %d of %d messages: %w", len(pending), len(msgs), ctx.Err())
		}
	}

	for _, tag := range order {
		if m, ok := nacked[tag]; ok {
			result.Failed = append(result.Failed, schedule.FailedEntry{ID: m.ID, Code: CodeNacked, Reason: "broker nacked message"})
		}
	}

	p.logger.Debug("queue batch published",
		slog.String("batch_id", batchID),
		slog.Int("size", len(msgs)),
		slog.Int("failed", len(result.Failed)))
	return result, nil
}

func (p *Publisher) publishing(m schedule.QueueMessage, batchID string) amqp.Publishing {
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     m.DedupKey,
		CorrelationId: batchID,
		Type:          messageType,
		AppId:         "daily-briefing",
		Timestamp:     p.now().UTC(),
		Headers: amqp.Table{
			HeaderDedup:    m.DedupKey,
			HeaderGroupKey: m.GroupKey,
		},
		Body: m.Body,
	}
}
