package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"daily-briefing/internal/domain/entity"
)

// DefaultMaxBatchSize is the largest batch the work queue accepts in one call.
const DefaultMaxBatchSize = 10

// QueueMessage is one entry of a batch submission.
type QueueMessage struct {
	// ID identifies the entry within the submission so failures can be mapped back.
	ID string
	// Body is the JSON encoding of an EligibleDelivery.
	Body []byte
	// GroupKey orders messages of the same user.
	GroupKey string
	// DedupKey makes a repeated submission of the same user and date a no-op.
	DedupKey string
}

// FailedEntry is a message the transport rejected individually.
type FailedEntry struct {
	ID     string
	Code   string
	Reason string
}

// BatchResult lists the entries of a batch the transport did not accept.
type BatchResult struct {
	Failed []FailedEntry
}

// QueueTransport submits batches to the work queue.
type QueueTransport interface {
	// SendBatch submits msgs in one call. A returned error means the whole
	// batch was rejected; per-entry rejections are reported in BatchResult.
	SendBatch(ctx context.Context, msgs []QueueMessage) (BatchResult, error)
	// MaxBatchSize is the largest len(msgs) SendBatch accepts.
	MaxBatchSize() int
}

// FailedDelivery is a delivery the queue rejected.
type FailedDelivery struct {
	Delivery entity.EligibleDelivery
	Code     string
	Reason   string
}

// EnqueueReport is the outcome of Producer.Enqueue.
type EnqueueReport struct {
	Accepted []entity.EligibleDelivery
	Failed   []FailedDelivery
}

// Producer submits eligible deliveries to the work queue in batches.
type Producer struct {
	transport QueueTransport
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

// ProducerOption customizes a Producer.
type ProducerOption func(*Producer)

// WithClock sets the clock used to stamp EnqueuedAt.
func WithClock(now func() time.Time) ProducerOption {
	return func(p *Producer) { p.now = now }
}

// WithBatchSize caps the batch size below the transport's maximum.
func WithBatchSize(n int) ProducerOption {
	return func(p *Producer) {
		if n > 0 && n < p.batchSize {
			p.batchSize = n
		}
	}
}

// NewProducer creates a Producer over transport.
func NewProducer(transport QueueTransport, logger *slog.Logger, opts ...ProducerOption) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	size := transport.MaxBatchSize()
	if size <= 0 {
		size = DefaultMaxBatchSize
	}
	p := &Producer{
		transport: transport,
		batchSize: size,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue submits deliveries in order, one SendBatch call per batch.
//
// A rejected batch aborts the run with ErrEnqueueFailed; the report still
// holds what earlier batches accepted. Individually rejected entries are
// logged and recorded in the report, and the remaining batches are sent.
func (p *Producer) Enqueue(ctx context.Context, deliveries []entity.EligibleDelivery) (EnqueueReport, error) {
	var report EnqueueReport
	enqueuedAt := p.now().UTC()

	for start := 0; start < len(deliveries); start += p.batchSize {
		end := min(start+p.batchSize, len(deliveries))
		batch := slices.Clone(deliveries[start:end])

		msgs := make([]QueueMessage, 0, len(batch))
		byID := make(map[string]int, len(batch))
		for i := range batch {
			batch[i].EnqueuedAt = enqueuedAt
			body, err := json.Marshal(batch[i])
			if err != nil {
				return report, fmt.Errorf("%w: encode delivery for user %s: %w", ErrEnqueueFailed, batch[i].UserID, err)
			}
			id := strconv.Itoa(start + i)
			byID[id] = i
			msgs = append(msgs, QueueMessage{
				ID:       id,
				Body:     body,
				GroupKey: batch[i].GroupKey(),
				DedupKey: batch[i].DedupKey(),
			})
		}

		res, err := p.transport.SendBatch(ctx, msgs)
		if err != nil {
			enqueueBatchesTotal.WithLabelValues("failure").Inc()
			enqueueMessagesTotal.WithLabelValues("rejected").Add(float64(len(msgs)))
			p.logger.Error("Failed to enqueue batch",
				slog.Int("batch_start", start),
				slog.Int("batch_size", len(msgs)),
				slog.Any("error", err))
			return report, fmt.Errorf("%w: batch starting at %d: %w", ErrEnqueueFailed, start, err)
		}

		rejected := make(map[int]bool, len(res.Failed))
		for _, f := range res.Failed {
			i, ok := byID[f.ID]
			if !ok {
				p.logger.Warn("Queue reported unknown entry id", slog.String("id", f.ID))
				continue
			}
			rejected[i] = true
			report.Failed = append(report.Failed, FailedDelivery{Delivery: batch[i], Code: f.Code, Reason: f.Reason})
			p.logger.Warn("Delivery rejected by queue",
				slog.String("kind", string(entity.ErrorPartialEnqueueFailure)),
				slog.String("user_id", batch[i].UserID),
				slog.String("dedup_key", batch[i].DedupKey()),
				slog.String("code", f.Code),
				slog.String("reason", f.Reason))
		}
		for i := range batch {
			if !rejected[i] {
				report.Accepted = append(report.Accepted, batch[i])
			}
		}

		status := "success"
		if len(rejected) > 0 {
			status = "partial"
		}
		enqueueBatchesTotal.WithLabelValues(status).Inc()
		enqueueMessagesTotal.WithLabelValues("accepted").Add(float64(len(batch) - len(rejected)))
		enqueueMessagesTotal.WithLabelValues("rejected").Add(float64(len(rejected)))
	}

	if len(deliveries) > 0 {
		p.logger.Info("Deliveries enqueued",
			slog.Int("accepted", len(report.Accepted)),
			slog.Int("failed", len(report.Failed)))
	}
	return report, nil
}
