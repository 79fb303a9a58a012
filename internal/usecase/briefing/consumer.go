package briefing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/observability/logging"
)

// Dispatcher delivers content over exactly one channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, channel entity.Channel, content entity.Content) entity.DeliveryResult
}

// ClaimStore guards a dedup key so a redelivered message is sent once.
type ClaimStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Complete(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// Consumer handles one queued briefing at a time; run several for concurrency.
type Consumer struct {
	dispatcher Dispatcher
	claims     ClaimStore
	renderer   Renderer
	logger     *slog.Logger
	now        func() time.Time
}

// NewConsumer creates a Consumer that renders each queued delivery and sends
// it through dispatcher, guarding the dedup key with claims. A nil logger
// falls back to slog.Default().
func NewConsumer(dispatcher Dispatcher, claims ClaimStore, renderer Renderer, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		dispatcher: dispatcher,
		claims:     claims,
		renderer:   renderer,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle processes one message body.
//
// It returns nil when the briefing was delivered or had already been claimed
// by an earlier delivery of the same message. ErrClaimUnavailable (claim
// store failed) and ErrDeliveryInterrupted (ctx ended mid-dispatch) mark
// messages to retry; ErrMalformedMessage and ErrDeliveryFailed mark messages
// that should not be retried.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var d entity.EligibleDelivery
	if err := json.Unmarshal(body, &d); err != nil {
		consumerMessagesTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if d.UserID == "" || d.Date == "" {
		consumerMessagesTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: missing user id or date", ErrMalformedMessage)
	}

	key := d.DedupKey()
	ctx = logging.ContextWithRequestID(ctx, key)
	logger := logging.WithRequestID(ctx, c.logger).With(
		slog.String("user_id", d.UserID),
		slog.String("date", d.Date))

	claimed, err := c.claims.Claim(ctx, key)
	if err != nil {
		consumerMessagesTotal.WithLabelValues("claim_error").Inc()
		return fmt.Errorf("%w: %w", ErrClaimUnavailable, err)
	}
	if !claimed {
		consumerMessagesTotal.WithLabelValues("duplicate").Inc()
		logger.Info("Skipping duplicate briefing")
		return nil
	}

	content, err := c.renderer.Render(d)
	if err != nil {
		c.release(ctx, logger, key)
		consumerMessagesTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	channel := d.Channel
	if !channel.Valid() {
		channel = entity.ChannelEmail
	}

	result := c.dispatcher.Dispatch(ctx, d.UserID, channel, content)
	if !result.Success {
		c.release(ctx, logger, key)
		if ctx.Err() != nil {
			consumerMessagesTotal.WithLabelValues("interrupted").Inc()
			logger.Warn("Briefing delivery interrupted", slog.String("channel", string(channel)))
			return fmt.Errorf("%w: %s: %w", ErrDeliveryInterrupted, result.Message, ctx.Err())
		}
		consumerMessagesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %s: %s", ErrDeliveryFailed, result.Error, result.Message)
	}

	if err := c.claims.Complete(ctx, key); err != nil {
		// Delivered already; the claim TTL still covers redeliveries.
		logger.Warn("Failed to mark briefing delivered", slog.Any("error", err))
	}
	consumerMessagesTotal.WithLabelValues("delivered").Inc()
	if !d.ScheduledFor.IsZero() {
		deliveryLagSeconds.Observe(c.now().Sub(d.ScheduledFor).Seconds())
	}
	return nil
}

func (c *Consumer) release(ctx context.Context, logger *slog.Logger, key string) {
	if err := c.claims.Release(context.WithoutCancel(ctx), key); err != nil {
		logger.Warn("Failed to release delivery claim", slog.Any("error", err))
	}
}
