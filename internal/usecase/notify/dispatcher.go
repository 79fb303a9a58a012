package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/infra/notifier"
	"daily-briefing/internal/observability/logging"
	"daily-briefing/internal/observability/tracing"
	"daily-briefing/internal/repository"
	"daily-briefing/internal/resilience/circuitbreaker"
)

const (
	// DefaultSendTimeout bounds a single adapter call.
	DefaultSendTimeout = 30 * time.Second

	// DefaultResolveTimeout bounds the identity lookup.
	DefaultResolveTimeout = 5 * time.Second
)

// ChannelHealthStatus represents the health status of a delivery channel.
type ChannelHealthStatus struct {
	Name               string         // Channel name (e.g., "email", "bot_dm")
	Channel            entity.Channel // Channel served by the adapter
	Enabled            bool           // Whether the transport is configured
	CircuitBreakerOpen bool           // Whether the circuit breaker is currently open
	State              string         // closed, half-open or open
}

// Config configures a Dispatcher.
type Config struct {
	// SendTimeout bounds each adapter call. Zero means DefaultSendTimeout.
	SendTimeout time.Duration

	// ResolveTimeout bounds the identity lookup. Zero means DefaultResolveTimeout.
	ResolveTimeout time.Duration

	// Breaker returns the circuit breaker configuration for a channel.
	// Nil uses circuitbreaker.ChannelConfig.
	Breaker func(name string) circuitbreaker.Config
}

// Dispatcher sends a briefing through exactly one channel per call.
//
// A call moves through Resolving, then either fails with identity_not_linked
// or goes on to Sending, which ends Delivered or failed. There is no retry and
// no fallback to another channel; a caller that wants fallback makes several
// calls.
type Dispatcher struct {
	resolver    repository.IdentityRepository
	channels    map[entity.Channel]Channel
	breakers    map[entity.Channel]*circuitbreaker.CircuitBreaker
	order       []entity.Channel
	sendTimeout    time.Duration
	resolveTimeout time.Duration
	logger         *slog.Logger
	inflight       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher over the given adapters. A later adapter
// for the same channel replaces an earlier one.
func NewDispatcher(resolver repository.IdentityRepository, channels []Channel, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = DefaultResolveTimeout
	}
	if cfg.Breaker == nil {
		cfg.Breaker = circuitbreaker.ChannelConfig
	}

	d := &Dispatcher{
		resolver:       resolver,
		channels:       make(map[entity.Channel]Channel, len(channels)),
		breakers:       make(map[entity.Channel]*circuitbreaker.CircuitBreaker, len(channels)),
		sendTimeout:    cfg.SendTimeout,
		resolveTimeout: cfg.ResolveTimeout,
		logger:         logger,
	}

	enabled := 0
	for _, ch := range channels {
		kind := ch.Kind()
		if _, seen := d.channels[kind]; !seen {
			d.order = append(d.order, kind)
		}
		d.channels[kind] = ch

		name := ch.Name()
		bcfg := cfg.Breaker(name)
		bcfg.IsSuccessful = countsAsHealthy
		bcfg.OnStateChange = func(_ string, _, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				RecordCircuitBreakerOpen(name)
			}
		}
		d.breakers[kind] = circuitbreaker.New(bcfg)

		if ch.IsEnabled() {
			enabled++
		}
	}
	SetChannelsEnabled(float64(enabled))

	return d
}

// countsAsHealthy keeps bad requests and missing configuration from tripping
// a channel's breaker; only transient transport errors count.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrChannelUnavailable) || errors.Is(err, ErrIdentityNotLinked) {
		return true
	}
	return !notifier.IsTransient(err)
}

// Dispatch delivers content to userID over channel. It never panics and
// always returns exactly one result.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, channel entity.Channel, content entity.Content) (result entity.DeliveryResult) {
	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
		ctx = logging.ContextWithRequestID(ctx, requestID)
	}

	ctx, span := tracing.GetTracer().Start(ctx, "notify.Dispatch",
		trace.WithAttributes(
			attribute.String("notify.channel", string(channel)),
			attribute.String("notify.user_id", userID),
		))
	defer span.End()

	label := string(channel)
	start := time.Now()
	RecordDispatch(label)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic in dispatcher",
				slog.String("request_id", requestID),
				slog.String("channel", label),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			result = entity.Failed(channel, entity.ErrorTransportFailure, fmt.Sprintf("panic: %v", r))
		}

		duration := time.Since(start)
		outcome := "delivered"
		if !result.Success {
			outcome = string(result.Error)
			span.SetStatus(codes.Error, result.Message)
			d.logger.Warn("Briefing delivery failed",
				slog.String("request_id", requestID),
				slog.String("user_id", userID),
				slog.String("channel", label),
				slog.String("error_kind", outcome),
				slog.String("message", result.Message),
				slog.Duration("send_duration", duration))
		} else {
			d.logger.Info("Briefing delivered",
				slog.String("request_id", requestID),
				slog.String("user_id", userID),
				slog.String("channel", label),
				slog.Duration("send_duration", duration))
		}
		span.SetAttributes(attribute.String("notify.result", outcome))
		RecordResult(label, outcome, duration)
	}()

	if !channel.Valid() {
		return entity.Failed(channel, entity.ErrorChannelUnavailable, fmt.Sprintf("unknown channel %q", channel))
	}

	// Resolving
	identity, err := d.resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return entity.Failed(channel, entity.ErrorIdentityNotLinked, err.Error())
		}
		span.RecordError(err)
		return entity.Failed(channel, entity.ErrorTransportFailure, err.Error())
	}
	if !identity.Has(channel) {
		return entity.Failed(channel, entity.ErrorIdentityNotLinked,
			fmt.Sprintf("user %s has no %s identity", userID, channel))
	}

	// Sending
	adapter, ok := d.channels[channel]
	if !ok {
		RecordDropped(label, "disabled")
		return entity.Failed(channel, entity.ErrorChannelUnavailable, fmt.Sprintf("no adapter for channel %q", channel))
	}
	if !adapter.IsEnabled() {
		RecordDropped(label, "disabled")
		return entity.Failed(channel, entity.ErrorChannelUnavailable, fmt.Sprintf("%s is not configured", adapter.Name()))
	}

	err = d.send(ctx, channel, adapter, identity, content)
	switch {
	case err == nil:
		return entity.Delivered(channel)
	case errors.Is(err, ErrChannelUnavailable):
		return entity.Failed(channel, entity.ErrorChannelUnavailable, err.Error())
	case errors.Is(err, ErrIdentityNotLinked):
		return entity.Failed(channel, entity.ErrorIdentityNotLinked, err.Error())
	default:
		span.RecordError(err)
		return entity.Failed(channel, entity.ErrorTransportFailure, err.Error())
	}
}

func (d *Dispatcher) resolve(ctx context.Context, userID string) (entity.IdentityBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, d.resolveTimeout)
	defer cancel()

	identity, err := d.resolver.Resolve(ctx, userID)
	if err == nil {
		return identity, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return entity.IdentityBundle{}, fmt.Errorf("resolve identity: timed out after %s: %w", d.resolveTimeout, err)
	}
	return entity.IdentityBundle{}, fmt.Errorf("resolve identity: %w", err)
}

// send runs the adapter through the channel's circuit breaker.
func (d *Dispatcher) send(ctx context.Context, channel entity.Channel, adapter Channel, identity entity.IdentityBundle, content entity.Content) error {
	_, err := d.breakers[channel].Execute(func() (interface{}, error) {
		return nil, d.sendWithDeadline(ctx, adapter, identity, content)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		RecordDropped(adapter.Name(), "circuit_open")
		return fmt.Errorf("%s: %w", adapter.Name(), ErrCircuitBreakerOpen)
	}
	return err
}

// sendWithDeadline calls the adapter in its own goroutine so a transport
// that ignores its context still releases the caller at the deadline. The
// goroutine is tracked until the adapter returns.
func (d *Dispatcher) sendWithDeadline(ctx context.Context, adapter Channel, identity entity.IdentityBundle, content entity.Content) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	d.inflight.Add(1)
	activeSends.Inc()
	go func() {
		defer d.inflight.Done()
		defer activeSends.Dec()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Panic in channel adapter",
					slog.String("channel", adapter.Name()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				RecordDropped(adapter.Name(), "panic")
				done <- fmt.Errorf("%s adapter panic: %v", adapter.Name(), r)
			}
		}()
		done <- adapter.Send(ctx, identity, content)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			RecordDropped(adapter.Name(), "timeout")
			return fmt.Errorf("%s: %w: %w", adapter.Name(), ErrSendTimeout, ctx.Err())
		}
		RecordDropped(adapter.Name(), "cancelled")
		return fmt.Errorf("%s: send cancelled: %w", adapter.Name(), ctx.Err())
	}
}

// ChannelHealth returns the state of every registered adapter.
func (d *Dispatcher) ChannelHealth() []ChannelHealthStatus {
	statuses := make([]ChannelHealthStatus, 0, len(d.order))
	for _, kind := range d.order {
		ch := d.channels[kind]
		cb := d.breakers[kind]
		statuses = append(statuses, ChannelHealthStatus{
			Name:               ch.Name(),
			Channel:            kind,
			Enabled:            ch.IsEnabled(),
			CircuitBreakerOpen: cb.IsOpen(),
			State:              cb.State().String(),
		})
	}
	return statuses
}

// Shutdown waits for adapter calls that outlived their deadline to return.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Dispatcher shutdown complete")
		return nil
	case <-ctx.Done():
		d.logger.Warn("Dispatcher shutdown timeout")
		return ctx.Err()
	}
}
