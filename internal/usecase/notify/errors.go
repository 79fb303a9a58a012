package notify

import "errors"

// Sentinel errors for notify use case operations.
var (
	// ErrChannelUnavailable indicates that the transport behind a channel is
	// not configured (for example a missing API key) or the channel has no
	// registered adapter. Adapters wrap it so the dispatcher can report
	// channel_unavailable instead of a generic transport failure.
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrIdentityNotLinked indicates that the user has no address for the
	// requested channel.
	ErrIdentityNotLinked = errors.New("identity not linked for channel")

	// ErrCircuitBreakerOpen indicates that the circuit breaker is open for this
	// channel and sends are rejected until it half-opens again.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open for this channel")

	// ErrSendTimeout indicates that an adapter did not return before the
	// dispatcher's send deadline.
	ErrSendTimeout = errors.New("channel send timed out")
)
