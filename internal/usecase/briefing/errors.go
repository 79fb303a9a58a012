package briefing

import "errors"

var (
	// ErrMalformedMessage means a queued body could not be decoded into a delivery.
	ErrMalformedMessage = errors.New("malformed briefing message")

	// ErrClaimUnavailable means the dedup claim store could not be reached;
	// the message should go back to the queue.
	ErrClaimUnavailable = errors.New("delivery claim store unavailable")

	// ErrDeliveryInterrupted means the dispatch failed because the handler's
	// context ended; the message should go back to the queue.
	ErrDeliveryInterrupted = errors.New("briefing delivery interrupted")

	// ErrDeliveryFailed wraps a failed dispatch result.
	ErrDeliveryFailed = errors.New("briefing delivery failed")
)
