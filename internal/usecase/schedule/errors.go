package schedule

import "errors"

// Sentinel errors for schedule use case operations.
var (
	// ErrInvalidTimezone indicates a preference timezone that is empty, unknown,
	// or would resolve to the server's own zone. It is a caller error and is
	// never replaced by a default zone.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidWindow indicates a scan window whose end is not after its start.
	ErrInvalidWindow = errors.New("invalid scan window")

	// ErrEnqueueFailed indicates that the queue transport rejected a whole batch.
	// Batches after the failed one are not submitted.
	ErrEnqueueFailed = errors.New("enqueue failed")
)
