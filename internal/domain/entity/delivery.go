package entity

import "time"

// EligibleDelivery is one user selected by a scheduler tick. It is created
// fresh every tick, never updated, and carried through the work queue.
type EligibleDelivery struct {
	UserID       string    `json:"userId"`
	Timezone     string    `json:"timezone"`
	Date         string    `json:"date"` // "today" in Timezone, YYYY-MM-DD
	Channel      Channel   `json:"channel"`
	ScheduledFor time.Time `json:"scheduledFor"`
	EnqueuedAt   time.Time `json:"enqueuedAt"`
}

// DedupKey identifies the logical (user, day) pair. It depends only on
// UserID and Date.
func (d EligibleDelivery) DedupKey() string {
	return d.UserID + "-" + d.Date
}

// GroupKey keeps one user's deliveries ordered on transports that support it.
func (d EligibleDelivery) GroupKey() string {
	return d.UserID
}

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	ErrorInvalidTimezone       ErrorKind = "invalid_timezone"
	ErrorEnqueueFailed         ErrorKind = "enqueue_failed"
	ErrorPartialEnqueueFailure ErrorKind = "partial_enqueue_failure"
	ErrorIdentityNotLinked     ErrorKind = "identity_not_linked"
	ErrorChannelUnavailable    ErrorKind = "channel_unavailable"
	ErrorTransportFailure      ErrorKind = "transport_failure"
)

// DeliveryResult is the outcome of one dispatch. Error is empty iff Success.
type DeliveryResult struct {
	Success bool
	Channel Channel
	Error   ErrorKind
	// Message carries the underlying diagnostic for failed results.
	Message string
}

// Delivered returns a successful result for ch.
func Delivered(ch Channel) DeliveryResult {
	return DeliveryResult{Success: true, Channel: ch}
}

// Failed returns a failed result for ch. An empty kind is reported as a
// transport failure so the Success/Error invariant always holds.
func Failed(ch Channel, kind ErrorKind, message string) DeliveryResult {
	if kind == "" {
		kind = ErrorTransportFailure
	}
	return DeliveryResult{Channel: ch, Error: kind, Message: message}
}

// Content is a rendered briefing ready for a channel.
// Channels that cannot render HTML fall back to Text.
type Content struct {
	Subject string
	HTML    string
	Text    string
}
