// Package notify routes a rendered daily briefing to exactly one delivery
// channel (email, bot DM, messaging app or workspace bot) and reports the
// outcome as an entity.DeliveryResult.
package notify

import (
	"context"

	"daily-briefing/internal/domain/entity"
)

// Channel is a delivery channel adapter. Adapters differ only in the
// transport they call and the identity field they read.
//
// Contract:
//   - Send returns nil once the transport accepted the message.
//   - A transport that is not configured yields an error wrapping ErrChannelUnavailable.
//   - A missing identity field yields an error wrapping ErrIdentityNotLinked.
//   - Any other error is a transport failure; its message is kept for diagnostics.
//   - Adapters do not retry. A failed delivery is picked up again on a later tick.
//
// All methods must be safe for concurrent use.
type Channel interface {
	// Name returns the channel identifier used in logs, metrics and health output.
	Name() string

	// Kind returns the channel this adapter serves.
	Kind() entity.Channel

	// IsEnabled reports whether the backing transport is configured.
	IsEnabled() bool

	// Send delivers content to the address in identity for this channel.
	Send(ctx context.Context, identity entity.IdentityBundle, content entity.Content) error
}
