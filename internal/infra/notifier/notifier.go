// Package notifier provides the outbound transports used to deliver daily
// briefings: a transactional email API, a Telegram bot, the WhatsApp Cloud
// API and the Slack Web API.
//
// Transports know nothing about users or preferences. Each one takes an
// already resolved address plus rendered content, applies its own rate limit,
// and reports failures as RateLimitError, ClientError or ServerError so the
// caller can tell a rejected request from an unhealthy service.
package notifier

import "errors"

// ErrNotConfigured is returned by a transport whose credentials are missing.
var ErrNotConfigured = errors.New("transport not configured")

// Email is a rendered message for the email transport.
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}
