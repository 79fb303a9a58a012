package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultResendBaseURL is the Resend REST API root.
const DefaultResendBaseURL = "https://api.resend.com"

// ResendConfig contains configuration for the transactional email API.
type ResendConfig struct {
	// APIKey is the bearer token. Empty disables the transport.
	APIKey string

	// From is the sender address, e.g. "Briefing <briefing@example.com>".
	From string

	// BaseURL overrides DefaultResendBaseURL.
	BaseURL string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RequestsPerSecond and Burst configure the client-side rate limit.
	RequestsPerSecond float64
	Burst             int
}

// ResendNotifier sends email through the Resend API.
type ResendNotifier struct {
	config      ResendConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewResendNotifier creates a ResendNotifier. The default rate limit is
// 2 requests/second with a burst of 2, the API's documented default quota.
func NewResendNotifier(config ResendConfig) *ResendNotifier {
	if config.BaseURL == "" {
		config.BaseURL = DefaultResendBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 2
	}
	if config.Burst <= 0 {
		config.Burst = 2
	}

	return &ResendNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter("resend", config.RequestsPerSecond, config.Burst),
	}
}

// Configured reports whether both an API key and a sender address are set.
func (r *ResendNotifier) Configured() bool {
	return r.config.APIKey != "" && r.config.From != ""
}

// resendEmailPayload is the body of POST /emails.
type resendEmailPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type resendEmailResponse struct {
	ID string `json:"id"`
}

// resendErrorResponse represents the error body returned by the API.
type resendErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func (r *ResendNotifier) sendRequest(ctx context.Context, email Email, idempotencyKey string) (string, error) {
	payload := resendEmailPayload{
		From:    r.config.From,
		To:      []string{email.To},
		Subject: email.Subject,
		HTML:    email.HTML,
		Text:    email.Text,
	}
	headers := map[string]string{
		"Authorization":   "Bearer " + r.config.APIKey,
		"Idempotency-Key": idempotencyKey,
	}

	resp, body, err := postJSON(ctx, r.httpClient, strings.TrimRight(r.config.BaseURL, "/")+"/emails", headers, payload)
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out resendEmailResponse
		_ = json.Unmarshal(body, &out)
		return out.ID, nil
	}

	var apiErr resendErrorResponse
	detail := ""
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		detail = fmt.Sprintf("%s: %s", apiErr.Name, apiErr.Message)
	}
	return "", statusError("Resend", resp, body, detail)
}

// SendEmail delivers one email. Every attempt of the same call shares an
// idempotency key so a retried 429 cannot produce a second message.
func (r *ResendNotifier) SendEmail(ctx context.Context, email Email) error {
	if !r.Configured() {
		return fmt.Errorf("resend: %w", ErrNotConfigured)
	}

	requestID := uuid.New().String()


	var messageID string
	err := r.rateLimiter.Do(ctx, 2, func(ctx context.Context) error {
		id, err := r.sendRequest(ctx, email, requestID)
		messageID = id
		return err
	})
	if err != nil {
		slog.Error("email send failed",
			slog.String("request_id", requestID),
			slog.Any("error", err))
		return err
	}

	slog.Info("email sent",
		slog.String("request_id", requestID),
		slog.String("message_id", messageID))
	return nil
}
