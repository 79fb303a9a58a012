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

// DefaultWhatsAppBaseURL is the Graph API root for the pinned API version.
const DefaultWhatsAppBaseURL = "https://graph.facebook.com/v24.0"

const (
	// whatsAppMaxTextLength is the Cloud API limit for a text message body.
	whatsAppMaxTextLength = 4096

	truncationSuffix = "..."
)

// WhatsAppConfig contains configuration for the WhatsApp Cloud API.
type WhatsAppConfig struct {
	// PhoneNumberID is the sending business phone number id.
	PhoneNumberID string

	// AccessToken is the Graph API bearer token.
	AccessToken string

	// BaseURL overrides DefaultWhatsAppBaseURL.
	BaseURL string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	RequestsPerSecond float64
	Burst             int
}

// WhatsAppNotifier sends text messages through the WhatsApp Cloud API.
type WhatsAppNotifier struct {
	config      WhatsAppConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewWhatsAppNotifier creates a WhatsAppNotifier. The default limit of
// 20 requests/second stays well under the Cloud API's per-number throughput.
func NewWhatsAppNotifier(config WhatsAppConfig) *WhatsAppNotifier {
	if config.BaseURL == "" {
		config.BaseURL = DefaultWhatsAppBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 20
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}

	return &WhatsAppNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter("whatsapp", config.RequestsPerSecond, config.Burst),
	}
}

// Configured reports whether a phone number id and access token are set.
func (w *WhatsAppNotifier) Configured() bool {
	return w.config.PhoneNumberID != "" && w.config.AccessToken != ""
}

// whatsAppTextMessage is the body of POST /{phone-number-id}/messages.
type whatsAppTextMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppText struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type whatsAppSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// whatsAppErrorResponse represents the Graph API error envelope.
type whatsAppErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// buildTextMessage creates the request body, truncating body to the API limit.
func buildTextMessage(to, body string) whatsAppTextMessage {
	return whatsAppTextMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               strings.TrimPrefix(to, "+"),
		Type:             "text",
		Text: whatsAppText{
			Body:       truncateText(body, whatsAppMaxTextLength, truncationSuffix),
			PreviewURL: false,
		},
	}
}

func (w *WhatsAppNotifier) sendRequest(ctx context.Context, to, body string) (string, error) {
	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(w.config.BaseURL, "/"), w.config.PhoneNumberID)
	headers := map[string]string{"Authorization": "Bearer " + w.config.AccessToken}

	resp, respBody, err := postJSON(ctx, w.httpClient, url, headers, buildTextMessage(to, body))
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out whatsAppSendResponse
		if err := json.Unmarshal(respBody, &out); err == nil && len(out.Messages) > 0 {
			return out.Messages[0].ID, nil
		}
		return "", nil
	}

	var apiErr whatsAppErrorResponse
	detail := ""
	if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
		detail = fmt.Sprintf("%s (code: %d)", apiErr.Error.Message, apiErr.Error.Code)
	}
	return "", statusError("WhatsApp", resp, respBody, detail)
}

// SendText sends body as a plain text message to the E.164 number to.
func (w *WhatsAppNotifier) SendText(ctx context.Context, to, body string) error {
	if !w.Configured() {
		return fmt.Errorf("whatsapp: %w", ErrNotConfigured)
	}

	requestID := uuid.New().String()


	var messageID string
	err := w.rateLimiter.Do(ctx, 2, func(ctx context.Context) error {
		id, err := w.sendRequest(ctx, to, body)
		messageID = id
		return err
	})
	if err != nil {
		slog.Error("whatsapp send failed",
			slog.String("request_id", requestID),
			slog.Any("error", err))
		return err
	}

	slog.Info("whatsapp message sent",
		slog.String("request_id", requestID),
		slog.String("message_id", messageID))
	return nil
}
