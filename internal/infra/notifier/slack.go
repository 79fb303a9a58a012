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

// DefaultSlackBaseURL is the Slack Web API root.
const DefaultSlackBaseURL = "https://slack.com/api"

// SlackConfig contains configuration for the Slack bot transport.
type SlackConfig struct {
	// DefaultToken is the bot token used for teams without an entry in TeamTokens.
	DefaultToken string

	// TeamTokens maps a workspace team id to the bot token installed there.
	TeamTokens map[string]string

	// BaseURL overrides DefaultSlackBaseURL.
	BaseURL string

	// Timeout is the HTTP request timeout for Slack API calls.
	Timeout time.Duration

	RequestsPerSecond float64
	Burst             int
}

// SlackNotifier posts direct messages from a Slack bot via chat.postMessage.
type SlackNotifier struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewSlackNotifier creates a new SlackNotifier with the specified configuration.
//
// The default rate limit is 1 request/second with a burst of 1, matching the
// chat.postMessage per-channel limit.
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	if config.BaseURL == "" {
		config.BaseURL = DefaultSlackBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	return &SlackNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter("slack", config.RequestsPerSecond, config.Burst),
	}
}

// Configured reports whether any bot token is available.
func (s *SlackNotifier) Configured() bool {
	return s.config.DefaultToken != "" || len(s.config.TeamTokens) > 0
}

// tokenFor returns the bot token for teamID.
func (s *SlackNotifier) tokenFor(teamID string) string {
	if token, ok := s.config.TeamTokens[teamID]; ok && token != "" {
		return token
	}
	return s.config.DefaultToken
}

// SlackMessagePayload is the JSON body of chat.postMessage using Block Kit.
type SlackMessagePayload struct {
	Channel string       `json:"channel"`
	Text    string       `json:"text"`   // Fallback text (required)
	Blocks  []SlackBlock `json:"blocks"` // Rich formatting blocks
}

// SlackBlock represents a Slack Block Kit block.
type SlackBlock struct {
	Type     string            `json:"type"`               // "header", "section", "context"
	Text     *SlackTextObject  `json:"text,omitempty"`     // Text content (for header and section)
	Elements []SlackTextObject `json:"elements,omitempty"` // Elements (for context)
}

// SlackTextObject represents a text object in Slack Block Kit.
type SlackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"` // Actual text content
}

// SlackAPIResponse is the envelope every Web API method returns.
type SlackAPIResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`
}

const (
	// Slack Block Kit limits
	maxHeaderTextLength  = 150
	maxSectionTextLength = 3000
	maxFallbackLength    = 150
)

// slackServerErrors are ok:false codes that indicate a Slack-side problem.
var slackServerErrors = map[string]bool{
	"internal_error":      true,
	"fatal_error":         true,
	"service_unavailable": true,
	"request_timeout":     true,
}

// buildBlockKitPayload creates a direct message payload: a header with the
// subject followed by the body in a section.
func buildBlockKitPayload(userID, subject, body string) SlackMessagePayload {
	fallback := truncateText(subject, maxFallbackLength, truncationSuffix)

	return SlackMessagePayload{
		Channel: userID,
		Text:    fallback,
		Blocks: []SlackBlock{
			{
				Type: "header",
				Text: &SlackTextObject{Type: "plain_text", Text: truncateText(subject, maxHeaderTextLength, truncationSuffix)},
			},
			{
				Type: "section",
				Text: &SlackTextObject{Type: "mrkdwn", Text: truncateText(body, maxSectionTextLength, truncationSuffix)},
			},
		},
	}
}

// postMessage calls chat.postMessage once.
//
// Error types:
//   - 429: Rate limit error with Retry-After
//   - ok:false with a Slack-side code, or 5xx: Server error
//   - ok:false otherwise, or 4xx: Client error
func (s *SlackNotifier) postMessage(ctx context.Context, token string, payload SlackMessagePayload) error {
	headers := map[string]string{"Authorization": "Bearer " + token}

	resp, body, err := postJSON(ctx, s.httpClient, strings.TrimRight(s.config.BaseURL, "/")+"/chat.postMessage", headers, payload)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("Slack", resp, body, "")
	}

	var apiResp SlackAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return &ServerError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("Slack API returned invalid JSON: %v", err)}
	}
	if apiResp.OK {
		return nil
	}

	if apiResp.Error == "ratelimited" {
		return &RateLimitError{Message: "Slack rate limit exceeded", RetryAfter: extractRetryAfter(resp, body)}
	}
	if slackServerErrors[apiResp.Error] {
		return &ServerError{StatusCode: resp.StatusCode, Message: "Slack API server error: " + apiResp.Error}
	}
	return &ClientError{StatusCode: resp.StatusCode, Message: "Slack API client error: " + apiResp.Error}
}

// PostDirectMessage sends subject and body to userID in the workspace teamID.
func (s *SlackNotifier) PostDirectMessage(ctx context.Context, teamID, userID, subject, body string) error {
	token := s.tokenFor(teamID)
	if token == "" {
		return fmt.Errorf("slack: no bot token for team %s: %w", teamID, ErrNotConfigured)
	}

	requestID := uuid.New().String()


	payload := buildBlockKitPayload(userID, subject, body)
	err := s.rateLimiter.Do(ctx, 2, func(ctx context.Context) error {
		return s.postMessage(ctx, token, payload)
	})
	if err != nil {
		slog.Error("slack message failed",
			slog.String("request_id", requestID),
			slog.String("team_id", teamID),
			slog.Any("error", err))
		return err
	}

	slog.Info("slack message sent",
		slog.String("request_id", requestID),
		slog.String("team_id", teamID))
	return nil
}
