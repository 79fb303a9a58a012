package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

// telegramMaxTextLength is the Bot API limit for a message text.
const telegramMaxTextLength = 4096

// TelegramConfig contains configuration for the Telegram bot transport.
type TelegramConfig struct {
	// Token is the bot token. Empty disables the transport.
	Token string

	// Endpoint overrides tgbotapi.APIEndpoint; it must contain two %s verbs
	// for the token and the method.
	Endpoint string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	RequestsPerSecond float64
	Burst             int
}

// TelegramNotifier sends direct messages from a Telegram bot.
type TelegramNotifier struct {
	bot         *tgbotapi.BotAPI
	rateLimiter *RateLimiter
}

// NewTelegramNotifier creates a TelegramNotifier and verifies the token with
// getMe. An empty token yields an unconfigured notifier and no error.
//
// The default limit is 25 messages/second, under the Bot API's 30/s global cap.
func NewTelegramNotifier(config TelegramConfig) (*TelegramNotifier, error) {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 25
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}
	n := &TelegramNotifier{rateLimiter: NewRateLimiter("telegram", config.RequestsPerSecond, config.Burst)}
	if config.Token == "" {
		return n, nil
	}

	if config.Endpoint == "" {
		config.Endpoint = tgbotapi.APIEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	bot, err := tgbotapi.NewBotAPIWithClient(config.Token, config.Endpoint, &http.Client{Timeout: config.Timeout})
	if err != nil {
		return n, fmt.Errorf("telegram: authorize bot: %w", err)
	}
	n.bot = bot

	slog.Info("telegram bot authorized", slog.String("username", bot.Self.UserName))
	return n, nil
}

// Configured reports whether the bot was authorized.
func (t *TelegramNotifier) Configured() bool {
	return t.bot != nil
}

// SendMessage sends text to chatID. The Bot API client is not context aware;
// callers bound the call with their own deadline.
func (t *TelegramNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	if !t.Configured() {
		return fmt.Errorf("telegram: %w", ErrNotConfigured)
	}

	requestID := uuid.New().String()


	msg := tgbotapi.NewMessage(chatID, truncateText(text, telegramMaxTextLength, truncationSuffix))
	msg.DisableWebPagePreview = true

	err := t.rateLimiter.Do(ctx, 2, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := t.bot.Send(msg)
		return classifyTelegramError(err)
	})
	if err != nil {
		slog.Error("telegram send failed",
			slog.String("request_id", requestID),
			slog.Int64("chat_id", chatID),
			slog.Any("error", err))
		return err
	}

	slog.Info("telegram message sent",
		slog.String("request_id", requestID),
		slog.Int64("chat_id", chatID))
	return nil
}

// classifyTelegramError maps Bot API errors onto the shared error types.
// A 403 means the user blocked the bot or never started it.
func classifyTelegramError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		retryAfter := time.Duration(apiErr.RetryAfter) * time.Second
		if retryAfter <= 0 {
			retryAfter = 5 * time.Second
		}
		return &RateLimitError{Message: "Telegram rate limit exceeded", RetryAfter: retryAfter}
	case apiErr.Code == http.StatusForbidden:
		msg := "Telegram API client error: " + apiErr.Message
		if strings.Contains(strings.ToLower(apiErr.Message), "blocked") {
			msg = "user blocked bot: " + apiErr.Message
		}
		return &ClientError{StatusCode: apiErr.Code, Message: msg}
	case apiErr.Code >= 400 && apiErr.Code < 500:
		return &ClientError{StatusCode: apiErr.Code, Message: "Telegram API client error: " + apiErr.Message}
	case apiErr.Code >= 500:
		return &ServerError{StatusCode: apiErr.Code, Message: "Telegram API server error: " + apiErr.Message}
	}
	return err
}
