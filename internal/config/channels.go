package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"daily-briefing/internal/infra/notifier"
	"daily-briefing/internal/observability/logging"
)

// ChannelsConfig holds the credentials and tuning for every delivery transport.
// A transport with missing credentials stays disabled rather than failing startup.
type ChannelsConfig struct {
	Email    EmailConfig
	Telegram TelegramConfig
	WhatsApp WhatsAppConfig
	Slack    SlackConfig
}

// RateLimit bounds outbound requests for one transport. Zero values fall back
// to the transport's defaults.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// EmailConfig configures the email API transport.
type EmailConfig struct {
	APIKey    string
	From      string
	BaseURL   string
	Timeout   time.Duration
	RateLimit RateLimit
}

// TelegramConfig configures the bot DM transport.
type TelegramConfig struct {
	Token     string
	Endpoint  string
	Timeout   time.Duration
	RateLimit RateLimit
}

// WhatsAppConfig configures the messaging app transport.
type WhatsAppConfig struct {
	PhoneNumberID string
	AccessToken   string
	BaseURL       string
	Timeout       time.Duration
	RateLimit     RateLimit
}

// SlackConfig configures the workspace bot transport.
type SlackConfig struct {
	// DefaultToken is used for teams without an entry in TeamTokens.
	DefaultToken string
	// TeamTokens maps a workspace team id to its bot token.
	TeamTokens map[string]string
	BaseURL    string
	Timeout    time.Duration
	RateLimit  RateLimit
}

// LoadChannelsConfig builds the channel configuration. The YAML file named by
// CHANNELS_CONFIG_PATH, if any, is applied first; environment variables then
// override it.
func LoadChannelsConfig() (*ChannelsConfig, error) {
	cfg := &ChannelsConfig{}

	if path := os.Getenv("CHANNELS_CONFIG_PATH"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid channels environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid channels configuration: %w", err)
	}
	return cfg, nil
}

// channelsEnv lists the variables that override the channels file. A
// variable that is set, even to "", replaces the file value.
type channelsEnv struct {
	ResendAPIKey  string        `envconfig:"RESEND_API_KEY"`
	ResendFrom    string        `envconfig:"RESEND_FROM_EMAIL"`
	ResendBaseURL string        `envconfig:"RESEND_BASE_URL"`
	ResendTimeout time.Duration `envconfig:"RESEND_TIMEOUT"`

	TelegramToken   string        `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramTimeout time.Duration `envconfig:"TELEGRAM_TIMEOUT"`

	WhatsAppPhoneNumberID string        `envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppAccessToken   string        `envconfig:"WHATSAPP_ACCESS_TOKEN"`
	WhatsAppBaseURL       string        `envconfig:"WHATSAPP_BASE_URL"`
	WhatsAppTimeout       time.Duration `envconfig:"WHATSAPP_TIMEOUT"`

	SlackBotToken string        `envconfig:"SLACK_BOT_TOKEN"`
	SlackTimeout  time.Duration `envconfig:"SLACK_TIMEOUT"`
}

func (c *ChannelsConfig) applyEnv() error {
	env := channelsEnv{
		ResendAPIKey:          c.Email.APIKey,
		ResendFrom:            c.Email.From,
		ResendBaseURL:         c.Email.BaseURL,
		ResendTimeout:         c.Email.Timeout,
		TelegramToken:         c.Telegram.Token,
		TelegramTimeout:       c.Telegram.Timeout,
		WhatsAppPhoneNumberID: c.WhatsApp.PhoneNumberID,
		WhatsAppAccessToken:   c.WhatsApp.AccessToken,
		WhatsAppBaseURL:       c.WhatsApp.BaseURL,
		WhatsAppTimeout:       c.WhatsApp.Timeout,
		SlackBotToken:         c.Slack.DefaultToken,
		SlackTimeout:          c.Slack.Timeout,
	}
	if err := envconfig.Process("", &env); err != nil {
		return err
	}

	c.Email.APIKey, c.Email.From, c.Email.BaseURL, c.Email.Timeout =
		env.ResendAPIKey, env.ResendFrom, env.ResendBaseURL, env.ResendTimeout
	c.Telegram.Token, c.Telegram.Timeout = env.TelegramToken, env.TelegramTimeout
	c.WhatsApp.PhoneNumberID, c.WhatsApp.AccessToken, c.WhatsApp.BaseURL, c.WhatsApp.Timeout =
		env.WhatsAppPhoneNumberID, env.WhatsAppAccessToken, env.WhatsAppBaseURL, env.WhatsAppTimeout
	c.Slack.DefaultToken, c.Slack.Timeout = env.SlackBotToken, env.SlackTimeout
	return nil
}

// Validate checks the values that cannot be defaulted. Missing credentials
// are not errors.
func (c *ChannelsConfig) Validate() error {
	var errs []error

	if c.Email.APIKey != "" && c.Email.From == "" {
		errs = append(errs, errors.New("RESEND_FROM_EMAIL is required when RESEND_API_KEY is set"))
	}
	if (c.WhatsApp.PhoneNumberID == "") != (c.WhatsApp.AccessToken == "") {
		errs = append(errs, errors.New("WHATSAPP_PHONE_NUMBER_ID and WHATSAPP_ACCESS_TOKEN must be set together"))
	}
	for team, token := range c.Slack.TeamTokens {
		if team == "" || token == "" {
			errs = append(errs, fmt.Errorf("slack team %q has no token", team))
		}
	}

	for name, rl := range map[string]RateLimit{
		"email":    c.Email.RateLimit,
		"telegram": c.Telegram.RateLimit,
		"whatsapp": c.WhatsApp.RateLimit,
		"slack":    c.Slack.RateLimit,
	} {
		if rl.RequestsPerSecond < 0 || rl.Burst < 0 {
			errs = append(errs, fmt.Errorf("%s rate limit must not be negative", name))
		}
	}
	for name, d := range map[string]time.Duration{
		"email":    c.Email.Timeout,
		"telegram": c.Telegram.Timeout,
		"whatsapp": c.WhatsApp.Timeout,
		"slack":    c.Slack.Timeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s timeout must not be negative", name))
		}
	}

	return errors.Join(errs...)
}

// LogValue implements slog.LogValuer with every credential masked.
func (c *ChannelsConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Group("email",
			slog.String("api_key", logging.MaskSecret(c.Email.APIKey)),
			slog.String("from", c.Email.From)),
		slog.Group("telegram",
			slog.String("token", logging.MaskSecret(c.Telegram.Token))),
		slog.Group("whatsapp",
			slog.String("phone_number_id", c.WhatsApp.PhoneNumberID),
			slog.String("access_token", logging.MaskSecret(c.WhatsApp.AccessToken))),
		slog.Group("slack",
			slog.String("default_token", logging.MaskSecret(c.Slack.DefaultToken)),
			slog.Int("team_tokens", len(c.Slack.TeamTokens))),
	)
}

func (c *ChannelsConfig) ResendConfig() notifier.ResendConfig {
	return notifier.ResendConfig{
		APIKey:            c.Email.APIKey,
		From:              c.Email.From,
		BaseURL:           c.Email.BaseURL,
		Timeout:           c.Email.Timeout,
		RequestsPerSecond: c.Email.RateLimit.RequestsPerSecond,
		Burst:             c.Email.RateLimit.Burst,
	}
}

func (c *ChannelsConfig) TelegramConfig() notifier.TelegramConfig {
	return notifier.TelegramConfig{
		Token:             c.Telegram.Token,
		Endpoint:          c.Telegram.Endpoint,
		Timeout:           c.Telegram.Timeout,
		RequestsPerSecond: c.Telegram.RateLimit.RequestsPerSecond,
		Burst:             c.Telegram.RateLimit.Burst,
	}
}

func (c *ChannelsConfig) WhatsAppConfig() notifier.WhatsAppConfig {
	return notifier.WhatsAppConfig{
		PhoneNumberID:     c.WhatsApp.PhoneNumberID,
		AccessToken:       c.WhatsApp.AccessToken,
		BaseURL:           c.WhatsApp.BaseURL,
		Timeout:           c.WhatsApp.Timeout,
		RequestsPerSecond: c.WhatsApp.RateLimit.RequestsPerSecond,
		Burst:             c.WhatsApp.RateLimit.Burst,
	}
}

func (c *ChannelsConfig) SlackConfig() notifier.SlackConfig {
	tokens := make(map[string]string, len(c.Slack.TeamTokens))
	for team, token := range c.Slack.TeamTokens {
		tokens[team] = token
	}
	return notifier.SlackConfig{
		DefaultToken:      c.Slack.DefaultToken,
		TeamTokens:        tokens,
		BaseURL:           c.Slack.BaseURL,
		Timeout:           c.Slack.Timeout,
		RequestsPerSecond: c.Slack.RateLimit.RequestsPerSecond,
		Burst:             c.Slack.RateLimit.Burst,
	}
}
