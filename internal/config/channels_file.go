package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// channelsFile is the YAML layout of CHANNELS_CONFIG_PATH. Secrets are never
// stored in the file; *_env keys name the environment variable holding them.
type channelsFile struct {
	Channels struct {
		Email struct {
			APIKeyEnv string        `yaml:"api_key_env"`
			From      string        `yaml:"from"`
			BaseURL   string        `yaml:"base_url"`
			Timeout   time.Duration `yaml:"timeout"`
			RateLimit RateLimit     `yaml:"rate_limit"`
		} `yaml:"email"`
		Telegram struct {
			TokenEnv  string        `yaml:"token_env"`
			Endpoint  string        `yaml:"endpoint"`
			Timeout   time.Duration `yaml:"timeout"`
			RateLimit RateLimit     `yaml:"rate_limit"`
		} `yaml:"telegram"`
		WhatsApp struct {
			PhoneNumberID  string        `yaml:"phone_number_id"`
			AccessTokenEnv string        `yaml:"access_token_env"`
			BaseURL        string        `yaml:"base_url"`
			Timeout        time.Duration `yaml:"timeout"`
			RateLimit      RateLimit     `yaml:"rate_limit"`
		} `yaml:"whatsapp"`
		Slack struct {
			TokenEnv string `yaml:"token_env"`
			Teams    []struct {
				TeamID   string `yaml:"team_id"`
				TokenEnv string `yaml:"token_env"`
			} `yaml:"teams"`
			BaseURL   string        `yaml:"base_url"`
			Timeout   time.Duration `yaml:"timeout"`
			RateLimit RateLimit     `yaml:"rate_limit"`
		} `yaml:"slack"`
	} `yaml:"channels"`
}

// applyFile overlays the YAML file at path. The path comes from the
// environment, not from user input.
func (c *ChannelsConfig) applyFile(path string) error {
	// #nosec G304 -- path is provided by trusted source (env or CLI arg), not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read channels config file: %w", err)
	}

	var file channelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse channels config: %w", err)
	}
	ch := file.Channels

	c.Email = EmailConfig{
		APIKey:    envRef(ch.Email.APIKeyEnv),
		From:      ch.Email.From,
		BaseURL:   ch.Email.BaseURL,
		Timeout:   ch.Email.Timeout,
		RateLimit: ch.Email.RateLimit,
	}
	c.Telegram = TelegramConfig{
		Token:     envRef(ch.Telegram.TokenEnv),
		Endpoint:  ch.Telegram.Endpoint,
		Timeout:   ch.Telegram.Timeout,
		RateLimit: ch.Telegram.RateLimit,
	}
	c.WhatsApp = WhatsAppConfig{
		PhoneNumberID: ch.WhatsApp.PhoneNumberID,
		AccessToken:   envRef(ch.WhatsApp.AccessTokenEnv),
		BaseURL:       ch.WhatsApp.BaseURL,
		Timeout:       ch.WhatsApp.Timeout,
		RateLimit:     ch.WhatsApp.RateLimit,
	}
	c.Slack = SlackConfig{
		DefaultToken: envRef(ch.Slack.TokenEnv),
		TeamTokens:   make(map[string]string, len(ch.Slack.Teams)),
		BaseURL:      ch.Slack.BaseURL,
		Timeout:      ch.Slack.Timeout,
		RateLimit:    ch.Slack.RateLimit,
	}
	for _, team := range ch.Slack.Teams {
		if team.TeamID == "" {
			return fmt.Errorf("slack team entry without team_id in %s", path)
		}
		c.Slack.TeamTokens[team.TeamID] = envRef(team.TokenEnv)
	}
	return nil
}

func envRef(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
