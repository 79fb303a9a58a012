package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSlack(url string) *SlackNotifier {
	return NewSlackNotifier(SlackConfig{
		DefaultToken:      "xoxb-default",
		TeamTokens:        map[string]string{"T-ACME": "xoxb-acme"},
		BaseURL:           url,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 100,
		Burst:             10,
	})
}

func TestBuildBlockKitPayload(t *testing.T) {
	payload := buildBlockKitPayload("U123", "Your Schedule for 2024-01-15", strings.Repeat("x", 4000))

	assert.Equal(t, "U123", payload.Channel)
	assert.Equal(t, "Your Schedule for 2024-01-15", payload.Text)
	require.Len(t, payload.Blocks, 2)
	assert.Equal(t, "header", payload.Blocks[0].Type)
	assert.Equal(t, "plain_text", payload.Blocks[0].Text.Type)
	assert.Equal(t, "section", payload.Blocks[1].Type)
	assert.Equal(t, "mrkdwn", payload.Blocks[1].Text.Type)
	assert.Len(t, payload.Blocks[1].Text.Text, maxSectionTextLength)
}

func TestSlackNotifier_PostDirectMessage(t *testing.T) {
	t.Run("TC-1: uses the team token", func(t *testing.T) {
		var auth string
		var got SlackMessagePayload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat.postMessage", r.URL.Path)
			auth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"ok":true,"ts":"1700000000.000100"}`))
		}))
		defer server.Close()

		err := newTestSlack(server.URL).PostDirectMessage(context.Background(), "T-ACME", "U123", "Subject", "Body")
		require.NoError(t, err)
		assert.Equal(t, "Bearer xoxb-acme", auth)
		assert.Equal(t, "U123", got.Channel)
	})

	t.Run("TC-2: falls back to the default token", func(t *testing.T) {
		var auth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		err := newTestSlack(server.URL).PostDirectMessage(context.Background(), "T-OTHER", "U123", "Subject", "Body")
		require.NoError(t, err)
		assert.Equal(t, "Bearer xoxb-default", auth)
	})

	t.Run("TC-3: ok false is a client error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
		}))
		defer server.Close()

		err := newTestSlack(server.URL).PostDirectMessage(context.Background(), "T-ACME", "U404", "Subject", "Body")
		var ce *ClientError
		require.True(t, errors.As(err, &ce))
		assert.Contains(t, ce.Message, "channel_not_found")
	})

	t.Run("TC-4: internal_error is a server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ok":false,"error":"internal_error"}`))
		}))
		defer server.Close()

		err := newTestSlack(server.URL).PostDirectMessage(context.Background(), "T-ACME", "U123", "Subject", "Body")
		var se *ServerError
		require.True(t, errors.As(err, &se))
		assert.True(t, IsTransient(err))
	})
}

func TestSlackNotifier_NoToken(t *testing.T) {
	n := NewSlackNotifier(SlackConfig{})
	assert.False(t, n.Configured())

	err := n.PostDirectMessage(context.Background(), "T-ACME", "U123", "Subject", "Body")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
