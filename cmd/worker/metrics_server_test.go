package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/usecase/notify"
)

type stubHealth []notify.ChannelHealthStatus

func (s stubHealth) ChannelHealth() []notify.ChannelHealthStatus { return s }

func TestMetricsMux_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	newMetricsMux(stubHealth{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestMetricsMux_ChannelHealth(t *testing.T) {
	tests := []struct {
		name     string
		statuses stubHealth
		wantCode int
	}{
		{
			name: "all closed",
			statuses: stubHealth{
				{Name: "email", Channel: entity.ChannelEmail, Enabled: true, State: "closed"},
				{Name: "bot_dm", Channel: entity.ChannelBotDM, Enabled: false, State: "closed"},
			},
			wantCode: http.StatusOK,
		},
		{
			name: "enabled channel open",
			statuses: stubHealth{
				{Name: "email", Channel: entity.ChannelEmail, Enabled: true, CircuitBreakerOpen: true, State: "open"},
			},
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name: "disabled channel open is ignored",
			statuses: stubHealth{
				{Name: "workspace_bot", Channel: entity.ChannelWorkspaceBot, Enabled: false, CircuitBreakerOpen: true, State: "open"},
			},
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newMetricsMux(tt.statuses).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/channels", nil))

			require.Equal(t, tt.wantCode, rec.Code)
			var body ChannelHealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode == http.StatusOK, body.Healthy)
			assert.Len(t, body.Channels, len(tt.statuses))
		})
	}
}

func TestMetricsMux_Metrics(t *testing.T) {
	rec := httptest.NewRecorder()
	newMetricsMux(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newMetricsMux(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/channels", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
