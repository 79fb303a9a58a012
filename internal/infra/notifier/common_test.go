package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "client error", err: &ClientError{StatusCode: 400, Message: "bad"}, want: false},
		{name: "wrapped client error", err: fmt.Errorf("send: %w", &ClientError{StatusCode: 403}), want: false},
		{name: "not configured", err: fmt.Errorf("resend: %w", ErrNotConfigured), want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "server error", err: &ServerError{StatusCode: 502}, want: true},
		{name: "rate limit", err: &RateLimitError{RetryAfter: time.Second}, want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "network", err: errors.New("dial tcp: connection refused"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusError(t *testing.T) {
	resp := func(code int, header http.Header) *http.Response {
		if header == nil {
			header = http.Header{}
		}
		return &http.Response{StatusCode: code, Header: header}
	}

	t.Run("TC-1: 429 uses retry_after from body", func(t *testing.T) {
		err := statusError("Test", resp(429, nil), []byte(`{"retry_after": 2.5}`), "")
		var rl *RateLimitError
		if !errors.As(err, &rl) {
			t.Fatalf("expected RateLimitError, got %T", err)
		}
		if rl.RetryAfter != 2500*time.Millisecond {
			t.Errorf("RetryAfter = %v, want 2.5s", rl.RetryAfter)
		}
	})

	t.Run("TC-2: 429 falls back to Retry-After header", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "7")
		err := statusError("Test", resp(429, h), nil, "")
		var rl *RateLimitError
		if !errors.As(err, &rl) || rl.RetryAfter != 7*time.Second {
			t.Fatalf("expected 7s RateLimitError, got %v", err)
		}
	})

	t.Run("TC-3: 4xx is a client error with detail", func(t *testing.T) {
		err := statusError("Test", resp(422, nil), []byte("raw"), "validation_error: bad to")
		var ce *ClientError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ClientError, got %T", err)
		}
		if !strings.Contains(ce.Message, "validation_error: bad to") {
			t.Errorf("message %q lacks detail", ce.Message)
		}
	})

	t.Run("TC-4: 5xx is a server error with raw body", func(t *testing.T) {
		err := statusError("Test", resp(503, nil), []byte("unavailable"), "")
		var se *ServerError
		if !errors.As(err, &se) || se.StatusCode != 503 {
			t.Fatalf("expected ServerError 503, got %v", err)
		}
		if !strings.Contains(se.Message, "unavailable") {
			t.Errorf("message %q lacks body", se.Message)
		}
	})
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("short", 10, "..."); got != "short" {
		t.Errorf("got %q, want unchanged", got)
	}

	got := truncateText(strings.Repeat("a", 20), 10, "...")
	if got != "aaaaaaa..." {
		t.Errorf("got %q", got)
	}

	// Multi-byte runes are never split.
	got = truncateText(strings.Repeat("日", 20), 10, "...")
	if !utf8.ValidString(got) || utf8.RuneCountInString(got) != 10 {
		t.Errorf("got %q (%d runes)", got, utf8.RuneCountInString(got))
	}
}
