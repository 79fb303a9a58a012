package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-briefing/internal/domain/entity"
	"daily-briefing/internal/infra/notifier"
	"daily-briefing/internal/repository"
	"daily-briefing/internal/resilience/circuitbreaker"
)

// mockResolver returns a fixed identity or error.
type mockResolver struct {
	identity entity.IdentityBundle
	err      error
	calls    int
}

func (m *mockResolver) Resolve(_ context.Context, userID string) (entity.IdentityBundle, error) {
	m.calls++
	if m.err != nil {
		return entity.IdentityBundle{}, m.err
	}
	b := m.identity
	b.UserID = userID
	return b, nil
}

// mockChannel is a Channel whose behavior is set per test.
type mockChannel struct {
	kind    entity.Channel
	enabled bool
	err     error
	panics  bool
	block   chan struct{} // when set, Send waits on it and ignores ctx

	mu          sync.Mutex
	sendCalled  int
	lastContent entity.Content
	lastID      entity.IdentityBundle
}

func (m *mockChannel) Name() string         { return string(m.kind) }
func (m *mockChannel) Kind() entity.Channel { return m.kind }
func (m *mockChannel) IsEnabled() bool      { return m.enabled }

func (m *mockChannel) Send(_ context.Context, identity entity.IdentityBundle, content entity.Content) error {
	m.mu.Lock()
	m.sendCalled++
	m.lastContent = content
	m.lastID = identity
	m.mu.Unlock()

	if m.panics {
		panic("adapter exploded")
	}
	if m.block != nil {
		<-m.block
	}
	return m.err
}

func (m *mockChannel) getSendCalledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendCalled
}

func chatID(id int64) *int64 { return &id }

var testContent = entity.Content{Subject: "Your Schedule for 2024-01-15", HTML: "<p>Hi</p>", Text: "Hi"}

func fullIdentity() entity.IdentityBundle {
	return entity.IdentityBundle{
		Email:           "ada@example.com",
		BotChatID:       chatID(42),
		MessagingPhone:  "+15551234567",
		WorkspaceUserID: "U123",
		WorkspaceTeamID: "T123",
	}
}

func TestDispatch_BotDMWithoutChatID(t *testing.T) {
	resolver := &mockResolver{identity: entity.IdentityBundle{Email: "ada@example.com"}}
	bot := &mockChannel{kind: entity.ChannelBotDM, enabled: true}
	d := NewDispatcher(resolver, []Channel{bot}, Config{}, nil)

	before := testutil.ToFloat64(notificationSentTotal.WithLabelValues("bot_dm", "identity_not_linked"))

	result := d.Dispatch(context.Background(), "user-1", entity.ChannelBotDM, testContent)

	assert.False(t, result.Success)
	assert.Equal(t, entity.ErrorIdentityNotLinked, result.Error)
	assert.Equal(t, entity.ChannelBotDM, result.Channel)
	assert.Equal(t, 0, bot.getSendCalledCount(), "no transport call may be attempted")

	after := testutil.ToFloat64(notificationSentTotal.WithLabelValues("bot_dm", "identity_not_linked"))
	assert.Equal(t, before+1, after)
}

func TestDispatch_Delivered(t *testing.T) {
	resolver := &mockResolver{identity: fullIdentity()}
	email := &mockChannel{kind: entity.ChannelEmail, enabled: true}
	bot := &mockChannel{kind: entity.ChannelBotDM, enabled: true}
	d := NewDispatcher(resolver, []Channel{email, bot}, Config{}, nil)

	result := d.Dispatch(context.Background(), "user-1", entity.ChannelEmail, testContent)

	assert.Equal(t, entity.Delivered(entity.ChannelEmail), result)
	assert.Equal(t, 1, email.getSendCalledCount())
	assert.Equal(t, 0, bot.getSendCalledCount(), "exactly one channel is attempted")
	assert.Equal(t, testContent, email.lastContent)
	assert.Equal(t, "user-1", email.lastID.UserID)
}

func TestDispatch_ResolverErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want entity.ErrorKind
	}{
		{name: "unknown user", err: fmt.Errorf("lookup: %w", repository.ErrUserNotFound), want: entity.ErrorIdentityNotLinked},
		{name: "store failure", err: errors.New("connection reset"), want: entity.ErrorTransportFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &mockChannel{kind: entity.ChannelEmail, enabled: true}
			d := NewDispatcher(&mockResolver{err: tt.err}, []Channel{ch}, Config{}, nil)

			result := d.Dispatch(context.Background(), "user-1", entity.ChannelEmail, testContent)

			assert.False(t, result.Success)
			assert.Equal(t, tt.want, result.Error)
			assert.Zero(t, ch.getSendCalledCount())
		})
	}
}

func TestDispatch_ChannelUnavailable(t *testing.T) {
	t.Run("no adapter registered", func(t *testing.T) {
		d := NewDispatcher(&mockResolver{identity: fullIdentity()}, nil, Config{}, nil)
		result := d.Dispatch(context.Background(), "user-1", entity.ChannelMessagingApp, testContent)
		assert.Equal(t, entity.ErrorChannelUnavailable, result.Error)
	})

	t.Run("adapter disabled", func(t *testing.T) {
		ch := &mockChannel{kind: entity.ChannelEmail, enabled: false}
		d := NewDispatcher(&mockResolver{identity: fullIdentity()}, []Channel{ch}, Config{}, nil)
		result := d.Dispatch(context.Background(), "user-1", entity.ChannelEmail, testContent)
		assert.Equal(t, entity.ErrorChannelUnavailable, result.Error)
		assert.Zero(t, ch.getSendCalledCount())
	})

	t.Run("adapter reports unconfigured transport", func(t *testing.T) {
		ch := &mockChannel{kind: entity.ChannelEmail, enabled: true,
			err: fmt.Errorf("%w: %w", ErrChannelUnavailable, notifier.ErrNotConfigured)}
		d := NewDispatcher(&mockResolver{identity: fullIdentity()}, []Channel{ch}, Config{}, nil)
		result := d.Dispatch(context.Background(), "user-1", entity.ChannelEmail, testContent)
		assert.Equal(t, entity.ErrorChannelUnavailable, result.Error)
	})

	t.Run("unknown channel", func(t *testing.T) {
		resolver := &mockResolver{identity: fullIdentity()}
		d := NewDispatcher(resolver, nil, Config{}, nil)
		result := d.Dispatch(context.Background(), "user-1", entity.Channel("carrier_pigeon"), testContent)
		assert.Equal(t, entity.ErrorChannelUnavailable, result.Error)
		assert.Zero(t, resolver.calls)
	})
}

func TestDispatch_TransportFailureKeepsMessage(t *testing.T) {
	ch := &mockChannel{kind: entity.ChannelWorkspaceBot, enabled: true,
		err: &notifier.ClientError{StatusCode: 200, Message: "Slack API client error: channel_not_found"}}
	d := NewDispatcher(&mockResolver{identity: fullIdentity()}, []Channel{ch}, Config{}, nil)

	result := d.Dispatch(context.Background(), "user-1", entity.ChannelWorkspaceBot, testContent)

	assert.False(t, result.Success)
	assert.Equal(t, entity.ErrorTransportFailure, result.Error)
	assert.Contains(t, result.Message, "channel_not_found")
}

func TestDispatch_AdapterPanic(t *testing.T) {
	ch := &mockChannel{kind: entity.ChannelEmail, enabled: true, panics: true}
	d := NewDispatcher(&mockResolver{identity: fullIdentity()}, []Channel{ch}, Config{}, nil)

	var result entity.DeliveryResult
	require.NotPanics(t, func() {
		result = d.Dispatch(context.Background(), "user-1", entity.ChannelEmail, testContent)
	})
	assert.Equal(t, entity.ErrorTransportFailure, result.Error)
	assert.Contains(t, result.Message, "adapter exploded")
}

func TestDispatch_SendTimeout(t *testing.T) {
	release := make(chan struct{})
	ch := &mockChannel{kind: entity.ChannelBotDM, enabled: true, block: release}
	d := NewDispatcher(&mockResolver{identity: fullIdentity()}, []Channel{ch}, Config{SendTimeout: 50 * time.Millisecond}, nil)

	start := time.Now()
	result := d.Dispatch(context.Background(), "user-1", entity.ChannelBotDM, testContent)
	elapsed := time.Since(start)

	assert.Equal(t, entity.ErrorTransportFailure, result.Error)
	assert.Contains(t, result.Message, ErrSendTimeout.Error())
	assert.Less(t, elapsed, 2*time.Second, "dispatcher must not wait for a stuck adapter")

	// The stuck call is still tracked until it returns.
	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, d.Shutdown(shortCtx))

	close(release)
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestDispatch_ResultInvariant(t *testing.T) {
	identities := []entity.IdentityBundle{{}, fullIdentity(), {Email: "ada@example.com"}}
	adapterErrs := []error{nil, errors.New("boom"), fmt.Errorf("x: %w", ErrChannelUnavailable)}

	targets := append([]entity.Channel{entity.Channel("")}, entity.AllChannels...)

	for _, identity := range identities {
		for _, adapterErr := range adapterErrs {
			for _, ch := range targets {
				channels := []Channel{}
				for _, kind := range entity.AllChannels {
					channels = append(channels, &mockChannel{kind: kind, enabled: true, err: adapterErr})
				}
				d := NewDispatcher(&mockResolver{identity: identity}, channels, Config{}, nil)

				result := d.Dispatch(context.Background(), "user-1", ch, testContent)
				assert.Equal(t, result.Success, result.Error == "", "channel=%q err=%v", ch, adapterErr)
				assert.Equal(t, ch, result.Channel)
			}
		}
	}
}

func testBreaker(name string) circuitbreaker.Config {
	return circuitbreaker.Config{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 1.0,
		MinRequests:      2,
	}
}

func TestDispatch_CircuitBreakerOpensOnTransientFailures(t *testing.T) {
	ch := &mockChannel{kind: entity.ChannelMessagingApp, enabled: true,
		err: &notifier.ServerError{StatusCode: 503, Message: "WhatsApp API server error"}}
	d := NewDispatcher(&mockResolver{identity: fullIdentity()}, []Channel{ch}, Config{Breaker: testBreaker}, nil)

	for i := 0; i < 2; i++ {
		result := d.Dispatch(context.Background(), "user-1", entity.ChannelMessagingApp, testContent)
		require.Equal(t, entity.ErrorTransportFailure, result.Error)
	}

	result := d.Dispatch(context.Background(), "user-1", entity.ChannelMessagingApp, testContent)
	assert.Equal(t, entity.ErrorTransportFailure, result.Error)
	assert.Contains(t, result.Message, ErrCircuitBreakerOpen.Error())
	assert.Equal(t, 2, ch.getSendCalledCount(), "open breaker must not reach the adapter")

	health := d.ChannelHealth()
	require.Len(t, health, 1)
	assert.True(t, health[0].CircuitBreakerOpen)
	assert.Equal(t, "open", health[0].State)
}

func TestDispatch_ClientErrorsDoNotTripBreaker(t *testing.T) {
	ch := &mockChannel{kind: entity.ChannelBotDM, enabled: true,
		err: &notifier.ClientError{StatusCode: 403, Message: "user blocked bot"}}
	d := NewDispatcher(&mockResolver{identity: fullIdentity()}, []Channel{ch}, Config{Breaker: testBreaker}, nil)

	for i := 0; i < 5; i++ {
		d.Dispatch(context.Background(), "user-1", entity.ChannelBotDM, testContent)
	}

	assert.Equal(t, 5, ch.getSendCalledCount())
	assert.False(t, d.ChannelHealth()[0].CircuitBreakerOpen)
}

func TestChannelHealth(t *testing.T) {
	channels := []Channel{
		&mockChannel{kind: entity.ChannelEmail, enabled: true},
		&mockChannel{kind: entity.ChannelBotDM, enabled: false},
	}
	d := NewDispatcher(&mockResolver{}, channels, Config{}, nil)

	health := d.ChannelHealth()
	require.Len(t, health, 2)
	assert.Equal(t, "email", health[0].Name)
	assert.True(t, health[0].Enabled)
	assert.Equal(t, "closed", health[0].State)
	assert.Equal(t, entity.ChannelBotDM, health[1].Channel)
	assert.False(t, health[1].Enabled)
	assert.Equal(t, float64(1), testutil.ToFloat64(channelsEnabled))
}

// blockingResolver waits for its context like a lookup against a stuck database.
type blockingResolver struct{}

func (blockingResolver) Resolve(ctx context.Context, _ string) (entity.IdentityBundle, error) {
	<-ctx.Done()
	return entity.IdentityBundle{}, ctx.Err()
}

func TestDispatch_ResolveTimeout(t *testing.T) {
	ch := &mockChannel{kind: entity.ChannelEmail, enabled: true}
	d := NewDispatcher(blockingResolver{}, []Channel{ch}, Config{ResolveTimeout: 30 * time.Millisecond}, nil)

	done := make(chan entity.DeliveryResult, 1)
	go func() {
		done <- d.Dispatch(context.Background(), "user-1", entity.ChannelEmail, testContent)
	}()

	select {
	case result := <-done:
		assert.False(t, result.Success)
		assert.Equal(t, entity.ErrorTransportFailure, result.Error)
		assert.Contains(t, result.Message, "timed out")
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on the identity lookup")
	}
	assert.Zero(t, ch.getSendCalledCount())
}

func TestDispatch_CancelledSendIsNotATimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	ch := &mockChannel{kind: entity.ChannelBotDM, enabled: true, block: release}
	d := NewDispatcher(&mockResolver{identity: fullIdentity()}, []Channel{ch}, Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := d.Dispatch(ctx, "user-1", entity.ChannelBotDM, testContent)
	assert.Equal(t, entity.ErrorTransportFailure, result.Error)
	assert.NotContains(t, result.Message, ErrSendTimeout.Error())
	assert.Contains(t, result.Message, "cancel")
}
