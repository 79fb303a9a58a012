package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func testConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      1,
		Interval:         10 * time.Second,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

func fail(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, errBoom })
	}
}

func TestNew(t *testing.T) {
	cb := New(testConfig("test-new"))

	assert.Equal(t, "test-new", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.False(t, cb.IsOpen())
	assert.Equal(t, 0.0, testutil.ToFloat64(breakerState.WithLabelValues("test-new")))
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb := New(testConfig("test-execute"))

	result, err := cb.Execute(func() (interface{}, error) { return "sent", nil })
	require.NoError(t, err)
	assert.Equal(t, "sent", result)

	_, err = cb.Execute(func() (interface{}, error) { return nil, errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_TripsOpen(t *testing.T) {
	cb := New(testConfig("test-trip"))

	fail(cb, 5)

	assert.True(t, cb.IsOpen())
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("test-trip")))

	called := false
	_, err := cb.Execute(func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, called, "open breaker must not call through")
}

func TestCircuitBreaker_BelowMinRequestsStaysClosed(t *testing.T) {
	cfg := testConfig("test-min")
	cfg.MinRequests = 10
	cb := New(cfg)

	fail(cb, 9)

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_RatioBelowThresholdStaysClosed(t *testing.T) {
	cb := New(testConfig("test-ratio"))

	for i := 0; i < 10; i++ {
		if i%2 == 1 {
			fail(cb, 1)
			continue
		}
		_, _ = cb.Execute(func() (interface{}, error) { return nil, nil })
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State(), "half the requests failed, under the threshold")
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := New(testConfig("test-recover"))
	fail(cb, 5)
	require.True(t, cb.IsOpen())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, cb.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(breakerState.WithLabelValues("test-recover")))

	_, err := cb.Execute(func() (interface{}, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, 0.0, testutil.ToFloat64(breakerState.WithLabelValues("test-recover")))
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(testConfig("test-reopen"))
	fail(cb, 5)
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, gobreaker.StateHalfOpen, cb.State())

	fail(cb, 1)

	assert.True(t, cb.IsOpen())
}

func TestCircuitBreaker_IsSuccessful(t *testing.T) {
	errRejected := errors.New("rejected by remote")
	cfg := testConfig("test-successful")
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, errRejected)
	}
	cb := New(cfg)

	for i := 0; i < 10; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, errRejected })
		require.ErrorIs(t, err, errRejected)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []gobreaker.State
	cfg := testConfig("test-hook")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 1.0
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	}
	cb := New(cfg)

	fail(cb, 2)

	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
}

func TestPresetConfigs(t *testing.T) {
	ch := ChannelConfig("email")
	assert.Equal(t, "channel-email", ch.Name)
	assert.Equal(t, uint32(5), ch.MinRequests)
	assert.Equal(t, 2*time.Minute, ch.Timeout)

	q := QueueConfig()
	assert.Equal(t, "work-queue", q.Name)
	assert.Equal(t, 1.0, q.FailureThreshold)

	db := DBConfig()
	assert.Equal(t, "database", db.Name)
	require.NotNil(t, db.IsSuccessful)
}

func TestStateValue(t *testing.T) {
	assert.Equal(t, 0.0, stateValue(gobreaker.StateClosed))
	assert.Equal(t, 1.0, stateValue(gobreaker.StateHalfOpen))
	assert.Equal(t, 2.0, stateValue(gobreaker.StateOpen))
}
