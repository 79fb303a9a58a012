package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"daily-briefing/internal/observability/metrics"
)

// DBCircuitBreaker runs the repositories' statements through a breaker and
// records their latency by statement verb.
type DBCircuitBreaker struct {
	cb *CircuitBreaker
	db *sql.DB
}

// DBConfig opens the breaker after 5 consecutive failures and probes again
// after 30 seconds. A cancelled context is not a database failure.
func DBConfig() Config {
	return Config{
		Name:             "database",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 1.0,
		MinRequests:      5,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
}

// NewDBCircuitBreaker wraps db with the DBConfig breaker settings.
func NewDBCircuitBreaker(db *sql.DB) *DBCircuitBreaker {
	return NewDBCircuitBreakerWithConfig(db, DBConfig())
}

// NewDBCircuitBreakerWithConfig wraps db with a breaker built from cfg.
func NewDBCircuitBreakerWithConfig(db *sql.DB, cfg Config) *DBCircuitBreaker {
	return &DBCircuitBreaker{cb: New(cfg), db: db}
}

// QueryContext runs query unless the breaker is open, in which case it
// returns gobreaker.ErrOpenState without touching the pool.
func (d *DBCircuitBreaker) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer observe(query, time.Now())
	result, err := d.cb.Execute(func() (interface{}, error) {
		return d.db.QueryContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(*sql.Rows), nil
}

// ExecContext is QueryContext for statements without rows.
func (d *DBCircuitBreaker) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer observe(query, time.Now())
	result, err := d.cb.Execute(func() (interface{}, error) {
		return d.db.ExecContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(sql.Result), nil
}

func (d *DBCircuitBreaker) State() gobreaker.State {
	return d.cb.State()
}

func (d *DBCircuitBreaker) IsOpen() bool {
	return d.cb.IsOpen()
}

func observe(query string, start time.Time) {
	metrics.RecordDBQuery(statementVerb(query), time.Since(start))
}

// statementVerb returns the lower-cased first keyword of query, e.g. "select".
func statementVerb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
