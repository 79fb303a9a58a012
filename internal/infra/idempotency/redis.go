// Package idempotency records which briefing deliveries are in progress or
// done so that a redelivered queue message is not sent twice.
//
// A key moves from claimed to delivered. A claim expires after ClaimTTL so a
// worker that dies mid-send does not block the delivery for the rest of the
// day; a delivered key is kept for DeliveredTTL.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

const (
	stateClaimed   = "claimed"
	stateDelivered = "delivered"
)

var claimsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "idempotency_claims_total",
		Help: "Total number of delivery claims by result",
	},
	[]string{"result"}, // claimed|duplicate|error
)

// Config configures a RedisStore.
type Config struct {
	Prefix       string
	ClaimTTL     time.Duration
	DeliveredTTL time.Duration
}

// DefaultConfig keeps delivered keys for two days, longer than any local
// calendar day lasts in UTC.
func DefaultConfig() Config {
	return Config{
		Prefix:       "briefing:delivery:",
		ClaimTTL:     10 * time.Minute,
		DeliveredTTL: 48 * time.Hour,
	}
}

// redisClient is the subset of redis.Cmdable the store uses.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStore keeps delivery claims in Redis.
type RedisStore struct {
	rdb redisClient
	cfg Config
}

// NewRedisStore creates a RedisStore. Zero TTLs fall back to DefaultConfig.
func NewRedisStore(rdb redisClient, cfg Config) *RedisStore {
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = def.ClaimTTL
	}
	if cfg.DeliveredTTL <= 0 {
		cfg.DeliveredTTL = def.DeliveredTTL
	}
	return &RedisStore{rdb: rdb, cfg: cfg}
}

// NewClient builds a go-redis client from an address and optional password.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// Claim marks key as in progress. It returns false when the key is already
// claimed or delivered.
func (s *RedisStore) Claim(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("idempotency key is empty")
	}
	ok, err := s.rdb.SetNX(ctx, s.cfg.Prefix+key, stateClaimed, s.cfg.ClaimTTL).Result()
	if err != nil {
		claimsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		claimsTotal.WithLabelValues("duplicate").Inc()
		return false, nil
	}
	claimsTotal.WithLabelValues("claimed").Inc()
	return true, nil
}

// Complete marks key as delivered.
func (s *RedisStore) Complete(ctx context.Context, key string) error {
	if err := s.rdb.Set(ctx, s.cfg.Prefix+key, stateDelivered, s.cfg.DeliveredTTL).Err(); err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

// Release drops a claim so a later attempt may retry.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.cfg.Prefix+key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// Check pings Redis.
func (s *RedisStore) Check(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
