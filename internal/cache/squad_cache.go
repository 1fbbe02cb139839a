package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var (
	ErrCacheMiss        = errors.New("cache miss")
	ErrCacheUnavailable = errors.New("cache unavailable")
)

const defaultKeyPrefix = "fpl:squad:"

// SquadCache stores optimization results in redis keyed by a hash of the
// request. Redis failures trip a circuit breaker so a dead cache costs one
// fast error instead of a timeout per request.
type SquadCache struct {
	client    *redis.Client
	breaker   *gobreaker.CircuitBreaker
	ttl       time.Duration
	keyPrefix string
	logger    *logrus.Entry
}

// NewSquadCache connects to redisURL and verifies the connection
func NewSquadCache(redisURL string, ttl time.Duration, logger *logrus.Logger) (*SquadCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, ttl, logger), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *SquadCache {
	entry := logger.WithField("component", "squad_cache")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "squad-cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			entry.WithFields(logrus.Fields{
				"breaker":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("Cache circuit breaker state changed")
		},
	})

	return &SquadCache{
		client:    client,
		breaker:   breaker,
		ttl:       ttl,
		keyPrefix: defaultKeyPrefix,
		logger:    entry,
	}
}

// Key hashes the kind and the JSON form of the request into a cache key
func Key(kind string, request interface{}) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache key: %w", err)
	}
	sum := sha256.Sum256(append([]byte(kind+":"), data...))
	return kind + ":" + hex.EncodeToString(sum[:]), nil
}

// Get decodes the cached value into dest. It returns ErrCacheMiss when
// absent and ErrCacheUnavailable while the breaker is open.
func (c *SquadCache) Get(ctx context.Context, key string, dest interface{}) error {
	start := time.Now()
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.Get(ctx, c.keyPrefix+key).Bytes()
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrCacheUnavailable
	case errors.Is(err, redis.Nil):
		c.logger.WithField("key", key).Debug("Cache miss")
		return ErrCacheMiss
	case err != nil:
		c.logger.WithError(err).WithField("key", key).Error("Failed to read from cache")
		return err
	}

	if err := json.Unmarshal(raw.([]byte), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	c.logger.WithFields(logrus.Fields{
		"key":           key,
		"response_time": time.Since(start),
	}).Debug("Cache hit")
	return nil
}

// Set stores value under key with the cache TTL
func (c *SquadCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, c.keyPrefix+key, data, c.ttl).Err()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCacheUnavailable
	}
	return err
}

// Ping reports whether redis answers
func (c *SquadCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// State exposes the breaker state for readiness checks
func (c *SquadCache) State() gobreaker.State {
	return c.breaker.State()
}

func (c *SquadCache) Close() error {
	return c.client.Close()
}
