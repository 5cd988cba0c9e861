// Package redis caches computed indicator snapshots in Redis and broadcasts
// registry default changes between service instances over Pub/Sub.
package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"charting-engine/internal/indicator"
)

const (
	defaultTTL = 5 * time.Minute

	// DefaultsChannel carries registry default-parameter changes.
	DefaultsChannel = "ind:config:defaults"
)

// CacheConfig configures the Redis result cache.
type CacheConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration

	// Breaker settings; zero values select 5 failures / 10s.
	MaxFailures  int
	ResetTimeout time.Duration
}

// Cache stores Snapshots under their cache key with a TTL. Every call goes
// through a circuit breaker; callers treat any error as a miss.
type Cache struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	ttl     time.Duration
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// Breaker exposes the circuit breaker for metrics wiring.
func (c *Cache) Breaker() *CircuitBreaker { return c.breaker }

// NewCache creates the cache and pings the server.
func NewCache(cfg CacheConfig) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}

	slog.Info("[redis] connected", "addr", cfg.Addr, "db", cfg.DB)
	return NewCacheWithClient(client, cfg), nil
}

// NewCacheWithClient wraps an existing client without pinging it.
func NewCacheWithClient(client *goredis.Client, cfg CacheConfig) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	reset := cfg.ResetTimeout
	if reset <= 0 {
		reset = 10 * time.Second
	}
	return &Cache{
		client:  client,
		breaker: NewCircuitBreaker(maxFailures, reset),
		ttl:     ttl,
	}
}

// Get returns the snapshot cached under key, or (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, key string) (*indicator.Snapshot, error) {
	var data []byte
	err := c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.client.Get(ctx, key).Bytes()
		if err == goredis.Nil {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "cache get %s", key)
	}
	if data == nil {
		return nil, nil
	}
	snap, err := indicator.UnmarshalSnapshot(data)
	if err != nil {
		return nil, errors.Wrapf(err, "cache get %s", key)
	}
	return snap, nil
}

// Set stores snap under its own cache key.
func (c *Cache) Set(ctx context.Context, snap *indicator.Snapshot) error {
	data, err := indicator.MarshalSnapshot(snap)
	if err != nil {
		return errors.Wrap(err, "cache set")
	}
	key := snap.CacheKey()
	err = c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, key, data, c.ttl).Err()
	})
	return errors.Wrapf(err, "cache set %s", key)
}

// DefaultsChange is the Pub/Sub payload for a registry default update.
type DefaultsChange struct {
	Origin string           `json:"origin"` // publishing instance id
	Name   string           `json:"name"`
	Params indicator.Params `json:"params"`
}

// PublishDefaults announces a default-parameter change to other instances.
func (c *Cache) PublishDefaults(ctx context.Context, change DefaultsChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	err = c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		return c.client.Publish(ctx, DefaultsChannel, data).Err()
	})
	return errors.Wrap(err, "publish defaults")
}

// SubscribeDefaults delivers default-parameter changes to fn until ctx is
// cancelled. Malformed payloads are logged and skipped.
func (c *Cache) SubscribeDefaults(ctx context.Context, fn func(DefaultsChange)) {
	sub := c.client.Subscribe(ctx, DefaultsChannel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var change DefaultsChange
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					slog.Warn("[redis] bad defaults payload", "error", err)
					continue
				}
				fn(change)
			}
		}
	}()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
