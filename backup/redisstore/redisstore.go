// Package redisstore persists backup values in Redis.
//
// It shares backup values between processes or hosts that cannot reach a common
// local disk. Values are stored as plain strings under KeyPrefix+key.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arloliu/livequery/types"
)

// Config holds connection and key settings.
type Config struct {
	// Addr is the Redis address (host:port).
	Addr string `yaml:"addr"`

	// Password authenticates the connection. Optional.
	Password string `yaml:"password"`

	// DB selects the logical database.
	DB int `yaml:"db"`

	// KeyPrefix is prepended to every key.
	KeyPrefix string `yaml:"keyPrefix"`

	// TTL expires saved values (0 keeps them forever).
	TTL time.Duration `yaml:"ttl"`

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

// DefaultConfig returns the configuration for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		KeyPrefix:   "livequery:",
		DialTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: redis addr is required", types.ErrInvalidConfig)
	}
	if c.DB < 0 {
		return fmt.Errorf("%w: redis db must be >= 0, got %d", types.ErrInvalidConfig, c.DB)
	}
	if c.TTL < 0 {
		return fmt.Errorf("%w: negative backup ttl %s", types.ErrInvalidConfig, c.TTL)
	}

	return nil
}

// Store is a types.BackupStore on Redis. Safe for concurrent use.
type Store struct {
	rdb    goredis.UniversalClient
	owned  bool
	prefix string
	ttl    time.Duration
}

var _ types.BackupStore = (*Store)(nil)

// Open connects to Redis and verifies the connection with PING.
//
// Parameters:
//   - ctx: Context bounding the PING
//   - cfg: Connection configuration
//
// Returns:
//   - *Store: The store; Close releases the connection pool
//   - error: ErrInvalidConfig, or ErrBackupUnavailable when Redis cannot be reached
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", types.ErrBackupUnavailable, cfg.Addr, err)
	}

	return &Store{rdb: rdb, owned: true, prefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

// New wraps an existing client. Close leaves rdb open.
func New(rdb goredis.UniversalClient, keyPrefix string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, prefix: keyPrefix, ttl: ttl}
}

// Load returns the value saved under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("load", key, err)
	}

	return value, true, nil
}

// Save stores value under key with the configured TTL.
func (s *Store) Save(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return wrap("save", key, err)
	}

	return nil
}

// Delete removes the value under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return wrap("delete", key, err)
	}

	return nil
}

// Close releases the connection pool when it was created by Open.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}

	return s.rdb.Close()
}

func wrap(op, key string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, goredis.ErrClosed) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: redis %s %q: %w", types.ErrBackupUnavailable, op, key, err)
	}

	return fmt.Errorf("redis %s %q: %w", op, key, err)
}
