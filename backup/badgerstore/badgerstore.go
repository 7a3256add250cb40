// Package badgerstore persists backup values in an embedded BadgerDB database.
//
// It is the local tier of a Backed value: values survive process restarts without
// any network dependency.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/arloliu/livequery/internal/logging"
	"github.com/arloliu/livequery/types"
)

// Config holds configuration for a badger-backed store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string `yaml:"path"`

	// InMemory keeps the database in memory only. Useful for tests.
	InMemory bool `yaml:"inMemory"`

	// SyncWrites fsyncs every save.
	SyncWrites bool `yaml:"syncWrites"`

	// KeyPrefix is prepended to every key.
	KeyPrefix string `yaml:"keyPrefix"`

	// TTL expires saved values (0 keeps them forever).
	TTL time.Duration `yaml:"ttl"`
}

// DefaultConfig returns a durable configuration; Path must still be set.
func DefaultConfig() Config {
	return Config{
		SyncWrites: true,
		KeyPrefix:  "livequery:",
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{
		InMemory:  true,
		KeyPrefix: "livequery:",
	}
}

// Store is a types.BackupStore on BadgerDB. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	owned  bool
	prefix string
	ttl    time.Duration
	logger types.Logger
}

var _ types.BackupStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger; it also receives BadgerDB's internal messages.
func WithLogger(logger types.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens (creating when needed) the database described by cfg.
//
// Parameters:
//   - cfg: Database configuration. Path is required unless InMemory is true
//   - opts: Optional logger
//
// Returns:
//   - *Store: The store; Close releases the database
//   - error: ErrInvalidConfig, or the badger open failure
func Open(cfg Config, opts ...Option) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: badger path is required for a persistent database", types.ErrInvalidConfig)
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("%w: negative backup ttl %s", types.ErrInvalidConfig, cfg.TTL)
	}

	s := &Store{
		owned:  true,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var bopts badger.Options
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create backup directory %s: %w", cfg.Path, err)
		}
		bopts = badger.DefaultOptions(cfg.Path)
	}
	bopts = bopts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: s.logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	s.db = db

	return s, nil
}

// New wraps an open database. Close leaves db open.
func New(db *badger.DB, keyPrefix string, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		db:     db,
		prefix: keyPrefix,
		ttl:    ttl,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Load returns the value saved under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(s.prefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)

		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.wrap("load", key, err)
	}

	return value, true, nil
}

// Save stores value under key with the configured TTL.
func (s *Store) Save(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(s.prefix+key), value)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}

		return txn.SetEntry(entry)
	})
	if err != nil {
		return s.wrap("save", key, err)
	}

	return nil
}

// Delete removes the value under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(s.prefix + key))
	})
	if err != nil {
		return s.wrap("delete", key, err)
	}

	return nil
}

// Close closes the database when it was opened by Open.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger database: %w", err)
	}

	return nil
}

func (s *Store) wrap(op, key string, err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return fmt.Errorf("%w: badger %s %q: %w", types.ErrBackupUnavailable, op, key, err)
	}

	return fmt.Errorf("badger %s %q: %w", op, key, err)
}

// badgerLogger forwards BadgerDB's printf-style logging to a types.Logger.
type badgerLogger struct {
	logger types.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
