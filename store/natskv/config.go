package natskv

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/livequery/internal/kvutil"
	"github.com/arloliu/livequery/types"
)

// Config configures the KV bucket and write retry policy.
type Config struct {
	// Bucket is the KV bucket holding every collection.
	Bucket string `yaml:"bucket"`

	// History is the number of revisions kept per key.
	History uint8 `yaml:"history"`

	// TTL expires documents after the given duration (0 keeps them forever).
	TTL time.Duration `yaml:"ttl"`

	// Storage is "file" or "memory".
	Storage string `yaml:"storage"`

	// Replicas is the stream replica count.
	Replicas int `yaml:"replicas"`

	// WriteMaxRetries bounds retries after a revision conflict.
	WriteMaxRetries int `yaml:"writeMaxRetries"`

	// WriteRetryBackoff is the first delay between conflict retries.
	WriteRetryBackoff time.Duration `yaml:"writeRetryBackoff"`

	// EnsureRetries bounds bucket create/open attempts in New.
	EnsureRetries int `yaml:"ensureRetries"`
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		Bucket:            "livequery-docs",
		History:           1,
		Storage:           "file",
		Replicas:          1,
		WriteMaxRetries:   5,
		WriteRetryBackoff: 20 * time.Millisecond,
		EnsureRetries:     3,
	}
}

// SetDefaults fills zero fields of cfg from DefaultConfig.
func SetDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Bucket == "" {
		cfg.Bucket = def.Bucket
	}
	if cfg.History == 0 {
		cfg.History = def.History
	}
	if cfg.Storage == "" {
		cfg.Storage = def.Storage
	}
	if cfg.Replicas == 0 {
		cfg.Replicas = def.Replicas
	}
	if cfg.WriteRetryBackoff == 0 {
		cfg.WriteRetryBackoff = def.WriteRetryBackoff
	}
	if cfg.EnsureRetries == 0 {
		cfg.EnsureRetries = def.EnsureRetries
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if _, err := kvutil.ParseStorage(c.Storage); err != nil {
		errs = append(errs, err)
	}
	if c.Replicas < 1 || c.Replicas > 5 {
		errs = append(errs, fmt.Errorf("replicas must be in [1,5], got %d", c.Replicas))
	}
	if c.WriteMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("writeMaxRetries must be >= 0, got %d", c.WriteMaxRetries))
	}
	if c.WriteRetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("writeRetryBackoff must be >= 0, got %s", c.WriteRetryBackoff))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", types.ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

func (c *Config) bucketConfig() jetstream.KeyValueConfig {
	storage, _ := kvutil.ParseStorage(c.Storage)

	return jetstream.KeyValueConfig{
		Bucket:      c.Bucket,
		Description: "livequery documents",
		History:     c.History,
		TTL:         c.TTL,
		Storage:     storage,
		Replicas:    c.Replicas,
	}
}
