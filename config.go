package livequery

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPlaceholderID is the path token that stands for the current identity.
const DefaultPlaceholderID = "%ID%"

// KVConfig configures the NATS JetStream KeyValue bucket used by the natskv store.
type KVConfig struct {
	// Bucket is the KV bucket holding every document.
	Bucket string `yaml:"bucket"`

	// History is the number of revisions kept per key (1-64).
	History uint8 `yaml:"history"`

	// TTL expires documents that are not rewritten (0 = no expiration).
	TTL time.Duration `yaml:"ttl"`

	// Storage selects the JetStream storage backend: "file" or "memory".
	Storage string `yaml:"storage"`

	// Replicas is the stream replication factor (1-5).
	Replicas int `yaml:"replicas"`
}

// BackupConfig configures persisted backup stores.
type BackupConfig struct {
	// KeyPrefix is prepended to every backup key.
	KeyPrefix string `yaml:"keyPrefix"`

	// TTL expires saved backup values (0 = keep forever).
	TTL time.Duration `yaml:"ttl"`
}

// Config is the configuration for a Client.
//
// All duration fields accept standard Go duration strings like "5s", "250ms".
type Config struct {
	// WriteTimeout bounds each background remote write and backup save issued by Backed.
	// Recommended: 5-10 seconds.
	WriteTimeout time.Duration `yaml:"writeTimeout"`

	// SubscribeTimeout bounds subscription establishment. Once established, a
	// subscription lives until it is torn down.
	SubscribeTimeout time.Duration `yaml:"subscribeTimeout"`

	// WriteMaxRetries is the number of optimistic-concurrency retries a store may
	// attempt for a single write.
	WriteMaxRetries int `yaml:"writeMaxRetries"`

	// WriteRetryBackoff is the base delay between write retries (jittered).
	WriteRetryBackoff time.Duration `yaml:"writeRetryBackoff"`

	// SubscriberBuffer is the channel buffer of State/value subscriptions.
	SubscriberBuffer int `yaml:"subscriberBuffer"`

	// PlaceholderID is the path token replaced by the client identity.
	PlaceholderID string `yaml:"placeholderId"`

	// KV controls the NATS JetStream KV bucket.
	KV KVConfig `yaml:"kv"`

	// Backup controls persisted backup stores.
	Backup BackupConfig `yaml:"backup"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  5 * time.Second,
		WriteMaxRetries:   5,
		WriteRetryBackoff: 20 * time.Millisecond,
		SubscriberBuffer:  4,
		PlaceholderID:     DefaultPlaceholderID,
		KV: KVConfig{
			Bucket:   "livequery-docs",
			History:  1,
			TTL:      0,
			Storage:  "file",
			Replicas: 1,
		},
		Backup: BackupConfig{
			KeyPrefix: "livequery:",
			TTL:       0,
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.SubscribeTimeout == 0 {
		cfg.SubscribeTimeout = defaults.SubscribeTimeout
	}
	if cfg.WriteMaxRetries == 0 {
		cfg.WriteMaxRetries = defaults.WriteMaxRetries
	}
	if cfg.WriteRetryBackoff == 0 {
		cfg.WriteRetryBackoff = defaults.WriteRetryBackoff
	}
	if cfg.SubscriberBuffer == 0 {
		cfg.SubscriberBuffer = defaults.SubscriberBuffer
	}
	if cfg.PlaceholderID == "" {
		cfg.PlaceholderID = defaults.PlaceholderID
	}
	if cfg.KV.Bucket == "" {
		cfg.KV.Bucket = defaults.KV.Bucket
	}
	if cfg.KV.History == 0 {
		cfg.KV.History = defaults.KV.History
	}
	if cfg.KV.Storage == "" {
		cfg.KV.Storage = defaults.KV.Storage
	}
	if cfg.KV.Replicas == 0 {
		cfg.KV.Replicas = defaults.KV.Replicas
	}
	if cfg.Backup.KeyPrefix == "" {
		cfg.Backup.KeyPrefix = defaults.Backup.KeyPrefix
	}
	// Note: KV.TTL and Backup.TTL of 0 are valid (no expiration), so we don't apply defaults
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - WriteTimeout > 0 and SubscribeTimeout > 0
//   - WriteMaxRetries >= 0, WriteRetryBackoff >= 0
//   - SubscriberBuffer >= 1
//   - PlaceholderID is not empty
//   - KV.Bucket is a valid bucket name, KV.History in 1..64
//   - KV.Storage is "file" or "memory", KV.Replicas in 1..5
//   - KV.TTL >= 0, Backup.TTL >= 0
//
// Returns:
//   - error: ErrInvalidConfig wrapped with every violation, nil if valid
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WriteTimeout must be > 0, got %v", cfg.WriteTimeout))
	}
	if cfg.SubscribeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SubscribeTimeout must be > 0, got %v", cfg.SubscribeTimeout))
	}
	if cfg.WriteMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("WriteMaxRetries must be >= 0, got %d", cfg.WriteMaxRetries))
	}
	if cfg.WriteRetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("WriteRetryBackoff must be >= 0, got %v", cfg.WriteRetryBackoff))
	}
	if cfg.SubscriberBuffer < 1 {
		errs = append(errs, fmt.Errorf("SubscriberBuffer must be >= 1, got %d", cfg.SubscriberBuffer))
	}
	if cfg.PlaceholderID == "" {
		errs = append(errs, errors.New("PlaceholderID must not be empty"))
	}
	if cfg.KV.Bucket == "" || strings.ContainsAny(cfg.KV.Bucket, ". *>") {
		errs = append(errs, fmt.Errorf("KV.Bucket %q is not a valid bucket name", cfg.KV.Bucket))
	}
	if cfg.KV.History < 1 || cfg.KV.History > 64 {
		errs = append(errs, fmt.Errorf("KV.History must be within 1..64, got %d", cfg.KV.History))
	}
	if cfg.KV.Storage != "file" && cfg.KV.Storage != "memory" {
		errs = append(errs, fmt.Errorf("KV.Storage must be \"file\" or \"memory\", got %q", cfg.KV.Storage))
	}
	if cfg.KV.Replicas < 1 || cfg.KV.Replicas > 5 {
		errs = append(errs, fmt.Errorf("KV.Replicas must be within 1..5, got %d", cfg.KV.Replicas))
	}
	if cfg.KV.TTL < 0 {
		errs = append(errs, fmt.Errorf("KV.TTL must be >= 0, got %v", cfg.KV.TTL))
	}
	if cfg.Backup.TTL < 0 {
		errs = append(errs, fmt.Errorf("Backup.TTL must be >= 0, got %v", cfg.Backup.TTL))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// ValidateWithWarnings checks configuration and logs warnings for non-recommended values.
//
// This is called after Validate() in NewClient() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.WriteTimeout < time.Second {
		logger.Warn(
			"WriteTimeout is very short, background writes may fail under load",
			"writeTimeout", cfg.WriteTimeout,
			"recommended", "5s or higher",
		)
	}

	if cfg.WriteMaxRetries == 0 {
		logger.Warn(
			"WriteMaxRetries is 0, concurrent writers to one document will fail on conflict",
			"recommended", 3,
		)
	}

	if cfg.KV.Storage == "memory" && cfg.KV.Replicas == 1 {
		logger.Warn(
			"KV uses memory storage without replication, documents are lost on server restart",
			"bucket", cfg.KV.Bucket,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Returns:
//   - Config: Configuration with short timeouts and in-memory KV storage
//
// Example:
//
//	cfg := livequery.TestConfig()
//	client, err := livequery.NewClient(store, livequery.WithConfig(cfg))
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.WriteTimeout = 2 * time.Second
	cfg.SubscribeTimeout = 2 * time.Second
	cfg.WriteRetryBackoff = 5 * time.Millisecond
	cfg.KV.Storage = "memory"

	return cfg
}

// LoadConfig reads a YAML configuration file and applies defaults to missing values.
//
// Parameters:
//   - path: Path of the YAML file
//
// Returns:
//   - Config: Loaded, defaulted and validated configuration
//   - error: Read, parse or validation failure
//
// Example:
//
//	cfg, err := livequery.LoadConfig("livequery.yaml")
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration and applies defaults to missing values.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: failed to parse yaml: %w", ErrInvalidConfig, err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
