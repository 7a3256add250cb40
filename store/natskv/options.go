package natskv

import (
	"github.com/arloliu/livequery/internal/logging"
	"github.com/arloliu/livequery/internal/metrics"
	"github.com/arloliu/livequery/types"
)

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	logger  types.Logger
	metrics types.WriteMetrics
	seed    int64
}

func defaultOptions() storeOptions {
	return storeOptions{
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
}

// WithLogger sets the store logger.
func WithLogger(logger types.Logger) Option {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the collector receiving write conflict counts.
func WithMetrics(m types.WriteMetrics) Option {
	return func(o *storeOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithRetrySeed makes conflict retry jitter deterministic. Intended for tests.
func WithRetrySeed(seed int64) Option {
	return func(o *storeOptions) {
		o.seed = seed
	}
}
