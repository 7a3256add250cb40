package livequery

// Option configures a Client with optional dependencies.
type Option func(*clientOptions)

// clientOptions holds optional Client configuration.
type clientOptions struct {
	config   *Config
	hooks    *Hooks
	metrics  MetricsCollector
	logger   Logger
	identity string
}

// WithConfig sets the client configuration. Missing values are filled with defaults.
//
// Parameters:
//   - cfg: Configuration (copied)
//
// Returns:
//   - Option: Functional option for NewClient
//
// Example:
//
//	cfg, _ := livequery.LoadConfig("livequery.yaml")
//	client, err := livequery.NewClient(store, livequery.WithConfig(cfg))
func WithConfig(cfg Config) Option {
	return func(o *clientOptions) {
		o.config = &cfg
	}
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewClient
//
// Example:
//
//	hooks := &livequery.Hooks{
//	    OnError: func(ctx context.Context, queryID string, err error) error {
//	        alerts.Notify(queryID, err)
//	        return nil
//	    },
//	}
//	client, err := livequery.NewClient(store, livequery.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *clientOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewClient
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *clientOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewClient
//
// Example:
//
//	logger := logging.NewSlog(slog.Default())
//	client, err := livequery.NewClient(store, livequery.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithIdentity sets the identity substituted for Config.PlaceholderID in Backed paths.
//
// Parameters:
//   - id: Identity of the current user; empty means unknown
//
// Returns:
//   - Option: Functional option for NewClient
func WithIdentity(id string) Option {
	return func(o *clientOptions) {
		o.identity = id
	}
}

// QueryOption configures a Query at construction.
type QueryOption func(*queryOptions)

type queryOptions struct {
	descriptor Descriptor
	lazy       bool
	equal      EqualFunc
	observe    func(Descriptor, State)
}

// WithDescriptor sets the descriptor the query mounts with.
func WithDescriptor(d Descriptor) QueryOption {
	return func(o *queryOptions) {
		o.descriptor = d
	}
}

// WithLazy sets the lazy flag the query mounts with. A lazy query stays idle
// and holds no subscription.
func WithLazy(lazy bool) QueryOption {
	return func(o *queryOptions) {
		o.lazy = lazy
	}
}

// WithEqual replaces DescriptorsEqual as the query's equality predicate.
//
// The predicate is only called with two non-nil descriptors, as eq(previous, current).
//
// Example:
//
//	byString := func(a, b livequery.Descriptor) bool { return a.String() == b.String() }
//	q := client.Query(livequery.WithEqual(byString))
func WithEqual(eq EqualFunc) QueryOption {
	return func(o *queryOptions) {
		o.equal = eq
	}
}

// withObserver installs a callback receiving every state the query dispatches,
// together with the descriptor it belongs to, synchronously and in order, under
// the query's lock.
func withObserver(fn func(Descriptor, State)) QueryOption {
	return func(o *queryOptions) {
		o.observe = fn
	}
}
