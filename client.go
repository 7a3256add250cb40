package livequery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/arloliu/livequery/internal/hooks"
	"github.com/arloliu/livequery/internal/logging"
	"github.com/arloliu/livequery/internal/metrics"
)

// Client is the shared handle every Query and Backed value is built from.
//
// It carries the remote store, configuration, logger, metrics and hooks. A Client
// is read-only after construction apart from its identity, and safe for concurrent use.
type Client struct {
	store   Store
	cfg     Config
	logger  Logger
	metrics MetricsCollector
	hooks   *Hooks

	identity atomic.Pointer[string]

	// Background work (hooks, writes) is bound to ctx and tracked by wg.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewClient creates a new client.
//
// Returns a concrete *Client struct following the "accept interfaces, return structs" principle.
//
// Parameters:
//   - store: Remote store capability (natskv, memstore or a custom implementation)
//   - opts: Optional configuration (config, logger, metrics, hooks, identity)
//
// Returns:
//   - *Client: Initialized client
//   - error: ErrStoreRequired, or ErrInvalidConfig if the configuration is invalid
//
// Example:
//
//	store := memstore.New()
//	client, err := livequery.NewClient(store, livequery.WithIdentity(userID))
func NewClient(store Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	// Apply options
	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	cfg := DefaultConfig()
	if options.config != nil {
		cfg = *options.config
		// Fill in missing configuration values with defaults
		SetDefaults(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Provide safe defaults for optional dependencies to avoid nil checks everywhere
	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}

	// Validate with warnings after logger is available
	cfg.ValidateWithWarnings(loggerInstance)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		store:   store,
		cfg:     cfg,
		logger:  loggerInstance,
		metrics: metricsCollector,
		hooks:   hooks.Fill(options.hooks),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.SetIdentity(options.identity)

	return c, nil
}

// Store returns the remote store.
func (c *Client) Store() Store {
	return c.store
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Identity returns the identity substituted for the placeholder in Backed paths.
func (c *Client) Identity() string {
	return *c.identity.Load()
}

// SetIdentity changes the identity, e.g. after sign-in.
//
// Backed values pick the new identity up on their next Update.
func (c *Client) SetIdentity(id string) {
	c.identity.Store(&id)
}

// resolvePath substitutes the identity for the placeholder.
//
// Returns the resolved path and whether it names a concrete document. An empty
// path, or a placeholder path with no identity, does not.
func (c *Client) resolvePath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if !strings.Contains(path, c.cfg.PlaceholderID) {
		return path, true
	}

	id := c.Identity()
	if id == "" {
		return path, false
	}

	return strings.ReplaceAll(path, c.cfg.PlaceholderID, id), true
}

// ResolveShare returns the ID of the first document in collection whose
// shareField equals shareID.
//
// It runs a one-shot query and tears it down once the first snapshot arrives.
// Typical use is computing the path of a Backed value opened in view mode.
//
// Parameters:
//   - ctx: Context bounding the lookup
//   - collection: Collection to search
//   - shareField: Field holding share ids
//   - shareID: Share id to look up
//
// Returns:
//   - string: Matching document ID
//   - error: ErrShareNotFound when nothing matches, the transport error, or ctx.Err()
//
// Example:
//
//	ownerID, err := client.ResolveShare(ctx, "users", "shareId", sharedID)
//	if errors.Is(err, livequery.ErrShareNotFound) { ... }
//	levels.Update(ownerID, true)
func (c *Client) ResolveShare(ctx context.Context, collection, shareField, shareID string) (string, error) {
	if shareID == "" {
		return "", fmt.Errorf("%w: empty share id", ErrShareNotFound)
	}

	d := Collection(collection).Where(shareField, OpEqual, shareID).WithLimit(1)
	if err := d.Validate(); err != nil {
		return "", err
	}

	q := c.Query(WithDescriptor(d))
	defer q.Close()

	state, err := q.Wait(ctx, func(s State) bool { return s.IsSuccess() || s.IsError() })
	if err != nil {
		return "", err
	}
	if state.IsError() {
		return "", fmt.Errorf("failed to resolve share %q: %w", shareID, state.Err)
	}

	records, _ := state.Records()
	for _, rec := range records {
		if rec != nil {
			return rec.ID(), nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrShareNotFound, shareID)
}

// Close stops background work: it waits for queued writes and hook invocations,
// then cancels their context. Queries and Backed values must be closed by their
// owners. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	c.cancel()

	return nil
}

// goBackground runs fn on a tracked goroutine. It reports false once the client is closed.
func (c *Client) goBackground(fn func(ctx context.Context)) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}
	c.wg.Go(func() { fn(c.ctx) })

	return true
}

// fireStateChanged invokes Hooks.OnStateChanged without blocking the caller.
func (c *Client) fireStateChanged(id string, from, to Status) {
	c.goBackground(func(ctx context.Context) {
		if err := c.hooks.OnStateChanged(ctx, id, from, to); err != nil {
			c.logger.Error("state change hook error", "query_id", id, "from", from, "to", to, "error", err)
		}
	})
}

// fireError invokes Hooks.OnError without blocking the caller.
func (c *Client) fireError(id string, cause error) {
	c.goBackground(func(ctx context.Context) {
		if err := c.hooks.OnError(ctx, id, cause); err != nil && !errors.Is(err, cause) {
			c.logger.Error("error hook error", "query_id", id, "cause", cause, "error", err)
		}
	})
}
