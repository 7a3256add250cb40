package livequery

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/arloliu/livequery/internal/lifecycle"
	"github.com/arloliu/livequery/internal/logging"
	"github.com/arloliu/livequery/internal/memo"
	"github.com/arloliu/livequery/internal/projection"
	"github.com/arloliu/livequery/types"
)

// Query binds a descriptor to a live subscription and exposes its lifecycle state.
//
// Update is the equivalent of a render: it passes the current descriptor and lazy
// flag, and the query subscribes, resubscribes or tears down as needed. Descriptors
// equal to the previous one (under the query's equality predicate) are absorbed, so
// callers may build a new descriptor value on every update.
//
// Each subscription is tagged with a generation. Callbacks from any generation but the
// current one are discarded, so a snapshot from a superseded subscription can never
// overwrite newer state. All methods are safe for concurrent use.
type Query struct {
	client  *Client
	id      string
	logger  Logger
	equal   EqualFunc
	observe func(Descriptor, State)
	machine *lifecycle.Machine

	mu          sync.Mutex
	memo        memo.Memo[Descriptor]
	desc        Descriptor
	lazy        bool
	mounted     bool
	closed      bool
	generation  uint64
	unsubscribe types.Unsubscribe
	kind        string
}

// Query creates a query and mounts it with the initial descriptor and lazy flag.
//
// The initial state is loading when a descriptor is given and the query is not lazy,
// and idle otherwise. Mounting subscribes right away in the former case.
//
// Parameters:
//   - opts: WithDescriptor, WithLazy, WithEqual
//
// Returns:
//   - *Query: A mounted query; call Close to release its subscription
//
// Example:
//
//	q := client.Query(livequery.WithDescriptor(livequery.Doc("users", "u1")))
//	defer q.Close()
func (c *Client) Query(opts ...QueryOption) *Query {
	options := &queryOptions{equal: DescriptorsEqual}
	for _, opt := range opts {
		opt(options)
	}
	if options.equal == nil {
		options.equal = DescriptorsEqual
	}

	desc := normalizeDescriptor(options.descriptor)
	id := uuid.NewString()
	q := &Query{
		client:  c,
		id:      id,
		logger:  logging.With(c.logger, "query_id", id),
		equal:   options.equal,
		observe: options.observe,
	}
	q.machine = lifecycle.NewMachine(
		id,
		lifecycle.Initial(desc != nil, options.lazy),
		q.logger,
		c.metrics,
		c.cfg.SubscriberBuffer,
		func(from, to Status) { c.fireStateChanged(id, from, to) },
	)

	q.Update(desc, options.lazy)

	return q
}

// ID returns the query's unique identifier, used in logs and hooks.
func (q *Query) ID() string {
	return q.id
}

// State returns the current lifecycle state.
func (q *Query) State() State {
	return q.machine.State()
}

// Descriptor returns the current stabilized descriptor (nil when none).
func (q *Query) Descriptor() Descriptor {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.desc
}

// Lazy reports the current lazy flag.
func (q *Query) Lazy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.lazy
}

// Subscribe returns a channel receiving state changes, starting with the current state.
//
// A subscriber that falls behind skips intermediate states but always receives the
// latest one. The channel is closed by the returned func or by Close.
//
// Repeated idle or loading states are not delivered: switching descriptors while
// still loading emits no second loading state, and the next state received is the
// new subscription's first snapshot or error.
//
// Returns:
//   - <-chan State: Channel that receives state updates
//   - func(): Unsubscribe function to clean up resources
func (q *Query) Subscribe() (<-chan State, func()) {
	return q.machine.Subscribe()
}

// Wait blocks until the state satisfies pred.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - pred: Predicate over states, evaluated on the current state first
//
// Returns:
//   - State: The first state satisfying pred
//   - error: ctx.Err(), or ErrClosed when the query is closed while waiting
//
// Example:
//
//	state, err := q.Wait(ctx, func(s livequery.State) bool { return !s.IsLoading() })
func (q *Query) Wait(ctx context.Context, pred func(State) bool) (State, error) {
	return waitState(ctx, q.machine, pred)
}

// waitState blocks until m reaches a state satisfying pred.
func waitState(ctx context.Context, m *lifecycle.Machine, pred func(State) bool) (State, error) {
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return m.State(), ctx.Err()
		case state, ok := <-ch:
			if !ok {
				return m.State(), ErrClosed
			}
			if pred(state) {
				return state, nil
			}
		}
	}
}

// Update re-renders the query with a descriptor and lazy flag.
//
// The descriptor is first stabilized: when it is equal to the previous one, the
// previous one is kept and nothing else happens unless lazy changed. Otherwise:
//   - nil descriptor or lazy: the active subscription is torn down and the state resets to idle
//   - else: the active subscription is torn down, the state moves to loading and a new
//     subscription is opened; its snapshots move the state to success, its errors to error
//
// Update after Close is a no-op. Pointer descriptors (*DocumentRef, *CollectionQuery)
// are dereferenced, and a nil pointer counts as no descriptor.
//
// Parameters:
//   - d: Descriptor, or nil for none
//   - lazy: Hold no subscription even when d is set
//
// Returns:
//   - State: The state after the update
func (q *Query) Update(d Descriptor, lazy bool) State {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return q.machine.State()
	}

	d = normalizeDescriptor(d)
	stable, changed := q.memo.CompareChanged(d, q.isEqual)
	if q.mounted && !changed && lazy == q.lazy {
		q.client.metrics.RecordResubscribeSkipped()
		return q.machine.State()
	}

	q.mounted = true
	q.desc = stable
	q.lazy = lazy

	q.teardownLocked()

	if stable == nil || lazy {
		return q.dispatchLocked(lifecycle.Reset())
	}

	return q.subscribeLocked(stable)
}

// Close tears down the subscription. Callbacks arriving afterwards are discarded,
// subscriber channels are closed, and later updates are ignored. Close is idempotent.
func (q *Query) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.teardownLocked()
	q.memo.Reset()
	q.desc = nil
	q.mu.Unlock()

	q.machine.Close()
	q.logger.Debug("query closed")
}

// isEqual adapts the query predicate to possibly-nil descriptors.
func (q *Query) isEqual(previous, current Descriptor) bool {
	if previous == nil || current == nil {
		return previous == nil && current == nil
	}

	return q.equal(previous, current)
}

// teardownLocked ends the current generation and releases its subscription.
// Must be called with q.mu held.
func (q *Query) teardownLocked() {
	q.generation++
	if q.unsubscribe == nil {
		return
	}

	q.unsubscribe()
	q.unsubscribe = nil
	q.client.metrics.RecordUnsubscribe(q.kind)
	q.logger.Debug("unsubscribed", "generation", q.generation-1, "kind", q.kind)
}

// subscribeLocked opens a subscription for d under the current generation.
// Must be called with q.mu held, right after teardownLocked.
func (q *Query) subscribeLocked(d Descriptor) State {
	gen := q.generation
	kind := descriptorKind(d)

	q.dispatchLocked(lifecycle.Start())

	ctx, cancel := context.WithTimeout(q.client.ctx, q.client.cfg.SubscribeTimeout)
	defer cancel()

	unsubscribe, err := q.client.store.Subscribe(ctx, d,
		func(s Snapshot) { q.onData(gen, kind, s) },
		func(err error) { q.onError(gen, err) },
	)
	if err != nil {
		q.client.metrics.RecordSubscribe(kind, false)
		q.logger.Warn("subscribe failed", "descriptor", d.String(), "error", err)
		q.client.fireError(q.id, err)

		return q.dispatchLocked(lifecycle.Fail(fmt.Errorf("subscribe %s: %w", d, err)))
	}

	q.unsubscribe = unsubscribe
	q.kind = kind
	q.client.metrics.RecordSubscribe(kind, true)
	q.logger.Debug("subscribed", "descriptor", d.String(), "generation", gen, "kind", kind)

	return q.machine.State()
}

// dispatchLocked applies ev and hands the result to the observer.
// Must be called with q.mu held.
func (q *Query) dispatchLocked(ev lifecycle.Event) State {
	state := q.machine.Dispatch(ev)
	if q.observe != nil {
		q.observe(q.desc, state)
	}

	return state
}

// current reports whether gen is the live generation. Must be called with q.mu held.
func (q *Query) current(gen uint64) bool {
	return !q.closed && gen == q.generation
}

func (q *Query) onData(gen uint64, kind string, s Snapshot) {
	data := projection.Project(s)

	q.mu.Lock()
	if !q.current(gen) {
		q.mu.Unlock()
		q.client.metrics.RecordStaleCallback()
		q.logger.Debug("discarded stale snapshot", "generation", gen)

		return
	}
	q.dispatchLocked(lifecycle.Data(data))
	q.mu.Unlock()

	q.client.metrics.RecordSnapshot(kind)
}

func (q *Query) onError(gen uint64, err error) {
	q.mu.Lock()
	if !q.current(gen) {
		q.mu.Unlock()
		q.client.metrics.RecordStaleCallback()
		q.logger.Debug("discarded stale error", "generation", gen, "error", err)

		return
	}
	q.dispatchLocked(lifecycle.Fail(err))
	q.mu.Unlock()

	q.logger.Warn("subscription error", "generation", gen, "error", err)
	q.client.fireError(q.id, err)
}

// descriptorKind names a descriptor type for metrics labels.
func descriptorKind(d Descriptor) string {
	switch d.(type) {
	case DocumentRef, *DocumentRef:
		return "document"
	case CollectionQuery, *CollectionQuery:
		return "collection"
	default:
		return "custom"
	}
}

// normalizeDescriptor dereferences the built-in pointer descriptors and maps their
// nil pointers to no descriptor, so stores only see value descriptors.
func normalizeDescriptor(d Descriptor) Descriptor {
	switch v := d.(type) {
	case *DocumentRef:
		if v == nil {
			return nil
		}

		return *v
	case *CollectionQuery:
		if v == nil {
			return nil
		}

		return *v
	default:
		return d
	}
}
