// Package memstore implements an in-process live document store.
//
// It keeps documents in memory and pushes snapshots to subscribers exactly like a
// remote store would: asynchronously, in change order, with values normalized
// through JSON. It backs demos, tests and single-process deployments.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/arloliu/livequery/internal/docset"
	"github.com/arloliu/livequery/internal/logging"
	"github.com/arloliu/livequery/types"
)

// Store is an in-memory types.Store. All methods are safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	docs   map[string]map[string]map[string]any // collection -> id -> fields
	subs   map[uint64]*subscription
	nextID uint64
	closed bool

	logger types.Logger
}

var _ types.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger types.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		docs:   make(map[string]map[string]map[string]any),
		subs:   make(map[uint64]*subscription),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Subscribe registers a listener and queues the current content as its first snapshot.
func (s *Store) Subscribe(
	_ context.Context,
	d types.Descriptor,
	onData func(types.Snapshot),
	onError func(error),
) (types.Unsubscribe, error) {
	sub := &subscription{
		onData:  onData,
		onError: onError,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	switch desc := d.(type) {
	case types.DocumentRef:
		if err := desc.Validate(); err != nil {
			return nil, err
		}
		sub.ref = &desc
	case types.CollectionQuery:
		if err := desc.Validate(); err != nil {
			return nil, err
		}
		sub.view = docset.New(desc)
		sub.collection = desc.Collection
	case nil:
		return nil, fmt.Errorf("%w: nil descriptor", types.ErrInvalidDescriptor)
	default:
		return nil, fmt.Errorf("%w: %T", types.ErrUnsupportedDescriptor, d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.ErrClosed
	}

	s.nextID++
	sub.id = s.nextID
	s.subs[sub.id] = sub

	if sub.ref != nil {
		sub.push(s.documentLocked(*sub.ref))
	} else {
		for id, fields := range s.docs[sub.collection] {
			sub.view.Load(id, fields)
		}
		sub.push(sub.view.Snapshot())
	}

	go sub.run()
	s.logger.Debug("memstore subscription added", "descriptor", d.String(), "subscription", sub.id)

	return func() { s.unsubscribe(sub.id) }, nil
}

// Write merges field=value into the document at ref, creating it when missing.
func (s *Store) Write(_ context.Context, ref types.DocumentRef, field string, value any) error {
	if err := ref.Validate(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrWriteFailed, err)
	}
	if field == "" {
		return fmt.Errorf("%w: empty field name", types.ErrWriteFailed)
	}

	normalized, err := normalize(value)
	if err != nil {
		return fmt.Errorf("%w: encode %s.%s: %w", types.ErrWriteFailed, ref, field, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: %w", types.ErrWriteFailed, types.ErrClosed)
	}

	coll := s.docs[ref.Collection]
	if coll == nil {
		coll = make(map[string]map[string]any)
		s.docs[ref.Collection] = coll
	}

	// documents are replaced, never mutated, so snapshots may share them
	fields := maps.Clone(coll[ref.ID])
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields[field] = normalized
	coll[ref.ID] = fields

	s.notifyLocked(ref, fields)

	return nil
}

// Delete removes the document at ref. Deleting a missing document is a no-op.
func (s *Store) Delete(_ context.Context, ref types.DocumentRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[ref.Collection][ref.ID]; !ok {
		return nil
	}
	delete(s.docs[ref.Collection], ref.ID)
	s.notifyLocked(ref, nil)

	return nil
}

// Get returns the current content of the document at ref.
func (s *Store) Get(_ context.Context, ref types.DocumentRef) (types.DocumentSnapshot, error) {
	if err := ref.Validate(); err != nil {
		return types.DocumentSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.documentLocked(ref), nil
}

// Fail delivers err to every active subscription, simulating a transport failure.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		sub.push(err)
	}
}

// Subscriptions returns the number of active subscriptions.
func (s *Store) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.subs)
}

// Close drops every subscription. Later Subscribe and Write calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for id, sub := range s.subs {
		sub.close()
		delete(s.subs, id)
	}

	return nil
}

func (s *Store) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subs[id]; ok {
		sub.close()
		delete(s.subs, id)
	}
}

func (s *Store) documentLocked(ref types.DocumentRef) types.DocumentSnapshot {
	fields, ok := s.docs[ref.Collection][ref.ID]
	if !ok {
		return types.DocumentSnapshot{ID: ref.ID}
	}

	return types.DocumentSnapshot{ID: ref.ID, Exists: true, Fields: maps.Clone(fields)}
}

// notifyLocked queues the change of ref for every interested subscription.
// fields is nil for a deletion.
func (s *Store) notifyLocked(ref types.DocumentRef, fields map[string]any) {
	for _, sub := range s.subs {
		switch {
		case sub.ref != nil && *sub.ref == ref:
			sub.push(s.documentLocked(ref))
		case sub.view != nil && sub.collection == ref.Collection:
			if snap, changed := sub.view.Apply(ref.ID, fields); changed {
				sub.push(snap)
			}
		}
	}
}

// normalize round-trips v through JSON so stored values have the same shapes
// a remote store would return.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// subscription delivers queued events on its own goroutine, in order.
type subscription struct {
	id         uint64
	ref        *types.DocumentRef
	collection string
	view       *docset.View

	onData  func(types.Snapshot)
	onError func(error)

	mu      sync.Mutex
	pending []any // types.Snapshot or error
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func (s *subscription) push(ev any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.pending = nil
	close(s.done)
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if s.closed || len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			switch v := ev.(type) {
			case error:
				s.onError(v)
			case types.Snapshot:
				s.onData(v)
			}
		}
	}
}
