package testing

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/livequery/types"
)

// FakeSubscription is one subscription opened on a FakeStore.
type FakeSubscription struct {
	Descriptor types.Descriptor

	onData  func(types.Snapshot)
	onError func(error)
	closed  atomic.Bool
}

// Emit delivers a snapshot to the subscriber, even after teardown, so tests can
// simulate callbacks racing with unsubscribe.
func (s *FakeSubscription) Emit(snap types.Snapshot) {
	s.onData(snap)
}

// Fail delivers a transport error to the subscriber, even after teardown.
func (s *FakeSubscription) Fail(err error) {
	s.onError(err)
}

// Closed reports whether the subscription has been torn down.
func (s *FakeSubscription) Closed() bool {
	return s.closed.Load()
}

// FakeWrite is a write recorded by a FakeStore.
type FakeWrite struct {
	Ref   types.DocumentRef
	Field string
	Value any
}

// FakeStore is a types.Store whose subscriptions are driven by the test.
//
// It never produces data on its own: tests push snapshots through the
// FakeSubscription returned by Last or Subscriptions.
type FakeStore struct {
	mu            sync.Mutex
	subs          []*FakeSubscription
	writes        []FakeWrite
	subscribeErr  error
	writeFn       func(ctx context.Context, w FakeWrite) error
	unsubscribes  atomic.Int32
	subscribeCall atomic.Int32
}

var _ types.Store = (*FakeStore)(nil)

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

// Subscribe records the subscription and returns its teardown.
func (f *FakeStore) Subscribe(
	_ context.Context,
	d types.Descriptor,
	onData func(types.Snapshot),
	onError func(error),
) (types.Unsubscribe, error) {
	f.subscribeCall.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribeErr != nil {
		err := f.subscribeErr
		f.subscribeErr = nil

		return nil, err
	}

	sub := &FakeSubscription{Descriptor: d, onData: onData, onError: onError}
	f.subs = append(f.subs, sub)

	return func() {
		if sub.closed.CompareAndSwap(false, true) {
			f.unsubscribes.Add(1)
		}
	}, nil
}

// Write records the write and returns the result of the configured write func.
func (f *FakeStore) Write(ctx context.Context, ref types.DocumentRef, field string, value any) error {
	w := FakeWrite{Ref: ref, Field: field, Value: value}

	f.mu.Lock()
	f.writes = append(f.writes, w)
	fn := f.writeFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, w)
	}

	return nil
}

// FailNextSubscribe makes the next Subscribe call return err synchronously.
func (f *FakeStore) FailNextSubscribe(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeErr = err
}

// SetWriteFunc installs a function deciding the outcome of every Write.
func (f *FakeStore) SetWriteFunc(fn func(ctx context.Context, w FakeWrite) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeFn = fn
}

// Subscriptions returns every subscription opened so far, in order.
func (f *FakeStore) Subscriptions() []*FakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*FakeSubscription, len(f.subs))
	copy(out, f.subs)

	return out
}

// Last returns the most recent subscription, or nil.
func (f *FakeStore) Last() *FakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.subs) == 0 {
		return nil
	}

	return f.subs[len(f.subs)-1]
}

// Active returns the number of subscriptions not yet torn down.
func (f *FakeStore) Active() int {
	n := 0
	for _, s := range f.Subscriptions() {
		if !s.Closed() {
			n++
		}
	}

	return n
}

// SubscribeCalls returns how many times Subscribe was called, including failed calls.
func (f *FakeStore) SubscribeCalls() int {
	return int(f.subscribeCall.Load())
}

// Unsubscribes returns how many subscriptions have been torn down.
func (f *FakeStore) Unsubscribes() int {
	return int(f.unsubscribes.Load())
}

// Writes returns every recorded write, in order.
func (f *FakeStore) Writes() []FakeWrite {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]FakeWrite, len(f.writes))
	copy(out, f.writes)

	return out
}
