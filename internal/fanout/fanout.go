// Package fanout delivers a stream of values to any number of channel subscribers.
package fanout

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// DefaultBuffer is the subscriber channel buffer used when none is configured.
const DefaultBuffer = 4

// Fanout publishes values to buffered subscriber channels without blocking.
//
// A subscriber that falls behind loses its oldest queued values, never the newest,
// so it always ends up observing the latest published value.
//
// Publish is safe for concurrent use, but callers that need subscribers to observe
// values in a particular order must serialize their Publish calls.
type Fanout[T any] struct {
	mu     sync.RWMutex
	closed bool

	subscribers *xsync.Map[uint64, *subscriber[T]]
	nextID      atomic.Uint64
	bufferSize  int
	onDrop      func()
}

// New creates a Fanout.
//
// Parameters:
//   - bufferSize: Channel buffer per subscriber (DefaultBuffer if <= 0)
//   - onDrop: Optional callback invoked for every value discarded for a slow subscriber
//
// Returns:
//   - *Fanout[T]: A new fan-out with no subscribers
func New[T any](bufferSize int, onDrop func()) *Fanout[T] {
	if bufferSize <= 0 {
		bufferSize = DefaultBuffer
	}
	if onDrop == nil {
		onDrop = func() {}
	}

	return &Fanout[T]{
		subscribers: xsync.NewMap[uint64, *subscriber[T]](),
		bufferSize:  bufferSize,
		onDrop:      onDrop,
	}
}

// Subscribe registers a subscriber whose channel first receives initial.
//
// After Close, the returned channel is already closed.
//
// Returns:
//   - <-chan T: Channel that receives published values
//   - func(): Unsubscribe function; closes the channel and is safe to call twice
func (f *Fanout[T]) Subscribe(initial T) (<-chan T, func()) {
	id := f.nextID.Add(1)
	sub := &subscriber[T]{ch: make(chan T, f.bufferSize)}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		sub.close()
		return sub.ch, func() {}
	}
	f.subscribers.Store(id, sub)
	sub.trySend(initial, f.onDrop)

	return sub.ch, func() { f.remove(id) }
}

// Publish delivers v to every current subscriber. It is a no-op after Close.
func (f *Fanout[T]) Publish(v T) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return
	}
	f.subscribers.Range(func(_ uint64, sub *subscriber[T]) bool {
		sub.trySend(v, f.onDrop)
		return true
	})
}

// Len returns the number of active subscribers.
func (f *Fanout[T]) Len() int {
	return f.subscribers.Size()
}

// Close closes every subscriber channel. Close is idempotent.
func (f *Fanout[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.subscribers.Range(func(id uint64, _ *subscriber[T]) bool {
		f.remove(id)
		return true
	})
}

func (f *Fanout[T]) remove(id uint64) {
	if sub, ok := f.subscribers.LoadAndDelete(id); ok {
		sub.close()
	}
}

// subscriber owns one buffered channel.
type subscriber[T any] struct {
	ch     chan T
	mu     sync.Mutex
	closed bool
}

// trySend delivers v without blocking, discarding the oldest queued value when full.
func (s *subscriber[T]) trySend(v T, onDrop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- v:
		return
	default:
	}

	select {
	case <-s.ch:
		onDrop()
	default:
	}

	select {
	case s.ch <- v:
	default:
		onDrop()
	}
}

// close safely closes the subscriber's channel.
func (s *subscriber[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
