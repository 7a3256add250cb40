package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/livequery/internal/docset"
	"github.com/arloliu/livequery/internal/kvutil"
	"github.com/arloliu/livequery/internal/natsutil"
	"github.com/arloliu/livequery/types"
)

// Store is a types.Store backed by a JetStream KeyValue bucket.
type Store struct {
	kv      jetstream.KeyValue
	cfg     Config
	logger  types.Logger
	metrics types.WriteMetrics
	seed    int64

	ctx    context.Context
	cancel context.CancelFunc

	watches *xsync.Map[uint64, *watch]
	nextID  atomic.Uint64
	closed  atomic.Bool
}

var _ types.Store = (*Store)(nil)

// New opens (creating when missing) the configured bucket and returns a Store on it.
//
// Parameters:
//   - ctx: Context bounding bucket setup
//   - nc: Connected NATS client
//   - cfg: Bucket and retry configuration (zero fields take defaults)
//   - opts: Optional logger and metrics
//
// Returns:
//   - *Store: Ready store
//   - error: ErrInvalidConfig, or a bucket setup failure
func New(ctx context.Context, nc *nats.Conn, cfg Config, opts ...Option) (*Store, error) {
	if nc == nil {
		return nil, fmt.Errorf("%w: nats connection is nil", types.ErrInvalidConfig)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", natsutil.Classify(err))
	}

	kv, err := kvutil.EnsureBucket(ctx, js, cfg.bucketConfig(), cfg.EnsureRetries)
	if err != nil {
		return nil, natsutil.Classify(err)
	}

	return NewFromKV(kv, cfg, opts...), nil
}

// NewFromKV wraps an already opened bucket.
func NewFromKV(kv jetstream.KeyValue, cfg Config, opts ...Option) *Store {
	SetDefaults(&cfg)

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Store{
		kv:      kv,
		cfg:     cfg,
		logger:  o.logger,
		metrics: o.metrics,
		seed:    o.seed,
		ctx:     ctx,
		cancel:  cancel,
		watches: xsync.NewMap[uint64, *watch](),
	}
}

// Bucket returns the name of the underlying bucket.
func (s *Store) Bucket() string {
	return s.kv.Bucket()
}

// Subscribe starts a KV watcher for d. See types.Store.
func (s *Store) Subscribe(
	ctx context.Context,
	d types.Descriptor,
	onData func(types.Snapshot),
	onError func(error),
) (types.Unsubscribe, error) {
	if s.closed.Load() {
		return nil, types.ErrClosed
	}

	var (
		pattern string
		handler func(w *watch)
	)

	switch desc := d.(type) {
	case types.DocumentRef:
		key, err := documentKey(desc)
		if err != nil {
			return nil, err
		}
		pattern = key
		handler = func(w *watch) { w.runDocument(desc.ID) }
	case types.CollectionQuery:
		if err := desc.Validate(); err != nil {
			return nil, err
		}
		if err := validToken("collection", desc.Collection); err != nil {
			return nil, err
		}
		pattern = desc.Collection + ".*"
		handler = func(w *watch) { w.runCollection(desc) }
	case nil:
		return nil, fmt.Errorf("%w: nil descriptor", types.ErrInvalidDescriptor)
	default:
		return nil, fmt.Errorf("%w: %T", types.ErrUnsupportedDescriptor, d)
	}

	// The watcher lives on the store context; ctx only bounds establishment.
	wctx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	kw, err := s.kv.Watch(wctx, pattern)
	if !stop() {
		if err == nil {
			_ = kw.Stop()
		}

		return nil, natsutil.Classify(ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", pattern, natsutil.Classify(err))
	}

	w := &watch{
		id:      s.nextID.Add(1),
		store:   s,
		pattern: pattern,
		watcher: kw,
		ctx:     wctx,
		cancel:  cancel,
		onData:  onData,
		onError: onError,
	}
	s.watches.Store(w.id, w)

	s.logger.Debug("watch started", "pattern", pattern, "watch_id", w.id)
	go handler(w)

	return w.stop, nil
}

// Write merges field=value into the document at ref, creating it when missing.
//
// Concurrent writers are serialized by revision checks; a conflicting write is
// retried up to WriteMaxRetries times with jittered backoff.
func (s *Store) Write(ctx context.Context, ref types.DocumentRef, field string, value any) error {
	key, err := documentKey(ref)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrWriteFailed, err)
	}
	if field == "" {
		return fmt.Errorf("%w: empty field name", types.ErrWriteFailed)
	}
	if _, err := json.Marshal(value); err != nil {
		return fmt.Errorf("%w: encode %s.%s: %w", types.ErrWriteFailed, ref, field, err)
	}

	backoff := kvutil.NewBackoff(s.cfg.WriteRetryBackoff, 2.0, 16*s.cfg.WriteRetryBackoff, s.seed)
	for attempt := 0; ; attempt++ {
		err := s.mergeField(ctx, key, field, value)
		if err == nil {
			return nil
		}
		if !kvutil.IsConflict(err) {
			return fmt.Errorf("%w: %s.%s: %w", types.ErrWriteFailed, ref, field, natsutil.Classify(err))
		}

		s.metrics.RecordWriteConflict()
		if attempt >= s.cfg.WriteMaxRetries {
			return fmt.Errorf("%w: %s.%s: %d conflicting retries: %w",
				types.ErrWriteFailed, ref, field, attempt, err)
		}

		s.logger.Debug("write conflict, retrying", "key", key, "field", field, "attempt", attempt+1)
		if err := backoff.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s.%s: %w", types.ErrWriteFailed, ref, field, natsutil.Classify(err))
		}
	}
}

// Delete removes the document at ref. Watchers observe the deletion.
func (s *Store) Delete(ctx context.Context, ref types.DocumentRef) error {
	key, err := documentKey(ref)
	if err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", ref, natsutil.Classify(err))
	}

	return nil
}

// Get reads the current content of the document at ref.
//
// Returns:
//   - types.DocumentSnapshot: Exists is false when the document is missing
//   - error: Transport or decode failure
func (s *Store) Get(ctx context.Context, ref types.DocumentRef) (types.DocumentSnapshot, error) {
	key, err := documentKey(ref)
	if err != nil {
		return types.DocumentSnapshot{}, err
	}

	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return types.DocumentSnapshot{ID: ref.ID}, nil
	}
	if err != nil {
		return types.DocumentSnapshot{}, fmt.Errorf("get %s: %w", ref, natsutil.Classify(err))
	}

	fields, err := decodeFields(entry.Value())
	if err != nil {
		return types.DocumentSnapshot{}, fmt.Errorf("get %s: %w", ref, err)
	}

	return types.DocumentSnapshot{ID: ref.ID, Exists: true, Fields: fields}, nil
}

// ActiveWatches returns the number of running watchers.
func (s *Store) ActiveWatches() int {
	return s.watches.Size()
}

// Close stops every watcher. Further Subscribe calls fail with ErrClosed.
// The bucket and the NATS connection are left open.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.watches.Range(func(_ uint64, w *watch) bool {
		w.stop()
		return true
	})
	s.cancel()

	return nil
}

func (s *Store) mergeField(ctx context.Context, key, field string, value any) error {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		data, err := json.Marshal(map[string]any{field: value})
		if err != nil {
			return err
		}
		_, err = s.kv.Create(ctx, key, data)

		return err
	}
	if err != nil {
		return err
	}

	fields, err := decodeFields(entry.Value())
	if err != nil {
		return err
	}
	fields = maps.Clone(fields)
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields[field] = value

	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = s.kv.Update(ctx, key, data, entry.Revision())

	return err
}

// watch is one running KV watcher.
type watch struct {
	id      uint64
	store   *Store
	pattern string
	watcher jetstream.KeyWatcher
	ctx     context.Context
	cancel  context.CancelFunc

	onData  func(types.Snapshot)
	onError func(error)

	stopOnce sync.Once
	stopped  atomic.Bool
}

// stop tears the watcher down without waiting for the event goroutine.
func (w *watch) stop() {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		w.cancel()
		if err := w.watcher.Stop(); err != nil {
			w.store.logger.Warn("failed to stop watcher", "pattern", w.pattern, "error", err)
		}
		w.store.watches.Delete(w.id)
		w.store.logger.Debug("watch stopped", "pattern", w.pattern, "watch_id", w.id)
	})
}

func (w *watch) deliver(snap types.Snapshot) {
	if !w.stopped.Load() {
		w.onData(snap)
	}
}

func (w *watch) fail(err error) {
	if !w.stopped.Load() {
		w.onError(err)
	}
}

// ended reports a watcher that stopped without an unsubscribe.
func (w *watch) ended() {
	if w.stopped.Load() {
		return
	}
	w.fail(fmt.Errorf("%w: watcher for %s ended", types.ErrConnectivity, w.pattern))
	w.stop()
}

func (w *watch) runDocument(id string) {
	var (
		current  types.DocumentSnapshot
		replayed bool
	)
	current.ID = id

	for {
		select {
		case <-w.ctx.Done():
			return
		case entry, ok := <-w.watcher.Updates():
			if !ok {
				w.ended()
				return
			}

			// nil marks the end of the initial replay
			if entry == nil {
				if !replayed {
					replayed = true
					w.deliver(current)
				}

				continue
			}

			next, err := documentFromEntry(id, entry)
			if err != nil {
				w.fail(err)
				continue
			}
			current = next
			if replayed {
				w.deliver(current)
			}
		}
	}
}

func (w *watch) runCollection(q types.CollectionQuery) {
	view := docset.New(q)
	replayed := false

	for {
		select {
		case <-w.ctx.Done():
			return
		case entry, ok := <-w.watcher.Updates():
			if !ok {
				w.ended()
				return
			}

			if entry == nil {
				if !replayed {
					replayed = true
					w.deliver(view.Snapshot())
				}

				continue
			}

			id := strings.TrimPrefix(entry.Key(), q.Collection+".")
			doc, err := documentFromEntry(id, entry)
			if err != nil {
				w.fail(err)
				continue
			}

			if !replayed {
				if doc.Exists {
					view.Load(id, doc.Fields)
				}

				continue
			}

			if snap, changed := view.Apply(id, doc.Fields); changed {
				w.deliver(snap)
			}
		}
	}
}

func documentFromEntry(id string, entry jetstream.KeyValueEntry) (types.DocumentSnapshot, error) {
	switch entry.Operation() {
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		return types.DocumentSnapshot{ID: id}, nil
	}

	fields, err := decodeFields(entry.Value())
	if err != nil {
		return types.DocumentSnapshot{}, fmt.Errorf("key %s revision %d: %w", entry.Key(), entry.Revision(), err)
	}

	return types.DocumentSnapshot{ID: id, Exists: true, Fields: fields}, nil
}

func decodeFields(data []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if len(data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDecodeFailed, err)
	}

	return fields, nil
}

func documentKey(ref types.DocumentRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if err := validToken("collection", ref.Collection); err != nil {
		return "", err
	}
	if err := validToken("id", ref.ID); err != nil {
		return "", err
	}

	return ref.Collection + "." + ref.ID, nil
}

// validToken enforces the KV key alphabet minus the "." separator.
func validToken(name, s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty %s", types.ErrInvalidDescriptor, name)
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '=', r == '/':
		default:
			return fmt.Errorf("%w: %s %q contains %q", types.ErrInvalidDescriptor, name, s, r)
		}
	}

	return nil
}
