package natskv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/livequery/internal/metrics"
	lqtest "github.com/arloliu/livequery/testing"
	"github.com/arloliu/livequery/types"
)

// recorder collects callbacks delivered by a subscription.
type recorder struct {
	mu    sync.Mutex
	snaps []types.Snapshot
	errs  []error
}

func (r *recorder) onData(s types.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.snaps)
}

func (r *recorder) last() types.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}

	return r.snaps[len(r.snaps)-1]
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]error(nil), r.errs...)
}

type conflictCounter struct {
	*metrics.NopMetrics
	conflicts atomic.Int32
}

func (c *conflictCounter) RecordWriteConflict() {
	c.conflicts.Add(1)
}

func testConfig(bucket string) Config {
	cfg := DefaultConfig()
	cfg.Bucket = bucket
	cfg.Storage = "memory"
	cfg.WriteRetryBackoff = time.Millisecond
	cfg.WriteMaxRetries = 50

	return cfg
}

func newTestStore(t *testing.T, bucket string, opts ...Option) *Store {
	t.Helper()

	_, nc := lqtest.StartEmbeddedNATS(t)
	opts = append([]Option{WithLogger(lqtest.NewTestLogger(t))}, opts...)
	store, err := New(t.Context(), nc, testConfig(bucket), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), nil, DefaultConfig())
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	_, nc := lqtest.StartEmbeddedNATS(t)
	cfg := DefaultConfig()
	cfg.Storage = "tape"
	_, err = New(context.Background(), nc, cfg)
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Replicas = 9
	_, err = New(context.Background(), nc, cfg)
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestSetDefaults(t *testing.T) {
	var cfg Config
	SetDefaults(&cfg)

	def := DefaultConfig()
	require.Equal(t, def.Bucket, cfg.Bucket)
	require.Equal(t, def.Storage, cfg.Storage)
	require.Equal(t, def.Replicas, cfg.Replicas)
	require.Equal(t, def.WriteRetryBackoff, cfg.WriteRetryBackoff)
	require.Equal(t, 0, cfg.WriteMaxRetries, "zero retries is a valid explicit choice")
	require.NoError(t, cfg.Validate())
}

func TestStore_DocumentWatch(t *testing.T) {
	store := newTestStore(t, "doc-watch")
	ctx := t.Context()
	ref := types.Doc("users", "u1")

	rec := &recorder{}
	unsubscribe, err := store.Subscribe(ctx, ref, rec.onData, rec.onError)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	first := rec.last().(types.DocumentSnapshot)
	require.Equal(t, "u1", first.ID)
	require.False(t, first.Exists, "missing document is reported as not existing")

	require.NoError(t, store.Write(ctx, ref, "name", "ada"))
	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	second := rec.last().(types.DocumentSnapshot)
	require.True(t, second.Exists)
	require.Equal(t, map[string]any{"name": "ada"}, second.Fields)

	require.NoError(t, store.Write(ctx, ref, "level", 3))
	require.Eventually(t, func() bool { return rec.count() == 3 }, 2*time.Second, 10*time.Millisecond)
	third := rec.last().(types.DocumentSnapshot)
	require.Equal(t, map[string]any{"name": "ada", "level": float64(3)}, third.Fields, "write merges fields")

	require.NoError(t, store.Delete(ctx, ref))
	require.Eventually(t, func() bool { return rec.count() == 4 }, 2*time.Second, 10*time.Millisecond)
	require.False(t, rec.last().(types.DocumentSnapshot).Exists)
	require.Empty(t, rec.errors())
}

func TestStore_DocumentWatchExisting(t *testing.T) {
	store := newTestStore(t, "doc-existing")
	ctx := t.Context()
	ref := types.Doc("users", "u1")
	require.NoError(t, store.Write(ctx, ref, "name", "ada"))

	rec := &recorder{}
	unsubscribe, err := store.Subscribe(ctx, ref, rec.onData, rec.onError)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	snap := rec.last().(types.DocumentSnapshot)
	require.True(t, snap.Exists)
	require.Equal(t, "ada", snap.Fields["name"])

	// no duplicate delivery of the replayed value
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, rec.count())
}

func TestStore_CollectionWatch(t *testing.T) {
	store := newTestStore(t, "collection-watch")
	ctx := t.Context()

	require.NoError(t, store.Write(ctx, types.Doc("items", "b"), "type", "a"))
	require.NoError(t, store.Write(ctx, types.Doc("items", "a"), "type", "a"))
	require.NoError(t, store.Write(ctx, types.Doc("items", "c"), "type", "b"))
	require.NoError(t, store.Write(ctx, types.Doc("other", "x"), "type", "a"))

	q := types.Collection("items").Where("type", types.OpEqual, "a")
	rec := &recorder{}
	unsubscribe, err := store.Subscribe(ctx, q, rec.onData, rec.onError)
	require.NoError(t, err)
	defer unsubscribe()

	docIDs := func(s types.Snapshot) []string {
		var out []string
		for _, d := range s.(types.CollectionSnapshot).Docs {
			out = append(out, fmt.Sprintf("%s:%t", d.ID, d.Exists))
		}

		return out
	}

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"a:true", "b:true"}, docIDs(rec.last()))

	// a change outside the result set is not delivered
	require.NoError(t, store.Write(ctx, types.Doc("items", "c"), "n", 1))
	require.NoError(t, store.Write(ctx, types.Doc("items", "d"), "type", "a"))
	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"a:true", "b:true", "d:true"}, docIDs(rec.last()))

	require.NoError(t, store.Delete(ctx, types.Doc("items", "a")))
	require.Eventually(t, func() bool { return rec.count() == 3 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"b:true", "d:true", "a:false"}, docIDs(rec.last()))
	require.Empty(t, rec.errors())
}

func TestStore_CollectionLimit(t *testing.T) {
	store := newTestStore(t, "collection-limit")
	ctx := t.Context()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.Write(ctx, types.Doc("items", id), "n", 1))
	}

	rec := &recorder{}
	unsubscribe, err := store.Subscribe(ctx, types.Collection("items").WithLimit(2), rec.onData, rec.onError)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	docs := rec.last().(types.CollectionSnapshot).Docs
	require.Len(t, docs, 2)
	require.Equal(t, "a", docs[0].ID)
	require.Equal(t, "b", docs[1].ID)
}

func TestStore_DecodeError(t *testing.T) {
	store := newTestStore(t, "decode-error")
	ctx := t.Context()

	_, err := store.kv.Put(ctx, "users.bad", []byte("not json"))
	require.NoError(t, err)

	rec := &recorder{}
	unsubscribe, err := store.Subscribe(ctx, types.Doc("users", "bad"), rec.onData, rec.onError)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { return len(rec.errors()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, rec.errors()[0], types.ErrDecodeFailed)

	_, err = store.Get(ctx, types.Doc("users", "bad"))
	require.ErrorIs(t, err, types.ErrDecodeFailed)

	err = store.Write(ctx, types.Doc("users", "bad"), "n", 1)
	require.ErrorIs(t, err, types.ErrWriteFailed)
	require.ErrorIs(t, err, types.ErrDecodeFailed)
}

func TestStore_Unsubscribe(t *testing.T) {
	store := newTestStore(t, "unsubscribe")
	ctx := t.Context()
	ref := types.Doc("users", "u1")

	rec := &recorder{}
	unsubscribe, err := store.Subscribe(ctx, ref, rec.onData, rec.onError)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, store.ActiveWatches())

	unsubscribe()
	unsubscribe()
	require.Equal(t, 0, store.ActiveWatches())

	require.NoError(t, store.Write(ctx, ref, "name", "ada"))
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, rec.count(), "no delivery after unsubscribe")
}

func TestStore_SubscribeValidation(t *testing.T) {
	store := newTestStore(t, "validation")
	ctx := t.Context()
	noop := func(types.Snapshot) {}
	noErr := func(error) {}

	tests := []struct {
		name string
		desc types.Descriptor
		want error
	}{
		{"nil descriptor", nil, types.ErrInvalidDescriptor},
		{"empty id", types.Doc("users", ""), types.ErrInvalidDescriptor},
		{"dotted id", types.Doc("users", "a.b"), types.ErrInvalidDescriptor},
		{"wildcard collection", types.Collection("items*"), types.ErrInvalidDescriptor},
		{"negative limit", types.Collection("items").WithLimit(-1), types.ErrInvalidDescriptor},
		{"pointer descriptor", &types.DocumentRef{Collection: "users", ID: "u1"}, types.ErrUnsupportedDescriptor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Subscribe(ctx, tt.desc, noop, noErr)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStore_SubscribeCancelledContext(t *testing.T) {
	store := newTestStore(t, "cancelled")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := store.Subscribe(ctx, types.Doc("users", "u1"), func(types.Snapshot) {}, func(error) {})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, store.ActiveWatches())
}

func TestStore_ConcurrentWritesMerge(t *testing.T) {
	counter := &conflictCounter{NopMetrics: metrics.NewNop()}
	store := newTestStore(t, "concurrent-writes", WithMetrics(counter), WithRetrySeed(7))
	ctx := t.Context()
	ref := types.Doc("users", "u1")

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Go(func() {
			errs <- store.Write(ctx, ref, fmt.Sprintf("f%d", i), i)
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap, err := store.Get(ctx, ref)
	require.NoError(t, err)
	require.True(t, snap.Exists)
	require.Len(t, snap.Fields, writers, "every field survives concurrent merges")
	t.Logf("write conflicts retried: %d", counter.conflicts.Load())
}

func TestStore_WriteValidation(t *testing.T) {
	store := newTestStore(t, "write-validation")
	ctx := t.Context()

	require.ErrorIs(t, store.Write(ctx, types.Doc("users", ""), "f", 1), types.ErrWriteFailed)
	require.ErrorIs(t, store.Write(ctx, types.Doc("users", "u1"), "", 1), types.ErrWriteFailed)
	require.ErrorIs(t, store.Write(ctx, types.Doc("users", "u1"), "f", make(chan int)), types.ErrWriteFailed)
}

func TestStore_Get(t *testing.T) {
	store := newTestStore(t, "get")
	ctx := t.Context()

	snap, err := store.Get(ctx, types.Doc("users", "missing"))
	require.NoError(t, err)
	require.False(t, snap.Exists)

	require.NoError(t, store.Write(ctx, types.Doc("users", "u1"), "name", "ada"))
	snap, err = store.Get(ctx, types.Doc("users", "u1"))
	require.NoError(t, err)
	require.Equal(t, "ada", snap.Fields["name"])
}

func TestStore_Close(t *testing.T) {
	store := newTestStore(t, "close")
	ctx := t.Context()

	rec := &recorder{}
	_, err := store.Subscribe(ctx, types.Doc("users", "u1"), rec.onData, rec.onError)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	require.Equal(t, 0, store.ActiveWatches())
	require.Empty(t, rec.errors(), "closing the store is not a transport error")

	_, err = store.Subscribe(ctx, types.Doc("users", "u1"), rec.onData, rec.onError)
	require.ErrorIs(t, err, types.ErrClosed)
}

func TestStore_BucketConfig(t *testing.T) {
	cfg := testConfig("cfg")
	cfg.TTL = time.Minute
	kvCfg := cfg.bucketConfig()

	require.Equal(t, "cfg", kvCfg.Bucket)
	require.Equal(t, jetstream.MemoryStorage, kvCfg.Storage)
	require.Equal(t, time.Minute, kvCfg.TTL)
	require.Equal(t, uint8(1), kvCfg.History)
}
