package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/livequery/types"
)

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

func (r *recorder) snapshots() []types.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]types.Snapshot(nil), r.snaps...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]error(nil), r.errs...)
}

func TestStore_DocumentSubscription(t *testing.T) {
	s := New()
	ctx := context.Background()
	ref := types.Doc("users", "u1")

	rec := &recorder{}
	unsubscribe, err := s.Subscribe(ctx, ref, rec.onData, rec.onError)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { return len(rec.snapshots()) == 1 }, time.Second, 5*time.Millisecond)
	require.False(t, rec.snapshots()[0].(types.DocumentSnapshot).Exists)

	require.NoError(t, s.Write(ctx, ref, "name", "ada"))
	require.NoError(t, s.Write(ctx, ref, "level", 2))
	require.NoError(t, s.Delete(ctx, ref))

	require.Eventually(t, func() bool { return len(rec.snapshots()) == 4 }, time.Second, 5*time.Millisecond)
	snaps := rec.snapshots()
	require.Equal(t, map[string]any{"name": "ada"}, snaps[1].(types.DocumentSnapshot).Fields)
	require.Equal(t, map[string]any{"name": "ada", "level": float64(2)}, snaps[2].(types.DocumentSnapshot).Fields)
	require.False(t, snaps[3].(types.DocumentSnapshot).Exists)
}

func TestStore_OtherDocumentsIgnored(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := &recorder{}
	unsubscribe, err := s.Subscribe(ctx, types.Doc("users", "u1"), rec.onData, rec.onError)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, s.Write(ctx, types.Doc("users", "u2"), "name", "bob"))
	require.NoError(t, s.Write(ctx, types.Doc("teams", "u1"), "name", "red"))

	time.Sleep(30 * time.Millisecond)
	require.Len(t, rec.snapshots(), 1)
}

func TestStore_CollectionSubscription(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, types.Doc("items", "b"), "type", "a"))
	require.NoError(t, s.Write(ctx, types.Doc("items", "a"), "type", "a"))
	require.NoError(t, s.Write(ctx, types.Doc("items", "c"), "type", "b"))

	rec := &recorder{}
	q := types.Collection("items").Where("type", types.OpEqual, "a")
	unsubscribe, err := s.Subscribe(ctx, q, rec.onData, rec.onError)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, s.Write(ctx, types.Doc("items", "c"), "n", 1))
	require.NoError(t, s.Delete(ctx, types.Doc("items", "b")))

	require.Eventually(t, func() bool { return len(rec.snapshots()) == 2 }, time.Second, 5*time.Millisecond)
	snaps := rec.snapshots()

	initial := snaps[0].(types.CollectionSnapshot).Docs
	require.Len(t, initial, 2)
	require.Equal(t, "a", initial[0].ID)
	require.Equal(t, "b", initial[1].ID)

	after := snaps[1].(types.CollectionSnapshot).Docs
	require.Len(t, after, 2)
	require.Equal(t, "a", after[0].ID)
	require.Equal(t, "b", after[1].ID)
	require.False(t, after[1].Exists)
}

func TestStore_SnapshotsAreIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()
	ref := types.Doc("users", "u1")
	require.NoError(t, s.Write(ctx, ref, "tags", []string{"x"}))

	snap, err := s.Get(ctx, ref)
	require.NoError(t, err)
	snap.Fields["tags"] = "mutated"

	again, err := s.Get(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, []any{"x"}, again.Fields["tags"])
}

func TestStore_Unsubscribe(t *testing.T) {
	s := New()
	ctx := context.Background()
	ref := types.Doc("users", "u1")

	rec := &recorder{}
	unsubscribe, err := s.Subscribe(ctx, ref, rec.onData, rec.onError)
	require.NoError(t, err)
	require.Equal(t, 1, s.Subscriptions())
	require.Eventually(t, func() bool { return len(rec.snapshots()) == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	require.Equal(t, 0, s.Subscriptions())

	require.NoError(t, s.Write(ctx, ref, "name", "ada"))
	time.Sleep(30 * time.Millisecond)
	require.Len(t, rec.snapshots(), 1)
}

func TestStore_CallbacksOffCallerGoroutine(t *testing.T) {
	s := New()
	var mu sync.Mutex

	delivered := make(chan struct{})
	onData := func(types.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		close(delivered)
	}

	// holding a lock across Subscribe must not deadlock
	mu.Lock()
	unsubscribe, err := s.Subscribe(context.Background(), types.Doc("users", "u1"), onData, func(error) {})
	mu.Unlock()
	require.NoError(t, err)
	defer unsubscribe()

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("initial snapshot not delivered")
	}
}

func TestStore_Fail(t *testing.T) {
	s := New()
	rec := &recorder{}
	unsubscribe, err := s.Subscribe(context.Background(), types.Doc("users", "u1"), rec.onData, rec.onError)
	require.NoError(t, err)
	defer unsubscribe()

	boom := errors.New("connection reset")
	s.Fail(boom)

	require.Eventually(t, func() bool { return len(rec.errors()) == 1 }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, rec.errors()[0], boom)
}

func TestStore_Validation(t *testing.T) {
	s := New()
	ctx := context.Background()
	noop := func(types.Snapshot) {}
	noErr := func(error) {}

	_, err := s.Subscribe(ctx, nil, noop, noErr)
	require.ErrorIs(t, err, types.ErrInvalidDescriptor)

	_, err = s.Subscribe(ctx, types.Doc("", "u1"), noop, noErr)
	require.ErrorIs(t, err, types.ErrInvalidDescriptor)

	_, err = s.Subscribe(ctx, &types.CollectionQuery{Collection: "items"}, noop, noErr)
	require.ErrorIs(t, err, types.ErrUnsupportedDescriptor)

	require.ErrorIs(t, s.Write(ctx, types.Doc("users", "u1"), "", 1), types.ErrWriteFailed)
	require.ErrorIs(t, s.Write(ctx, types.Doc("users", "u1"), "f", func() {}), types.ErrWriteFailed)
}

func TestStore_Close(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Subscribe(ctx, types.Doc("users", "u1"), func(types.Snapshot) {}, func(error) {})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 0, s.Subscriptions())

	_, err = s.Subscribe(ctx, types.Doc("users", "u1"), func(types.Snapshot) {}, func(error) {})
	require.ErrorIs(t, err, types.ErrClosed)
	require.ErrorIs(t, s.Write(ctx, types.Doc("users", "u1"), "f", 1), types.ErrClosed)
}
