package livequery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	lqtest "github.com/arloliu/livequery/testing"
)

func TestNewClient_RequiresStore(t *testing.T) {
	_, err := NewClient(nil)
	require.ErrorIs(t, err, ErrStoreRequired)
}

func TestNewClient_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KV.Storage = "tape"

	_, err := NewClient(lqtest.NewFakeStore(), WithConfig(cfg))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewClient_Defaults(t *testing.T) {
	store := lqtest.NewFakeStore()
	client, err := NewClient(store, WithConfig(Config{WriteTimeout: 3 * time.Second}))
	require.NoError(t, err)
	defer client.Close()

	require.Same(t, store, client.Store())
	require.Equal(t, 3*time.Second, client.Config().WriteTimeout)
	require.Equal(t, DefaultConfig().SubscribeTimeout, client.Config().SubscribeTimeout)
	require.Empty(t, client.Identity())

	client.SetIdentity("u1")
	require.Equal(t, "u1", client.Identity())
}

func TestClient_ResolvePath(t *testing.T) {
	client, _ := newTestClient(t)

	path, ok := client.resolvePath("")
	require.False(t, ok)
	require.Empty(t, path)

	path, ok = client.resolvePath("fixed")
	require.True(t, ok)
	require.Equal(t, "fixed", path)

	path, ok = client.resolvePath("users-%ID%")
	require.False(t, ok)
	require.Equal(t, "users-%ID%", path)

	client.SetIdentity("u9")
	path, ok = client.resolvePath("users-%ID%")
	require.True(t, ok)
	require.Equal(t, "users-u9", path)
}

func resolveAsync(ctx context.Context, client *Client, shareID string) (<-chan string, <-chan error) {
	ids := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		id, err := client.ResolveShare(ctx, "users", "shareId", shareID)
		ids <- id
		errs <- err
	}()

	return ids, errs
}

func TestClient_ResolveShare(t *testing.T) {
	client, store := newTestClient(t)

	ids, errs := resolveAsync(t.Context(), client, "s-1")

	require.Eventually(t, func() bool { return store.Last() != nil }, time.Second, 5*time.Millisecond)
	want := Collection("users").Where("shareId", OpEqual, "s-1").WithLimit(1)
	require.True(t, want.Equal(store.Last().Descriptor))

	store.Last().Emit(CollectionSnapshot{Docs: []DocumentSnapshot{
		{ID: "owner", Exists: true, Fields: map[string]any{"shareId": "s-1"}},
	}})

	require.NoError(t, <-errs)
	require.Equal(t, "owner", <-ids)
	require.Eventually(t, func() bool { return store.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClient_ResolveShare_NotFound(t *testing.T) {
	client, store := newTestClient(t)

	_, errs := resolveAsync(t.Context(), client, "nobody")
	require.Eventually(t, func() bool { return store.Last() != nil }, time.Second, 5*time.Millisecond)
	store.Last().Emit(CollectionSnapshot{})

	require.ErrorIs(t, <-errs, ErrShareNotFound)

	_, err := client.ResolveShare(t.Context(), "users", "shareId", "")
	require.ErrorIs(t, err, ErrShareNotFound)
}

func TestClient_ResolveShare_TransportError(t *testing.T) {
	client, store := newTestClient(t)

	_, errs := resolveAsync(t.Context(), client, "s-1")
	require.Eventually(t, func() bool { return store.Last() != nil }, time.Second, 5*time.Millisecond)

	boom := errors.New("boom")
	store.Last().Fail(boom)

	require.ErrorIs(t, <-errs, boom)
}

func TestClient_ResolveShare_Timeout(t *testing.T) {
	client, _ := newTestClient(t)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err := client.ResolveShare(ctx, "users", "shareId", "s-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_CloseWaitsForHooks(t *testing.T) {
	var done atomic.Bool
	hooks := &Hooks{OnError: func(context.Context, string, error) error {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)

		return nil
	}}

	store := lqtest.NewFakeStore()
	client, err := NewClient(store, WithHooks(hooks))
	require.NoError(t, err)

	q := client.Query(WithDescriptor(Doc("users", "u1")))
	store.Last().Fail(errors.New("boom"))
	q.Close()

	require.NoError(t, client.Close())
	require.True(t, done.Load())
	require.NoError(t, client.Close())
	require.False(t, client.goBackground(func(context.Context) {}))
}
