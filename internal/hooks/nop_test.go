package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/livequery/types"
)

func TestNewNop(t *testing.T) {
	hooks := NewNop()

	require.NotNil(t, hooks.OnStateChanged)
	require.NotNil(t, hooks.OnError)
}

func TestNopHooks_OnStateChanged(t *testing.T) {
	hooks := NewNop()

	err := hooks.OnStateChanged(context.Background(), "q-1", types.StatusLoading, types.StatusSuccess)
	require.NoError(t, err)
}

func TestNopHooks_OnError(t *testing.T) {
	hooks := NewNop()

	err := hooks.OnError(context.Background(), "q-1", context.Canceled)
	require.NoError(t, err)
}

func TestFill(t *testing.T) {
	require.NotNil(t, Fill(nil).OnError)

	called := false
	custom := &types.Hooks{
		OnError: func(context.Context, string, error) error {
			called = true
			return errors.New("ignored")
		},
	}
	filled := Fill(custom)
	require.NotNil(t, filled.OnStateChanged)
	require.Nil(t, custom.OnStateChanged, "input must not be mutated")

	require.Error(t, filled.OnError(context.Background(), "q", nil))
	require.True(t, called)
	require.NoError(t, filled.OnStateChanged(context.Background(), "q", types.StatusIdle, types.StatusLoading))
}
