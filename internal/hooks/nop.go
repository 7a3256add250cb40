// Package hooks provides default types.Hooks implementations.
package hooks

import (
	"context"

	"github.com/arloliu/livequery/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, string, types.Status, types.Status) error = (*NopHooks)(nil).OnStateChanged
	_ func(context.Context, string, error) error                      = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - *types.Hooks: Hooks with no-op implementations
func NewNop() *types.Hooks {
	h := &NopHooks{}
	return &types.Hooks{
		OnStateChanged: h.OnStateChanged,
		OnError:        h.OnError,
	}
}

// Fill returns a copy of h with every nil callback replaced by a no-op.
// A nil h yields NewNop().
func Fill(h *types.Hooks) *types.Hooks {
	if h == nil {
		return NewNop()
	}
	nop := &NopHooks{}
	out := *h
	if out.OnStateChanged == nil {
		out.OnStateChanged = nop.OnStateChanged
	}
	if out.OnError == nil {
		out.OnError = nop.OnError
	}

	return &out
}

// OnStateChanged is a no-op implementation.
func (h *NopHooks) OnStateChanged(_ context.Context, _ string, _, _ types.Status) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(_ context.Context, _ string, _ error) error {
	return nil
}
