package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescriptorsEqual(t *testing.T) {
	t.Run("nil handling", func(t *testing.T) {
		require.True(t, DescriptorsEqual(nil, nil))
		require.False(t, DescriptorsEqual(nil, Doc("users", "u1")))
		require.False(t, DescriptorsEqual(Doc("users", "u1"), nil))
	})

	t.Run("documents", func(t *testing.T) {
		require.True(t, DescriptorsEqual(Doc("users", "u1"), Doc("users", "u1")))
		require.True(t, DescriptorsEqual(Doc("users", "u1"), &DocumentRef{Collection: "users", ID: "u1"}))
		require.False(t, DescriptorsEqual(Doc("users", "u1"), Doc("users", "u2")))
		require.False(t, DescriptorsEqual(Doc("users", "u1"), Collection("users")))
	})

	t.Run("collections ignore filter order", func(t *testing.T) {
		a := Collection("items").Where("type", OpEqual, "a").Where("qty", OpEqual, 5)
		b := Collection("items").Where("qty", OpEqual, 5).Where("type", OpEqual, "a")
		require.True(t, DescriptorsEqual(a, b))
		require.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("collections compare values by JSON form", func(t *testing.T) {
		a := Collection("items").Where("qty", OpEqual, 5)
		b := Collection("items").Where("qty", OpEqual, 5.0)
		require.True(t, a.Equal(b))
	})

	t.Run("collections differ by filter value, limit and collection", func(t *testing.T) {
		base := Collection("items").Where("type", OpEqual, "a")
		require.False(t, base.Equal(Collection("items").Where("type", OpEqual, "b")))
		require.False(t, base.Equal(base.WithLimit(10)))
		require.False(t, base.Equal(Collection("other").Where("type", OpEqual, "a")))
		require.NotEqual(t, base.Fingerprint(), Collection("items").Where("type", OpEqual, "b").Fingerprint())
	})
}

func TestCollectionQuery_Immutability(t *testing.T) {
	base := Collection("items").Where("type", OpEqual, "a")
	derived := base.Where("qty", OpEqual, 1)

	require.Len(t, base.Filters, 1)
	require.Len(t, derived.Filters, 2)
}

func TestCollectionQuery_Matches(t *testing.T) {
	q := Collection("items").Where("type", OpEqual, "a").Where("qty", OpNotEqual, 0)

	require.True(t, q.Matches(map[string]any{"type": "a", "qty": 5.0}))
	require.False(t, q.Matches(map[string]any{"type": "b", "qty": 5.0}))
	require.False(t, q.Matches(map[string]any{"type": "a", "qty": 0}))
	require.False(t, q.Matches(map[string]any{"type": "a"}), "!= requires the field to be present")
	require.True(t, Collection("items").Matches(nil))
}

func TestDescriptor_Validate(t *testing.T) {
	require.NoError(t, Doc("users", "u1").Validate())
	require.True(t, errors.Is(Doc("", "u1").Validate(), ErrInvalidDescriptor))
	require.True(t, errors.Is(Doc("users", "").Validate(), ErrInvalidDescriptor))

	require.NoError(t, Collection("items").Where("type", OpEqual, "a").Validate())
	require.True(t, errors.Is(Collection("").Validate(), ErrInvalidDescriptor))
	require.True(t, errors.Is(Collection("items").WithLimit(-1).Validate(), ErrInvalidDescriptor))
	require.True(t, errors.Is(Collection("items").Where("", OpEqual, 1).Validate(), ErrInvalidDescriptor))
	require.True(t, errors.Is(Collection("items").Where("a", Op("<"), 1).Validate(), ErrInvalidDescriptor))
}

func TestDescriptor_String(t *testing.T) {
	require.Equal(t, "users/u1", Doc("users", "u1").String())
	require.Equal(t, `items[type=="a"]`, Collection("items").Where("type", OpEqual, "a").String())
	require.Equal(t, "items limit 3", Collection("items").WithLimit(3).String())
}
