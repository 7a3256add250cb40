package kvutil

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func spread(durs []time.Duration) time.Duration {
	if len(durs) == 0 {
		return 0
	}
	var sum float64
	for _, d := range durs {
		sum += d.Seconds()
	}
	mean := sum / float64(len(durs))

	var varSum float64
	for _, d := range durs {
		diff := d.Seconds() - mean
		varSum += diff * diff
	}

	return time.Duration(math.Sqrt(varSum/float64(len(durs))) * float64(time.Second))
}

func TestBackoff_StaysWithinBounds(t *testing.T) {
	base := 20 * time.Millisecond
	capDur := 80 * time.Millisecond
	b := NewBackoff(base, 1.6, capDur, 42)

	require.Equal(t, base, b.Next(), "first delay is the base")
	for range 20 {
		next := b.Next()
		require.GreaterOrEqual(t, next, base)
		require.LessOrEqual(t, next, capDur)
	}
}

func TestBackoff_CapBelowBase(t *testing.T) {
	b := NewBackoff(200*time.Millisecond, 1.6, 100*time.Millisecond, 1)

	require.Equal(t, 100*time.Millisecond, b.Next())
	require.Equal(t, 100*time.Millisecond, b.Next())
}

func TestBackoff_Reset(t *testing.T) {
	base := 10 * time.Millisecond
	b := NewBackoff(base, 3.0, time.Second, 7)
	for range 5 {
		b.Next()
	}

	b.Reset()
	require.Equal(t, base, b.Next())
}

func TestBackoff_Defaults(t *testing.T) {
	b := NewBackoff(0, 0.5, 0, 0)

	require.Equal(t, 50*time.Millisecond, b.Next())
	// multiplier clamped to 1.0: delays never exceed twice the base
	for range 10 {
		require.Less(t, b.Next(), 100*time.Millisecond)
	}
}

func TestBackoff_SeedsProduceDifferentSequences(t *testing.T) {
	const seeds = 5
	lasts := make([]time.Duration, 0, seeds)
	for s := int64(1); s <= seeds; s++ {
		b := NewBackoff(200*time.Millisecond, 1.6, 2*time.Second, s)
		var last time.Duration
		for range 12 {
			last = b.Next()
		}
		lasts = append(lasts, last)
	}

	require.GreaterOrEqual(t, spread(lasts), 50*time.Millisecond)
}

func TestBackoff_WaitHonorsContext(t *testing.T) {
	b := NewBackoff(time.Hour, 1.0, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, b.Wait(ctx), context.Canceled)

	quick := NewBackoff(time.Millisecond, 1.0, 0, 0)
	require.NoError(t, quick.Wait(context.Background()))
}
