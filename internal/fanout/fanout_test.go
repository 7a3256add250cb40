package fanout

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFanout_InitialThenPublished(t *testing.T) {
	f := New[int](0, nil)

	ch, unsubscribe := f.Subscribe(1)
	defer unsubscribe()

	f.Publish(2)
	require.Equal(t, 1, <-ch)
	require.Equal(t, 2, <-ch)
	require.Equal(t, 1, f.Len())
}

func TestFanout_SlowSubscriberKeepsLatest(t *testing.T) {
	var dropped atomic.Int32
	f := New[int](2, func() { dropped.Add(1) })

	ch, unsubscribe := f.Subscribe(0)
	defer unsubscribe()

	for i := 1; i <= 5; i++ {
		f.Publish(i)
	}

	require.Equal(t, 4, <-ch)
	require.Equal(t, 5, <-ch)
	require.Equal(t, int32(4), dropped.Load())
}

func TestFanout_Unsubscribe(t *testing.T) {
	f := New[string](1, nil)

	ch, unsubscribe := f.Subscribe("a")
	<-ch
	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok)
	require.Equal(t, 0, f.Len())
	require.NotPanics(t, func() { f.Publish("b") })
}

func TestFanout_Close(t *testing.T) {
	f := New[int](1, nil)

	a, _ := f.Subscribe(1)
	b, _ := f.Subscribe(1)
	f.Close()
	f.Close()

	for _, ch := range []<-chan int{a, b} {
		<-ch
		_, ok := <-ch
		require.False(t, ok)
	}

	late, unsubscribe := f.Subscribe(9)
	defer unsubscribe()
	_, ok := <-late
	require.False(t, ok)

	require.NotPanics(t, func() { f.Publish(2) })
}

func TestFanout_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	f := New[int](1, nil)

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for i := range 200 {
				f.Publish(i)
			}
		})
		wg.Go(func() {
			for range 50 {
				_, unsubscribe := f.Subscribe(-1)
				unsubscribe()
			}
		})
	}
	wg.Wait()
	f.Close()
	require.Equal(t, 0, f.Len())
}
