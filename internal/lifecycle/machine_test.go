package lifecycle

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/livequery/internal/logging"
	"github.com/arloliu/livequery/internal/metrics"
	"github.com/arloliu/livequery/types"
)

type droppedCounter struct {
	*metrics.NopMetrics
	dropped     atomic.Int32
	transitions atomic.Int32
}

func (d *droppedCounter) RecordStateChangeDropped() { d.dropped.Add(1) }

func (d *droppedCounter) RecordStateTransition(_, _ types.Status) { d.transitions.Add(1) }

func newTestMachine(initial types.State, onTransition TransitionFunc) (*Machine, *droppedCounter) {
	m := &droppedCounter{NopMetrics: metrics.NewNop()}
	return NewMachine("test", initial, logging.NewNop(), m, 0, onTransition), m
}

func TestMachine_DispatchSequence(t *testing.T) {
	var mu sync.Mutex
	var seen []types.Status
	machine, counter := newTestMachine(Initial(true, false), func(_, to types.Status) {
		mu.Lock()
		seen = append(seen, to)
		mu.Unlock()
	})

	require.True(t, machine.State().IsLoading())

	state := machine.Dispatch(Data("a"))
	require.True(t, state.IsSuccess())
	require.Equal(t, "a", machine.State().Data)

	boom := errors.New("boom")
	machine.Dispatch(Fail(boom))
	require.ErrorIs(t, machine.State().Err, boom)
	require.Nil(t, machine.State().Data)

	machine.Dispatch(Reset())
	require.True(t, machine.State().IsIdle())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []types.Status{types.StatusSuccess, types.StatusError, types.StatusIdle}, seen)
	require.Equal(t, int32(3), counter.transitions.Load())
}

func TestMachine_SubscribeReceivesCurrentAndUpdates(t *testing.T) {
	machine, _ := newTestMachine(types.State{Status: types.StatusIdle}, nil)

	ch, unsubscribe := machine.Subscribe()
	defer unsubscribe()

	first := <-ch
	require.True(t, first.IsIdle())

	machine.Dispatch(Start())
	machine.Dispatch(Data(1))

	require.True(t, (<-ch).IsLoading())
	got := <-ch
	require.True(t, got.IsSuccess())
	require.Equal(t, 1, got.Data)
}

func TestMachine_RepeatedIdleOrLoadingIsSilent(t *testing.T) {
	transitions := 0
	machine, _ := newTestMachine(types.State{Status: types.StatusLoading}, func(_, _ types.Status) { transitions++ })

	ch, unsubscribe := machine.Subscribe()
	defer unsubscribe()
	<-ch

	machine.Dispatch(Start())
	require.Empty(t, ch)
	require.Equal(t, 0, transitions)

	// A second success carries a new payload and is delivered.
	machine.Dispatch(Data(1))
	machine.Dispatch(Data(2))
	require.Equal(t, 1, (<-ch).Data)
	require.Equal(t, 2, (<-ch).Data)
	require.Equal(t, 1, transitions)
}

func TestMachine_SlowSubscriberKeepsLatest(t *testing.T) {
	machine, counter := newTestMachine(types.State{Status: types.StatusIdle}, nil)

	ch, unsubscribe := machine.Subscribe()
	defer unsubscribe()

	for i := range 10 {
		machine.Dispatch(Data(i))
	}

	var last types.State
	require.Eventually(t, func() bool {
		select {
		case s := <-ch:
			last = s
		default:
		}

		return len(ch) == 0 && last.Data == 9
	}, time.Second, time.Millisecond)
	require.Positive(t, counter.dropped.Load())
}

func TestMachine_UnsubscribeClosesChannel(t *testing.T) {
	machine, _ := newTestMachine(types.State{}, nil)

	ch, unsubscribe := machine.Subscribe()
	<-ch
	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok)

	require.NotPanics(t, func() { machine.Dispatch(Start()) })
}

func TestMachine_Close(t *testing.T) {
	machine, _ := newTestMachine(types.State{Status: types.StatusLoading}, nil)

	ch, _ := machine.Subscribe()
	<-ch

	machine.Close()
	machine.Close()

	_, ok := <-ch
	require.False(t, ok)

	state := machine.Dispatch(Data("late"))
	require.True(t, state.IsLoading(), "dispatch after close must be ignored")

	late, unsubscribe := machine.Subscribe()
	defer unsubscribe()
	_, ok = <-late
	require.False(t, ok)
}

func TestMachine_ConcurrentDispatch(t *testing.T) {
	machine, _ := newTestMachine(types.State{}, nil)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for j := range 100 {
				if j%2 == 0 {
					machine.Dispatch(Data(i))
				} else {
					machine.Dispatch(Start())
				}
			}
		})
	}
	wg.Wait()

	state := machine.State()
	require.True(t, state.IsLoading() || state.IsSuccess())
}
