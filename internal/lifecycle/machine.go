package lifecycle

import (
	"sync"

	"github.com/arloliu/livequery/internal/fanout"
	"github.com/arloliu/livequery/types"
)

// TransitionFunc is invoked after every status transition.
type TransitionFunc func(from, to types.Status)

// Machine applies lifecycle events atomically and fans out the resulting states.
//
// Dispatch is safe for concurrent use. The reducer runs under the machine's mutex,
// so every transition is applied as a unit and subscribers observe states in
// dispatch order.
type Machine struct {
	mu      sync.RWMutex
	current types.State
	closed  bool

	name    string
	logger  types.Logger
	metrics types.LifecycleMetrics

	subscribers *fanout.Fanout[types.State]

	onTransition TransitionFunc
}

// NewMachine creates a state machine starting in the given initial state.
//
// Parameters:
//   - name: Identifier used in log fields (typically the owning query ID)
//   - initial: Initial state, usually from Initial()
//   - logger: Logger for transitions
//   - metrics: Metrics collector for lifecycle operations
//   - bufferSize: Subscriber channel buffer (fanout.DefaultBuffer if <= 0)
//   - onTransition: Optional callback invoked after each status change
//
// Returns:
//   - *Machine: A new machine
func NewMachine(
	name string,
	initial types.State,
	logger types.Logger,
	metrics types.LifecycleMetrics,
	bufferSize int,
	onTransition TransitionFunc,
) *Machine {
	return &Machine{
		current:      initial,
		name:         name,
		logger:       logger,
		metrics:      metrics,
		subscribers:  fanout.New[types.State](bufferSize, metrics.RecordStateChangeDropped),
		onTransition: onTransition,
	}
}

// State returns the current state.
func (m *Machine) State() types.State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current
}

// Dispatch applies ev and notifies subscribers of the resulting state.
//
// Dispatch after Close is ignored and returns the final state.
// Panics if ev.Kind is unknown (see Reduce).
//
// Parameters:
//   - ev: Event to apply
//
// Returns:
//   - types.State: The state after applying ev
func (m *Machine) Dispatch(ev Event) types.State {
	m.mu.Lock()
	if m.closed {
		state := m.current
		m.mu.Unlock()

		return state
	}

	from := m.current
	next := Reduce(from, ev)
	m.current = next

	// Idle and loading carry no payload, so a repeat is not a change.
	silent := from.Status == next.Status &&
		(next.Status == types.StatusIdle || next.Status == types.StatusLoading)

	if !silent {
		m.subscribers.Publish(next)
	}
	m.mu.Unlock()

	if silent {
		return next
	}

	if from.Status != next.Status {
		m.logger.Debug("lifecycle transition",
			"name", m.name,
			"event", ev.Kind.String(),
			"from", from.Status.String(),
			"to", next.Status.String(),
		)
		m.metrics.RecordStateTransition(from.Status, next.Status)
		if m.onTransition != nil {
			m.onTransition(from.Status, next.Status)
		}
	}

	return next
}

// Subscribe returns a channel that receives state change notifications.
//
// The subscriber receives the current state immediately upon subscription. When the
// subscriber falls behind, intermediate states are dropped but the latest state is
// always delivered. The channel is closed by the unsubscribe func or by Close.
//
// Returns:
//   - <-chan types.State: Channel that receives state updates
//   - func(): Unsubscribe function to clean up resources
//
// Example:
//
//	ch, unsubscribe := m.Subscribe()
//	defer unsubscribe()
//	for state := range ch {
//	    fmt.Printf("status: %s\n", state.Status)
//	}
func (m *Machine) Subscribe() (<-chan types.State, func()) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.subscribers.Subscribe(m.current)
}

// Close stops the machine: later dispatches are ignored and all subscriber
// channels are closed. Close is idempotent.
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.subscribers.Close()
}
