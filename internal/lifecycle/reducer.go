package lifecycle

import (
	"fmt"

	"github.com/arloliu/livequery/types"
)

// Reduce applies an event to a state and returns the next state.
//
// The previous state is not consulted: every event fully determines the next state,
// and entering a state clears the payload fields that do not belong to it.
//
// Panics with an error wrapping types.ErrUnknownEvent when ev.Kind is not one of the
// four defined kinds.
func Reduce(_ types.State, ev Event) types.State {
	switch ev.Kind {
	case EventReset:
		return types.State{Status: types.StatusIdle}
	case EventStart:
		return types.State{Status: types.StatusLoading}
	case EventData:
		return types.State{Status: types.StatusSuccess, Data: ev.Payload}
	case EventFail:
		return types.State{Status: types.StatusError, Err: ev.Err}
	default:
		panic(fmt.Errorf("%w: kind %d", types.ErrUnknownEvent, int(ev.Kind)))
	}
}

// Initial computes the state a query starts in.
//
// Parameters:
//   - hasDescriptor: whether a descriptor is present at construction
//   - lazy: whether the query starts in lazy mode
//
// Returns:
//   - types.State: loading when a descriptor is present and not lazy, else idle
func Initial(hasDescriptor, lazy bool) types.State {
	if hasDescriptor && !lazy {
		return types.State{Status: types.StatusLoading}
	}

	return types.State{Status: types.StatusIdle}
}
