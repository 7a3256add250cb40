// Package lifecycle implements the subscription lifecycle state machine.
//
// The machine is a closed reducer over four events:
//
//	RESET       → idle     (payload cleared)
//	START       → loading  (payload cleared)
//	DATA(data)  → success  (data set, error cleared)
//	FAIL(err)   → error    (error set, data cleared)
//
// The reducer knows nothing about subscriptions; callers (queries and backed values)
// decide which event to dispatch. Any other event kind is a programming error and
// panics with types.ErrUnknownEvent.
//
// Machine wraps the reducer with atomic application, transition logging and metrics,
// and a non-blocking fan-out of state changes to subscribers.
package lifecycle
