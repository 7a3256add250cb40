package lifecycle

// EventKind enumerates lifecycle events.
type EventKind int

const (
	// EventReset moves the machine to idle.
	EventReset EventKind = iota + 1

	// EventStart moves the machine to loading.
	EventStart

	// EventData moves the machine to success with a payload.
	EventData

	// EventFail moves the machine to error with an error value.
	EventFail
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventReset:
		return "RESET"
	case EventStart:
		return "START"
	case EventData:
		return "DATA"
	case EventFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Event is a single input to the reducer.
type Event struct {
	Kind    EventKind
	Payload any
	Err     error
}

// Reset returns a RESET event.
func Reset() Event { return Event{Kind: EventReset} }

// Start returns a START event.
func Start() Event { return Event{Kind: EventStart} }

// Data returns a DATA event carrying payload.
func Data(payload any) Event { return Event{Kind: EventData, Payload: payload} }

// Fail returns a FAIL event carrying err.
func Fail(err error) Event { return Event{Kind: EventFail, Err: err} }
