package types

// Status represents the lifecycle status of a live query subscription.
//
// Statuses are driven by explicit events only:
//
//	Idle → Loading → Success ⇄ Error
//
// Any status returns to Idle when the descriptor disappears or the query becomes lazy,
// and to Loading whenever a new subscription is established.
type Status int

const (
	// StatusIdle indicates no subscription is active.
	StatusIdle Status = iota

	// StatusLoading indicates a subscription was established and no snapshot arrived yet.
	StatusLoading

	// StatusSuccess indicates the latest pushed snapshot is available in State.Data.
	StatusSuccess

	// StatusError indicates the subscription reported a transport failure in State.Err.
	StatusError
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is the observable lifecycle state of a query.
//
// Exactly one of Data and Err is populated in the Success and Error statuses
// respectively; both are empty in Idle and Loading.
type State struct {
	// Status is the current lifecycle status.
	Status Status

	// Data holds the projected snapshot (Record, []Record or nil) when Status is StatusSuccess.
	Data any

	// Err holds the transport error when Status is StatusError.
	Err error
}

// IsIdle reports whether the state is idle.
func (s State) IsIdle() bool { return s.Status == StatusIdle }

// IsLoading reports whether the state is loading.
func (s State) IsLoading() bool { return s.Status == StatusLoading }

// IsSuccess reports whether the state carries data.
func (s State) IsSuccess() bool { return s.Status == StatusSuccess }

// IsError reports whether the state carries an error.
func (s State) IsError() bool { return s.Status == StatusError }

// Record returns the data as a single document projection.
//
// Returns:
//   - Record: The projected document (nil when it does not exist)
//   - bool: false if the state is not a success or the data is not a document
func (s State) Record() (Record, bool) {
	if s.Status != StatusSuccess {
		return nil, false
	}
	if s.Data == nil {
		return nil, true
	}
	rec, ok := s.Data.(Record)

	return rec, ok
}

// Records returns the data as a collection projection.
//
// Returns:
//   - []Record: The projected documents in remote order
//   - bool: false if the state is not a success or the data is not a collection
func (s State) Records() ([]Record, bool) {
	if s.Status != StatusSuccess {
		return nil, false
	}
	recs, ok := s.Data.([]Record)

	return recs, ok
}
