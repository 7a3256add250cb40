package types

import "context"

// Hooks defines callbacks for query lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// to avoid blocking store callbacks. Hook errors are logged and otherwise ignored.
//
// Example:
//
//	hooks := &livequery.Hooks{
//	    OnStateChanged: func(ctx context.Context, queryID string, from, to livequery.Status) error {
//	        log.Printf("%s: %s -> %s", queryID, from, to)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnStateChanged is called when a query or backed value changes lifecycle status.
	OnStateChanged func(ctx context.Context, queryID string, from, to Status) error

	// OnError is called for recoverable errors: transport failures and failed writes.
	OnError func(ctx context.Context, queryID string, err error) error
}
