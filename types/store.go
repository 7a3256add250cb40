package types

import "context"

// Unsubscribe tears down a live subscription.
//
// It is invoked exactly once by the owner of the subscription. It must not block on
// callbacks that are already in flight; owners discard callbacks that arrive after
// teardown.
type Unsubscribe func()

// Store is the remote document/collection store capability consumed by queries.
//
// A single Store is typically created once per process and shared read-only by
// every query built from the same client.
type Store interface {
	// Subscribe attaches a live listener for the descriptor.
	//
	// onData receives a DocumentSnapshot for DocumentRef descriptors and a
	// CollectionSnapshot for CollectionQuery descriptors, first with the current
	// content and then on every change. onError receives transport failures.
	// Callbacks run on store-owned goroutines, never on the goroutine calling
	// Subscribe, so a caller may hold its own lock across the call.
	//
	// Parameters:
	//   - ctx: Context bounding subscription establishment
	//   - d: Non-nil descriptor to watch
	//   - onData: Snapshot callback
	//   - onError: Transport error callback
	//
	// Returns:
	//   - Unsubscribe: Teardown func (never nil when error is nil)
	//   - error: Establishment failure (e.g. ErrUnsupportedDescriptor, ErrConnectivity)
	Subscribe(ctx context.Context, d Descriptor, onData func(Snapshot), onError func(error)) (Unsubscribe, error)

	// Write sets a single field of a document, creating the document when missing.
	//
	// Other fields of the document are preserved (merge semantics).
	//
	// Parameters:
	//   - ctx: Context for cancellation and deadline
	//   - ref: Target document
	//   - field: Field name to set
	//   - value: JSON-serializable value
	//
	// Returns:
	//   - error: ErrWriteFailed wrapped with the cause, or nil
	Write(ctx context.Context, ref DocumentRef, field string, value any) error
}

// BackupStore persists local fallback values between process runs.
//
// Values are opaque bytes (JSON encoded by the caller).
type BackupStore interface {
	// Load returns the value saved under key.
	//
	// Returns:
	//   - []byte: Saved value
	//   - bool: false when nothing is saved under key
	//   - error: Storage failure
	Load(ctx context.Context, key string) ([]byte, bool, error)

	// Save stores value under key, replacing any previous value.
	Save(ctx context.Context, key string, value []byte) error
}
