package livequery

import "github.com/arloliu/livequery/types"

// Sentinel errors re-exported from the types package.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrStoreRequired is returned when NewClient is called without a store.
	ErrStoreRequired = types.ErrStoreRequired

	// ErrClosed is returned when an operation is attempted on a closed client, query or backed value.
	ErrClosed = types.ErrClosed

	// ErrShareNotFound is returned by ResolveShare when no document carries the share id.
	ErrShareNotFound = types.ErrShareNotFound

	// ErrUnknownEvent is the panic value for an undefined lifecycle event.
	ErrUnknownEvent = types.ErrUnknownEvent

	// ErrInvalidDescriptor is returned when a descriptor is malformed.
	ErrInvalidDescriptor = types.ErrInvalidDescriptor

	// ErrUnsupportedDescriptor is returned when a store cannot watch a descriptor type.
	ErrUnsupportedDescriptor = types.ErrUnsupportedDescriptor

	// ErrWriteFailed wraps remote write failures.
	ErrWriteFailed = types.ErrWriteFailed

	// ErrDecodeFailed wraps document content that cannot be decoded.
	ErrDecodeFailed = types.ErrDecodeFailed

	// ErrConnectivity wraps transport connectivity failures.
	ErrConnectivity = types.ErrConnectivity

	// ErrBackupUnavailable is returned when a backup store cannot be reached.
	ErrBackupUnavailable = types.ErrBackupUnavailable
)
