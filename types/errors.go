package types

import (
	"errors"
	"strings"
)

// Sentinel errors for the livequery library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix
//   - Group by component (Client, Lifecycle, Store, Backed, etc.)
//   - Use consistent messages across similar error types

// Client errors - Public API errors returned by the client and its hook instances.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreRequired is returned when the remote store is nil.
	ErrStoreRequired = errors.New("remote store is required")

	// ErrClosed is returned when an operation is attempted on a closed query or backed value.
	ErrClosed = errors.New("query closed")

	// ErrShareNotFound is returned when no document carries the requested share id.
	ErrShareNotFound = errors.New("share not found")
)

// Lifecycle errors - Internal state machine errors.
var (
	// ErrUnknownEvent indicates a lifecycle event kind outside the closed event set.
	// It is a programming error and is raised as a panic.
	ErrUnknownEvent = errors.New("unknown lifecycle event")
)

// Store errors - Returned by Store implementations.
var (
	// ErrInvalidDescriptor is returned when a descriptor is malformed.
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrUnsupportedDescriptor is returned when a store cannot watch the descriptor type.
	ErrUnsupportedDescriptor = errors.New("unsupported descriptor")

	// ErrWriteFailed is returned when a remote write cannot be applied.
	ErrWriteFailed = errors.New("remote write failed")

	// ErrDecodeFailed is returned when stored document content cannot be decoded.
	ErrDecodeFailed = errors.New("failed to decode document")

	// ErrConnectivity indicates a transport connectivity issue.
	// This is used to distinguish network failures from application errors.
	ErrConnectivity = errors.New("connectivity issue")
)

// Backup errors - Returned by BackupStore implementations.
var (
	// ErrBackupUnavailable is returned when the backup store cannot be reached.
	ErrBackupUnavailable = errors.New("backup store unavailable")
)

// IsNotFoundError checks if an error indicates a missing key in a backing store.
//
// This function handles store-specific "not found" errors which may come as:
//   - Direct error: "nats: key not found"
//   - Wrapped error: "failed to get document: nats: key not found"
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error indicates a missing key, false otherwise
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	return strings.Contains(err.Error(), "key not found")
}
