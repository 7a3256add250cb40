// Package types provides core type definitions and interfaces for the livequery library.
//
// This package contains shared types that are used across multiple packages in the
// livequery library. By keeping these types in a separate package, we avoid import cycles
// between the main livequery package and its internal implementations and store backends.
//
// Key types:
//   - Status, State: Subscription lifecycle state
//   - Descriptor, DocumentRef, CollectionQuery: Query descriptors
//   - Snapshot, DocumentSnapshot, CollectionSnapshot, Record: Pushed data and its projection
//   - Store, BackupStore: Remote store and persisted backup capabilities
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
