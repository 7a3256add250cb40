package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// Methods are called from store callback goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	QueryMetrics
	LifecycleMetrics
	WriteMetrics
	BackupMetrics
}

// QueryMetrics defines metrics for subscription management.
type QueryMetrics interface {
	// RecordSubscribe records a subscription attempt.
	//
	// Parameters:
	//   - kind: Descriptor kind ("document", "collection")
	//   - success: false when the store refused the subscription
	RecordSubscribe(kind string, success bool)

	// RecordUnsubscribe records a subscription teardown.
	RecordUnsubscribe(kind string)

	// RecordSnapshot records a snapshot applied to a query.
	RecordSnapshot(kind string)

	// RecordStaleCallback records a callback discarded because its subscription was superseded.
	RecordStaleCallback()

	// RecordResubscribeSkipped records an update whose descriptor was equal to the previous one.
	RecordResubscribeSkipped()
}

// LifecycleMetrics defines metrics for the lifecycle state machine.
type LifecycleMetrics interface {
	// RecordStateTransition records a lifecycle status transition.
	RecordStateTransition(from, to Status)

	// RecordStateChangeDropped records when state change notifications are dropped due to slow subscribers.
	RecordStateChangeDropped()
}

// WriteMetrics defines metrics for remote writes.
type WriteMetrics interface {
	// RecordWrite records the outcome and latency of a remote write.
	//
	// Parameters:
	//   - success: true if the store acknowledged the write
	//   - duration: Time taken in seconds
	RecordWrite(success bool, duration float64)

	// RecordWriteConflict records an optimistic-concurrency retry inside a store.
	RecordWriteConflict()
}

// BackupMetrics defines metrics for persisted backup operations.
type BackupMetrics interface {
	// RecordBackupOperation records a backup load or save.
	//
	// Parameters:
	//   - operation: "load" or "save"
	//   - success: false on storage failure
	RecordBackupOperation(operation string, success bool)
}
