// Package metrics provides types.MetricsCollector implementations.
package metrics

import "github.com/arloliu/livequery/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	metrics := metrics.NewNop()
//	client, err := livequery.NewClient(store, livequery.WithMetrics(metrics))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// QueryMetrics implementation

// RecordSubscribe discards the subscription attempt metric.
func (n *NopMetrics) RecordSubscribe(_ /* kind */ string, _ /* success */ bool) {
	// No-op
}

// RecordUnsubscribe discards the teardown metric.
func (n *NopMetrics) RecordUnsubscribe(_ /* kind */ string) {
	// No-op
}

// RecordSnapshot discards the snapshot metric.
func (n *NopMetrics) RecordSnapshot(_ /* kind */ string) {
	// No-op
}

// RecordStaleCallback discards the stale callback counter.
func (n *NopMetrics) RecordStaleCallback() {
	// No-op
}

// RecordResubscribeSkipped discards the skipped resubscribe counter.
func (n *NopMetrics) RecordResubscribeSkipped() {
	// No-op
}

// LifecycleMetrics implementation

// RecordStateTransition discards the state transition metric.
func (n *NopMetrics) RecordStateTransition(_ /* from */, _ /* to */ types.Status) {
	// No-op
}

// RecordStateChangeDropped discards the dropped notification counter.
func (n *NopMetrics) RecordStateChangeDropped() {
	// No-op
}

// WriteMetrics implementation

// RecordWrite discards the write metric.
func (n *NopMetrics) RecordWrite(_ /* success */ bool, _ /* duration */ float64) {
	// No-op
}

// RecordWriteConflict discards the write conflict counter.
func (n *NopMetrics) RecordWriteConflict() {
	// No-op
}

// BackupMetrics implementation

// RecordBackupOperation discards the backup operation metric.
func (n *NopMetrics) RecordBackupOperation(_ /* operation */ string, _ /* success */ bool) {
	// No-op
}
