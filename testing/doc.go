// Package testing provides test utilities for the livequery library.
//
// This package offers helpers for setting up test environments: an embedded NATS
// server for integration tests, a recording logger, and a scriptable fake Store.
// It follows Go's convention of providing testing utilities in a dedicated package
// (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - NewTestLogger: Logger that writes to t.Log and records messages
//   - FakeStore: In-memory Store whose snapshots and errors are driven by the test
//
// Example usage:
//
//	import (
//	    "testing"
//	    lqtest "github.com/arloliu/livequery/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    store := lqtest.NewFakeStore()
//	    client, _ := livequery.NewClient(store)
//	    q := client.Query(livequery.WithDescriptor(livequery.Doc("users", "u1")))
//	    store.Last().Emit(livequery.DocumentSnapshot{ID: "u1", Exists: true})
//	}
package testing
