// Package testutil provides shared helpers for the integration tests.
//
// It contains setup code that spans several components (NATS, stores, clients)
// and waiting helpers for asynchronous state. For a single embedded NATS server
// use the github.com/arloliu/livequery/testing package directly.
package testutil
