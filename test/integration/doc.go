// Package integration holds end-to-end tests that run several livequery clients
// against one embedded NATS server together with the backup stores.
package integration
