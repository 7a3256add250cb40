// Package natsutil holds NATS helpers shared by the NATS-backed store, the CLI and tests.
package natsutil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/livequery/types"
)

// IsConnectivityError reports whether err means the server could not be reached
// in time: NATS timeouts and disconnects, a missing JetStream response, an expired
// deadline, or a refused or timed-out socket.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, types.ErrConnectivity) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// Classify wraps connectivity failures with types.ErrConnectivity so callers can
// branch on errors.Is without importing NATS. Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, types.ErrConnectivity) || !IsConnectivityError(err) {
		return err
	}

	return fmt.Errorf("%w: %w", types.ErrConnectivity, err)
}
