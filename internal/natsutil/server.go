package natsutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// ServerOptions configures an in-process NATS server.
type ServerOptions struct {
	// Host to bind (default "127.0.0.1").
	Host string

	// Port to bind; -1 picks a random free port.
	Port int

	// StoreDir holds JetStream data. Required.
	StoreDir string

	// ReadyTimeout bounds the wait for the server to accept connections (default 5s).
	ReadyTimeout time.Duration
}

// StartServer starts an in-process NATS server with JetStream enabled.
//
// The caller owns the returned server and must call Shutdown on it.
//
// Parameters:
//   - opts: Server options
//
// Returns:
//   - *server.Server: Running server, ready for connections
//   - error: Creation failure or readiness timeout
func StartServer(opts ServerOptions) (*server.Server, error) {
	if opts.StoreDir == "" {
		return nil, errors.New("nats server store dir is required")
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = -1
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}

	ns, err := server.NewServer(&server.Options{
		Host:      opts.Host,
		Port:      opts.Port,
		JetStream: true,
		StoreDir:  opts.StoreDir,
		NoLog:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(opts.ReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready within %v", opts.ReadyTimeout)
	}

	return ns, nil
}
