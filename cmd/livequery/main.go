// Command livequery watches and edits live documents stored in a NATS JetStream
// KeyValue bucket.
//
// Usage:
//
//	livequery --embedded serve
//	livequery --nats-url nats://localhost:4222 watch doc users u1
//	livequery --nats-url nats://localhost:4222 watch collection items --where type==a
//	livequery --nats-url nats://localhost:4222 set users u1 name '"ada"'
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
