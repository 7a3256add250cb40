package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/livequery"
	"github.com/arloliu/livequery/store/natskv"
	lqtest "github.com/arloliu/livequery/testing"
)

// Stack is one embedded NATS server shared by several independent clients, each
// with its own connection and store, the way separate processes would be.
type Stack struct {
	t      *testing.T
	Server *server.Server
	Bucket string

	Nodes []*Node
}

// Node is one client process of a Stack.
type Node struct {
	Conn   *nats.Conn
	Store  *natskv.Store
	Client *livequery.Client
}

// NewStack starts an embedded server. Nodes are added with AddNode.
func NewStack(t *testing.T, bucket string) *Stack {
	t.Helper()

	ns, _ := lqtest.StartEmbeddedNATS(t)

	return &Stack{t: t, Server: ns, Bucket: bucket}
}

// AddNode connects a new client to the stack.
//
// Parameters:
//   - opts: Extra client options (identity, hooks); test config and logger are preset
//
// Returns:
//   - *Node: The connected node, closed on test cleanup
func (s *Stack) AddNode(opts ...livequery.Option) *Node {
	s.t.Helper()

	nc, err := nats.Connect(s.Server.ClientURL(), nats.Timeout(2*time.Second))
	require.NoError(s.t, err)

	logger := lqtest.NewTestLogger(s.t)
	cfg := natskv.DefaultConfig()
	cfg.Bucket = s.Bucket
	cfg.Storage = "memory"
	cfg.WriteRetryBackoff = time.Millisecond
	cfg.WriteMaxRetries = 20

	store, err := natskv.New(s.t.Context(), nc, cfg, natskv.WithLogger(logger))
	require.NoError(s.t, err)

	opts = append([]livequery.Option{
		livequery.WithConfig(livequery.TestConfig()),
		livequery.WithLogger(logger),
	}, opts...)
	client, err := livequery.NewClient(store, opts...)
	require.NoError(s.t, err)

	node := &Node{Conn: nc, Store: store, Client: client}
	s.Nodes = append(s.Nodes, node)

	s.t.Cleanup(func() {
		_ = client.Close()
		_ = store.Close()
		nc.Close()
	})

	return node
}
