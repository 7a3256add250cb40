package natsutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/livequery/types"
)

func TestIsConnectivityError(t *testing.T) {
	require.False(t, IsConnectivityError(nil))
	require.False(t, IsConnectivityError(errors.New("nats: key not found")))

	require.True(t, IsConnectivityError(nats.ErrTimeout))
	require.True(t, IsConnectivityError(fmt.Errorf("watch: %w", nats.ErrConnectionClosed)))
	require.True(t, IsConnectivityError(errors.New("dial tcp: connection refused")))
	require.True(t, IsConnectivityError(types.ErrConnectivity))
}

func TestClassify(t *testing.T) {
	require.NoError(t, Classify(nil))

	plain := errors.New("bad json")
	require.Same(t, plain, Classify(plain))

	err := Classify(nats.ErrNoServers)
	require.ErrorIs(t, err, types.ErrConnectivity)
	require.ErrorIs(t, err, nats.ErrNoServers)

	already := fmt.Errorf("%w: x", types.ErrConnectivity)
	require.Same(t, already, Classify(already))
}

func TestStartServer(t *testing.T) {
	_, err := StartServer(ServerOptions{})
	require.Error(t, err)

	ns, err := StartServer(ServerOptions{StoreDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	require.True(t, nc.IsConnected())
}
