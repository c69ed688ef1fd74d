package messaging

import (
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// newTestJetStream starts an embedded server with the changes stream in memory.
func newTestJetStream(t *testing.T) (*server.Server, nats.JetStreamContext) {
	t.Helper()

	ns, err := NewServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(ns.Shutdown)

	js, nc, err := NewJetStreamContext(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	err = AddStream(js, nats.MemoryStorage)
	require.NoError(t, err)

	return ns, js
}
