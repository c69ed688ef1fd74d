package messaging

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const (
	// ChangesSubject is the subject carrying provider change notifications.
	ChangesSubject = "vmstatus.changes"
	changesStream  = "VMSTATUS"
)

// NewServer starts an embedded JetStream enabled NATS server storing its data in storeDir.
func NewServer(storeDir string) (*server.Server, error) {
	opts := &server.Options{
		JetStream: true,
		StoreDir:  storeDir,
		Port:      server.RANDOM_PORT,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}
	ns.ConfigureLogger()

	go ns.Start()

	if !ns.ReadyForConnections(20 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready for connections")
	}

	return ns, nil
}

// NewJetStreamContext connects to the NATS server at url.
// The returned connection must be closed by the caller.
func NewJetStreamContext(url string) (nats.JetStreamContext, *nats.Conn, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS server: %w", err)
	}

	js, err := nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return js, nc, nil
}

// AddStream creates the stream backing ChangesSubject.
func AddStream(js nats.JetStreamContext, storage nats.StorageType) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name: changesStream,
		// Change notifications are only interesting for a while, old ones are discarded.
		Retention:  nats.LimitsPolicy,
		MaxAge:     24 * time.Hour,
		MaxMsgs:    100_000,
		Duplicates: 2 * time.Minute,
		Subjects:   []string{ChangesSubject},
		Storage:    storage,
	})
	if err != nil {
		return fmt.Errorf("failed to add JetStream stream: %w", err)
	}

	return nil
}

// NewSubscription creates a durable pull subscription on ChangesSubject.
func NewSubscription(js nats.JetStreamContext, durable string, opts ...nats.SubOpt) (*nats.Subscription, error) {
	opts = append([]nats.SubOpt{nats.InactiveThreshold(24 * time.Hour)}, opts...)

	sub, err := js.PullSubscribe(ChangesSubject, durable, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to JetStream stream: %w", err)
	}

	return sub, nil
}
