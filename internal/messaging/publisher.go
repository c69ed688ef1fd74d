package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const MessageTypeHeader = "MessageType"

//go:generate go run github.com/vektra/mockery/v2@v2.46.2 --name Publisher
type Publisher interface {
	Publish(ctx context.Context, message Message) error
}

type publisher struct {
	js nats.JetStreamContext
}

func NewPublisher(js nats.JetStreamContext) Publisher {
	return &publisher{
		js: js,
	}
}

// Publish sends message on ChangesSubject.
// Messages with an id are published once per id within the stream duplicate window.
func (p *publisher) Publish(ctx context.Context, message Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", message.MessageType(), err)
	}

	msg := nats.NewMsg(ChangesSubject)
	msg.Data = data
	msg.Header.Set(MessageTypeHeader, message.MessageType())

	opts := []nats.PubOpt{nats.Context(ctx)}
	if identified, ok := message.(IdentifiedMessage); ok && identified.MessageID() != "" {
		opts = append(opts, nats.MsgId(identified.MessageID()))
	}

	if _, err := p.js.PublishMsg(msg, opts...); err != nil {
		return fmt.Errorf("failed to publish %s: %w", message.MessageType(), err)
	}

	return nil
}
