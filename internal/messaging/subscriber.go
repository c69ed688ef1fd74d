package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	fetchBatch   = 32
	fetchMaxWait = time.Second
)

type HandlerRegistry map[string]Handler

// Subscriber relays the changes of a pull subscription to the handler registered for their type.
type Subscriber struct {
	sub      *nats.Subscription
	handlers HandlerRegistry
	logger   *slog.Logger
}

func NewSubscriber(sub *nats.Subscription, handlers HandlerRegistry, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		sub:      sub,
		handlers: handlers,
		logger:   logger.With("component", "change-subscriber"),
	}
}

// Run relays changes until ctx is done.
// Changes are acknowledged before they are handled, so a change that fails to relay is dropped.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			s.logger.InfoContext(ctx, "Stopped relaying changes")
			return nil
		}

		msgs, err := s.sub.Fetch(fetchBatch, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("failed to fetch changes: %w", err)
		}

		for _, msg := range msgs {
			s.relay(ctx, msg)
		}
	}
}

func (s *Subscriber) relay(ctx context.Context, msg *nats.Msg) {
	var sequence uint64
	if meta, err := msg.Metadata(); err == nil {
		sequence = meta.Sequence.Stream
	}

	if err := msg.Ack(); err != nil {
		s.logger.WarnContext(ctx, "Failed to acknowledge change", "sequence", sequence, "error", err)
	}

	if err := s.processMessage(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Dropped change",
			"type", msg.Header.Get(MessageTypeHeader),
			"sequence", sequence,
			"error", err,
		)
		return
	}

	s.logger.DebugContext(ctx, "Relayed change", "type", msg.Header.Get(MessageTypeHeader), "sequence", sequence)
}

// processMessage decodes msg and hands it to the handler of its type.
func (s *Subscriber) processMessage(ctx context.Context, msg *nats.Msg) error {
	msgType := msg.Header.Get(MessageTypeHeader)
	if msgType == "" {
		return fmt.Errorf("malformed message: missing type header, header: %v", msg.Header)
	}

	handler, found := s.handlers[msgType]
	if !found {
		return fmt.Errorf("no handler found for message type: %s", msgType)
	}

	message := handler.NewMessage()
	if err := json.Unmarshal(msg.Data, message); err != nil {
		return fmt.Errorf("failed to unmarshal message of type %s: %w", msgType, err)
	}

	if err := handler.Handle(ctx, message); err != nil {
		return fmt.Errorf("failed to handle message of type %s: %w", msgType, err)
	}

	return nil
}
