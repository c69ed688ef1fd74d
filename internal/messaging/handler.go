package messaging

import (
	"context"
	"fmt"
)

// Handler processes the messages of one type.
type Handler interface {
	// NewMessage returns an empty message the payload is decoded into.
	NewMessage() Message
	Handle(ctx context.Context, message Message) error
}

// HandlerFunc adapts a function handling ProviderChanged messages to a Handler.
type HandlerFunc func(ctx context.Context, message *ProviderChanged) error

func (f HandlerFunc) NewMessage() Message {
	return &ProviderChanged{}
}

func (f HandlerFunc) Handle(ctx context.Context, message Message) error {
	changed, ok := message.(*ProviderChanged)
	if !ok {
		return fmt.Errorf("unexpected message type: %T", message)
	}

	return f(ctx, changed)
}
