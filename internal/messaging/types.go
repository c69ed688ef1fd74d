package messaging

import "time"

type Message interface {
	MessageType() string
}

// IdentifiedMessage is a Message carrying an id JetStream deduplicates on.
type IdentifiedMessage interface {
	Message
	MessageID() string
}

const ProviderChangedType = "ProviderChanged"

// ProviderChanged is broadcast after a write changed the rows behind URI.
type ProviderChanged struct {
	ID        string    `json:"id"`
	URI       string    `json:"uri"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *ProviderChanged) MessageType() string {
	return ProviderChangedType
}

func (m *ProviderChanged) MessageID() string {
	return m.ID
}
