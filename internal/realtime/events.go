// Package realtime maintains the live event channel between a viewer and
// the backend for a single negotiation.
package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/zulandar/procurebot/internal/models"
)

// Event names on the wire.
const (
	EventJoin      = "joinNegotiation"
	EventChat      = "chatMessage"
	EventConclude  = "concludeNegotiation"
	EventConcluded = "negotiationConcluded"
)

// Event is one JSON envelope on the channel.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent encodes payload into an envelope named name.
func NewEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("realtime: encode %s: %w", name, err)
	}
	return Event{Name: name, Data: data}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("realtime: %s: empty payload", e.Name)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("realtime: decode %s: %w", e.Name, err)
	}
	return nil
}

// JoinPayload subscribes the connection to a negotiation room.
type JoinPayload struct {
	NegotiationID string      `json:"negotiationId"`
	UserType      models.Role `json:"userType"`
}

// ChatPayload carries an outbound chat message.
type ChatPayload struct {
	NegotiationID string             `json:"negotiationId"`
	MessageObj    models.ChatMessage `json:"messageObj"`
}

// ConcludePayload asks the backend to conclude a negotiation.
type ConcludePayload struct {
	NegotiationID string      `json:"negotiationId"`
	Closer        models.Role `json:"closer"`
}

// ConcludedPayload announces that a negotiation was concluded.
type ConcludedPayload struct {
	Closer models.Role      `json:"closer"`
	Time   models.Timestamp `json:"time"`
}
