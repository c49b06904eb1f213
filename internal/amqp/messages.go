package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LedgerChangedMessage announces that some process wrote to the ledger.
// It carries no records: consumers reload from the backend.
type LedgerChangedMessage struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChangedMessage creates a message stamped with a fresh id.
// origin identifies the publishing process so that it can skip its own
// messages when it also consumes.
func NewLedgerChangedMessage(origin, event string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		ID:        uuid.NewString(),
		Origin:    origin,
		Event:     event,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes and sanity-checks a message body.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("message %q has no event name", msg.ID)
	}
	return &msg, nil
}
