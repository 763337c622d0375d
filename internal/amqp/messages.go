package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidMessage is returned for bodies that decode but carry no reason.
var ErrInvalidMessage = errors.New("invalid reload message")

// ReloadMessage asks every server to rebuild its dataset snapshot from the
// configured sources. It carries no data; servers re-read their sources.
type ReloadMessage struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason"`
	Source      string    `json:"source,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewReloadMessage creates a reload request stamped with the current time.
func NewReloadMessage(reason, source string) *ReloadMessage {
	return &ReloadMessage{
		ID:          uuid.NewString(),
		Reason:      reason,
		Source:      source,
		RequestedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReloadMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReloadMessageFromJSON decodes and checks a message body.
func ReloadMessageFromJSON(data []byte) (*ReloadMessage, error) {
	var msg ReloadMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Reason == "" {
		return nil, ErrInvalidMessage
	}
	return &msg, nil
}
