package conductor

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InboundPrefix is the wallet key prefix of received messages.
const InboundPrefix = "inbound/"

// Message is an inbound message as persisted in the wallet.
type Message struct {
	ID        string    `json:"id"`
	Transport string    `json:"transport"`
	Remote    string    `json:"remote,omitempty"`
	Received  time.Time `json:"received"`
	Payload   []byte    `json:"payload"`
}

func newMessage(transport, remote string, payload []byte) Message {
	return Message{
		ID:        uuid.NewString(),
		Transport: transport,
		Remote:    remote,
		Received:  time.Now().UTC(),
		Payload:   payload,
	}
}

// Key returns the wallet key the message is stored under.
func (m Message) Key() string {
	return InboundPrefix + m.ID
}

// DecodeMessage decodes a message read back from the wallet.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

func (m Message) encode() ([]byte, error) {
	return json.Marshal(m)
}

type ack struct {
	ID string `json:"id"`
}
