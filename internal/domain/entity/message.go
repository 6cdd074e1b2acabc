package entity

import (
	"encoding/json"
	"fmt"
)

// Message is a rendered chat notification ready to be handed to a transport.
// Body is opaque to everything except the card renderer and the platform.
type Message struct {
	ReviewID    string
	Kind        PushType
	Fingerprint string
	Body        json.RawMessage
}

// DedupKey identifies the message content for at-least-once delivery dedup.
// Two messages with the same key announce the same review snapshot the same way.
func (m Message) DedupKey() string {
	return fmt.Sprintf("%s:%s:%s", m.ReviewID, m.Kind, m.Fingerprint)
}
