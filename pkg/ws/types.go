// Package ws holds the wire types pushed to live wall subscribers.
package ws

import (
	"time"

	"birthday-wall/backend/internal/models"
)

// Event types
const (
	// EventHello is sent once after a subscriber connects
	EventHello = "hello"
	// EventMessageCreated carries a single newly appended message
	EventMessageCreated = "message.created"
	// EventMessagesReplaced tells subscribers to refetch the whole wall
	EventMessagesReplaced = "messages.replaced"
	// EventPong answers a client ping
	EventPong = "pong"
)

// Envelope is every frame sent over the socket
type Envelope struct {
	Type    string    `json:"type"`
	SentAt  time.Time `json:"sentAt"`
	Content any       `json:"content,omitempty"`
}

// Hello describes the wall at connection time
type Hello struct {
	ClientID string `json:"clientId"`
	Count    int    `json:"count"`
}

// MessageCreated is the content of EventMessageCreated
type MessageCreated struct {
	Message models.Message `json:"message"`
}

// MessagesReplaced is the content of EventMessagesReplaced
type MessagesReplaced struct {
	Count  int    `json:"count"`
	Reason string `json:"reason"`
}

// Inbound is a frame sent by a subscriber. Only "ping" is understood.
type Inbound struct {
	Type string `json:"type"`
}
