package internal

import (
	"fmt"
	"time"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles the chat accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ParseRole converts a stored role string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Message is one entry of the in-memory conversation, also the wire shape
// sent to the chat gateway.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// ConversationStatus is set once at creation; the chat never changes it.
type ConversationStatus string

const (
	StatusActive ConversationStatus = "active"
	StatusClosed ConversationStatus = "closed"
)

// Conversation is the stored record created on the first send of a session
type Conversation struct {
	ID        string             `json:"id" yaml:"id"`
	Status    ConversationStatus `json:"status" yaml:"status"`
	CreatedAt time.Time          `json:"created_at" yaml:"created_at"`
}

// PersistedMessage is a message written to the store
type PersistedMessage struct {
	ID             string    `json:"id" yaml:"id"`
	ConversationID string    `json:"conversation_id" yaml:"conversation_id"`
	Role           Role      `json:"role" yaml:"role"`
	Content        string    `json:"content" yaml:"content"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

// ConversationSummary is a conversation plus its message count, for listings
type ConversationSummary struct {
	Conversation
	MessageCount int `json:"message_count" yaml:"message_count"`
}
