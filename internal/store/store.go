// Package store persists chat conversations and their messages.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/javalab/jl-assistant/internal"
)

// Driver names accepted by Open
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Writer is the append-only surface the chat widget needs
type Writer interface {
	CreateConversation(ctx context.Context) (internal.Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, role internal.Role, content string) (internal.PersistedMessage, error)
}

// Store is the full conversation store, including the admin-side reads and deletes
type Store interface {
	Writer
	GetConversation(ctx context.Context, id string) (internal.Conversation, error)
	ListConversations(ctx context.Context) ([]internal.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID string) ([]internal.PersistedMessage, error)
	DeleteConversation(ctx context.Context, id string) error
	Name() string
	Close() error
}

// Open creates a store for the given driver. For sqlite the dsn is a file
// path (or ":memory:"); for postgres it is a connection URL.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres, "postgresql":
		return OpenPostgres(ctx, PostgresConfig{DSN: dsn})
	default:
		return nil, fmt.Errorf("unsupported store driver: %s (supported: sqlite, postgres)", driver)
	}
}

// Transcript loads a conversation and its messages as an exportable transcript
func Transcript(ctx context.Context, s Store, id string) (*internal.Transcript, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return internal.NewTranscript(conv, messages, s.Name()), nil
}
