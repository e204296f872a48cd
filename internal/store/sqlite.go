package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/javalab/jl-assistant/internal"
)

// SQLiteStore keeps conversations in a local SQLite database
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens the database at path and ensures the chat schema exists
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store path is empty")
	}
	db, err := internal.OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := internal.MigrateChatSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	internal.LogDebug("Opened sqlite store at %s", path)
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already migrated database
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Name identifies the store in transcripts
func (s *SQLiteStore) Name() string {
	return DriverSQLite
}

// CreateConversation inserts a new active conversation
func (s *SQLiteStore) CreateConversation(ctx context.Context) (internal.Conversation, error) {
	conv := internal.Conversation{
		ID:        uuid.New().String(),
		Status:    internal.StatusActive,
		CreatedAt: s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_conversations (id, status, created_at) VALUES (?, ?, ?)",
		conv.ID, string(conv.Status), conv.CreatedAt.UnixNano())
	if err != nil {
		return internal.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

// AppendMessage inserts a message into an existing conversation
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, role internal.Role, content string) (internal.PersistedMessage, error) {
	if !role.Valid() {
		return internal.PersistedMessage{}, fmt.Errorf("invalid role %q", role)
	}

	msg := internal.PersistedMessage{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt.UnixNano())
	if err != nil {
		return internal.PersistedMessage{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// GetConversation loads a single conversation
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (internal.Conversation, error) {
	var (
		conv    internal.Conversation
		status  string
		created int64
	)
	row := s.db.QueryRowContext(ctx, "SELECT id, status, created_at FROM chat_conversations WHERE id = ?", id)
	if err := row.Scan(&conv.ID, &status, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return internal.Conversation{}, fmt.Errorf("conversation %s: %w", id, internal.ErrNotFound)
		}
		return internal.Conversation{}, fmt.Errorf("query conversation: %w", err)
	}
	conv.Status = internal.ConversationStatus(status)
	conv.CreatedAt = time.Unix(0, created).UTC()
	return conv, nil
}

// ListConversations returns conversations newest first with their message counts
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]internal.ConversationSummary, error) {
	query := `
		SELECT c.id, c.status, c.created_at, COUNT(m.seq)
		FROM chat_conversations c
		LEFT JOIN chat_messages m ON m.conversation_id = c.id
		GROUP BY c.id, c.status, c.created_at
		ORDER BY c.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var summaries []internal.ConversationSummary
	for rows.Next() {
		var (
			sum     internal.ConversationSummary
			status  string
			created int64
		)
		if err := rows.Scan(&sum.ID, &status, &created, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		sum.Status = internal.ConversationStatus(status)
		sum.CreatedAt = time.Unix(0, created).UTC()
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return summaries, nil
}

// ListMessages returns a conversation's messages in creation order
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]internal.PersistedMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, role, content, created_at FROM chat_messages WHERE conversation_id = ? ORDER BY created_at, seq",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var messages []internal.PersistedMessage
	for rows.Next() {
		var (
			msg     internal.PersistedMessage
			role    string
			created int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &created); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		msg.Role = internal.Role(role)
		msg.CreatedAt = time.Unix(0, created).UTC()
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return messages, nil
}

// DeleteConversation removes a conversation and its messages
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chat_messages WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM chat_conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("conversation %s: %w", id, internal.ErrNotFound)
	}

	return tx.Commit()
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
