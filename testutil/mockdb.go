package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const chatSchema = `
CREATE TABLE IF NOT EXISTS chat_conversations (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'active',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	conversation_id TEXT NOT NULL REFERENCES chat_conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);`

// OpenChatDB opens (creating) a SQLite database at path with the chat tables
func OpenChatDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", path))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if _, err := db.Exec(chatSchema); err != nil {
		db.Close()
		t.Fatalf("Failed to create chat tables: %v", err)
	}
	return db
}

// InsertConversation inserts an active conversation
func InsertConversation(t *testing.T, db *sql.DB, id string, createdAt time.Time) {
	t.Helper()
	insertSQL := "INSERT INTO chat_conversations (id, status, created_at) VALUES (?, 'active', ?)"
	if _, err := db.Exec(insertSQL, id, createdAt.UnixNano()); err != nil {
		t.Fatalf("Failed to insert conversation: %v", err)
	}
}

// InsertMessage inserts a message into a conversation
func InsertMessage(t *testing.T, db *sql.DB, conversationID, role, content string, createdAt time.Time) {
	t.Helper()
	insertSQL := "INSERT INTO chat_messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := db.Exec(insertSQL, uuid.New().String(), conversationID, role, content, createdAt.UnixNano()); err != nil {
		t.Fatalf("Failed to insert message: %v", err)
	}
}

// CountRows returns the number of rows in a chat table
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
