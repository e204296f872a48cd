package internal

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenDatabase(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr bool
	}{
		{
			name: "new file database",
			path: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "nested", "chat.db")
			},
			wantErr: false,
		},
		{
			name: "in-memory database",
			path: func(t *testing.T) string {
				return ":memory:"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := OpenDatabase(tt.path(t))
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenDatabase() error = %v, wantErr %v", err, tt.wantErr)
			}
			defer db.Close()

			if err := MigrateChatSchema(db); err != nil {
				t.Fatalf("MigrateChatSchema() error = %v", err)
			}
			// Idempotent
			if err := MigrateChatSchema(db); err != nil {
				t.Fatalf("second MigrateChatSchema() error = %v", err)
			}

			var count int
			row := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('chat_conversations','chat_messages')")
			if err := row.Scan(&count); err != nil {
				t.Fatalf("query sqlite_master: %v", err)
			}
			if count != 2 {
				t.Errorf("expected 2 chat tables, got %d", count)
			}
		})
	}
}

func TestOpenDatabaseReadOnly_Missing(t *testing.T) {
	_, err := OpenDatabaseReadOnly(filepath.Join(t.TempDir(), "nonexistent.db"))
	if err == nil {
		t.Fatal("OpenDatabaseReadOnly() should fail for a missing file")
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Errorf("expected *StorageError, got %T", err)
	}
}

func TestOpenDatabaseReadOnly_RejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := OpenDatabase(path)
	if err != nil {
		t.Fatalf("OpenDatabase() error = %v", err)
	}
	if err := MigrateChatSchema(db); err != nil {
		t.Fatalf("MigrateChatSchema() error = %v", err)
	}
	db.Close()

	ro, err := OpenDatabaseReadOnly(path)
	if err != nil {
		t.Fatalf("OpenDatabaseReadOnly() error = %v", err)
	}
	defer ro.Close()

	if _, err := ro.Exec("INSERT INTO chat_conversations (id, status, created_at) VALUES ('x', 'active', 0)"); err == nil {
		t.Error("write on read-only database should fail")
	}
}
