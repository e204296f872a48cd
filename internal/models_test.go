package internal

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{"assistant", RoleAssistant, false},
		{"system", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRole(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewTranscript(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	conv := Conversation{ID: "conv-1", Status: StatusActive, CreatedAt: created}
	messages := []PersistedMessage{
		{ConversationID: "conv-1", Role: RoleUser, Content: "Do you build POS systems?", CreatedAt: created.Add(time.Second)},
		{ConversationID: "conv-1", Role: RoleAssistant, Content: "Yes, we do.", CreatedAt: created.Add(2 * time.Second)},
	}

	tr := NewTranscript(conv, messages, "sqlite")

	if tr.ID != "conv-1" {
		t.Errorf("ID = %v, want conv-1", tr.ID)
	}
	if tr.Status != "active" {
		t.Errorf("Status = %v, want active", tr.Status)
	}
	if tr.Metadata.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", tr.Metadata.MessageCount)
	}
	if tr.Metadata.CreatedAt != "2026-03-01T09:30:00Z" {
		t.Errorf("CreatedAt = %v", tr.Metadata.CreatedAt)
	}
	if tr.Metadata.UpdatedAt != "2026-03-01T09:30:02Z" {
		t.Errorf("UpdatedAt = %v, want last message time", tr.Metadata.UpdatedAt)
	}
	if tr.Messages[0].Actor != "user" || tr.Messages[1].Actor != "assistant" {
		t.Errorf("unexpected actors: %+v", tr.Messages)
	}
}
