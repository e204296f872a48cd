package internal

import "time"

// Transcript represents a stored conversation with its messages, the unit of export
type Transcript struct {
	ID       string              `json:"id" yaml:"id"`
	Status   string              `json:"status" yaml:"status"`
	Source   string              `json:"source" yaml:"source"` // "sqlite", "postgres"
	Messages []TranscriptMessage `json:"messages" yaml:"messages"`
	Metadata Metadata            `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// TranscriptMessage represents a normalized message
type TranscriptMessage struct {
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Actor     string `json:"actor" yaml:"actor"` // "user", "assistant"
	Content   string `json:"content" yaml:"content"`
}

// Metadata contains additional conversation information
type Metadata struct {
	CreatedAt    string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	MessageCount int    `json:"message_count" yaml:"message_count"`
}

// NewTranscript builds a Transcript from a stored conversation and its messages
func NewTranscript(conv Conversation, messages []PersistedMessage, source string) *Transcript {
	t := &Transcript{
		ID:       conv.ID,
		Status:   string(conv.Status),
		Source:   source,
		Messages: make([]TranscriptMessage, 0, len(messages)),
		Metadata: Metadata{
			MessageCount: len(messages),
		},
	}
	if !conv.CreatedAt.IsZero() {
		t.Metadata.CreatedAt = conv.CreatedAt.UTC().Format(time.RFC3339)
	}

	for _, msg := range messages {
		tm := TranscriptMessage{
			Actor:   string(msg.Role),
			Content: msg.Content,
		}
		if !msg.CreatedAt.IsZero() {
			tm.Timestamp = msg.CreatedAt.UTC().Format(time.RFC3339)
			t.Metadata.UpdatedAt = tm.Timestamp
		}
		t.Messages = append(t.Messages, tm)
	}

	return t
}
