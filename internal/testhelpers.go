package internal

import (
	"time"
)

// CreateTestTranscript creates a test transcript with a greeting, a
// question and a reply
func CreateTestTranscript(id string) *Transcript {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Format(time.RFC3339)
	return &Transcript{
		ID:     id,
		Status: string(StatusActive),
		Source: "sqlite",
		Messages: []TranscriptMessage{
			{
				Actor:     string(RoleUser),
				Content:   "Hello, what services do you offer?",
				Timestamp: ts,
			},
			{
				Actor:     string(RoleAssistant),
				Content:   "We build websites and mobile apps.",
				Timestamp: ts,
			},
		},
		Metadata: Metadata{
			CreatedAt:    ts,
			UpdatedAt:    ts,
			MessageCount: 2,
		},
	}
}

// CreateTestTranscriptWithMessages creates a test transcript with custom messages
func CreateTestTranscriptWithMessages(id string, messages []TranscriptMessage) *Transcript {
	return &Transcript{
		ID:       id,
		Status:   string(StatusActive),
		Source:   "sqlite",
		Messages: messages,
		Metadata: Metadata{
			MessageCount: len(messages),
		},
	}
}
