package testutil

import (
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DeltaLine renders one SSE data line carrying a chat completion chunk.
// An empty content omits the field, like providers do for role-only chunks.
func DeltaLine(t *testing.T, content string) string {
	t.Helper()
	chunk := openai.ChatCompletionStreamResponse{
		ID:      "chatcmpl-test",
		Object:  "chat.completion.chunk",
		Created: 1700000000,
		Model:   "test-model",
		Choices: []openai.ChatCompletionStreamChoice{
			{
				Index: 0,
				Delta: openai.ChatCompletionStreamChoiceDelta{Content: content},
			},
		},
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("Failed to marshal stream chunk: %v", err)
	}
	return "data: " + string(data) + "\n"
}

// SSEBody renders a stream of deltas, each followed by a blank line, and
// terminated by data: [DONE]
func SSEBody(t *testing.T, tokens ...string) string {
	t.Helper()
	var sb strings.Builder
	for _, tok := range tokens {
		sb.WriteString(DeltaLine(t, tok))
		sb.WriteString("\n")
	}
	sb.WriteString("data: [DONE]\n")
	return sb.String()
}

// SplitAt cuts data at the given ascending offsets
func SplitAt(data []byte, offsets ...int) [][]byte {
	var chunks [][]byte
	prev := 0
	for _, off := range offsets {
		if off <= prev || off >= len(data) {
			continue
		}
		chunks = append(chunks, data[prev:off])
		prev = off
	}
	return append(chunks, data[prev:])
}

// ChunkedReader yields one chunk per Read call, then TailErr (io.EOF by default)
type ChunkedReader struct {
	chunks  [][]byte
	TailErr error
	Closed  bool
}

// NewChunkedReader creates a reader over the given chunks
func NewChunkedReader(chunks ...[]byte) *ChunkedReader {
	return &ChunkedReader{chunks: chunks, TailErr: io.EOF}
}

func (r *ChunkedReader) Read(p []byte) (int, error) {
	for len(r.chunks) > 0 && len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	if len(r.chunks) == 0 {
		return 0, r.TailErr
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	return n, nil
}

func (r *ChunkedReader) Close() error {
	r.Closed = true
	return nil
}

// FixtureConversation describes a conversation seeded by CreateChatFixture
type FixtureConversation struct {
	ID        string
	CreatedAt time.Time
	Messages  [][2]string // role, content
}

// DefaultConversations are the conversations CreateChatFixture writes
var DefaultConversations = []FixtureConversation{
	{
		ID:        "conv-older",
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Messages: [][2]string{
			{"user", "Do you build mobile apps?"},
			{"assistant", "Yes, we build iOS and Android apps."},
		},
	},
	{
		ID:        "conv-newer",
		CreatedAt: time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC),
		Messages: [][2]string{
			{"user", "How much does a website cost?"},
			{"assistant", "It depends on scope. Let's talk!"},
			{"user", "Thanks"},
		},
	},
}

// CreateChatFixture creates a chat database at dbPath seeded with
// DefaultConversations, one second between messages
func CreateChatFixture(t *testing.T, dbPath string) string {
	t.Helper()
	db := OpenChatDB(t, dbPath)
	defer func() { _ = db.Close() }()

	for _, conv := range DefaultConversations {
		InsertConversation(t, db, conv.ID, conv.CreatedAt)
		for i, m := range conv.Messages {
			InsertMessage(t, db, conv.ID, m[0], m[1], conv.CreatedAt.Add(time.Duration(i+1)*time.Second))
		}
	}
	return dbPath
}
