package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/javalab/jl-assistant/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowCommand(t *testing.T) {
	dbPath := fixtureStore(t)

	tests := []struct {
		name     string
		args     []string
		want     []string
		notWant  []string
		wantErr  bool
		errMatch string
	}{
		{
			name: "all messages in order",
			args: []string{"show", "conv-newer"},
			want: []string{
				"Conversation conv-newer",
				"Messages: 3",
				"Store: sqlite",
				"[1/3]",
				"How much does a website cost?",
				"It depends on scope. Let's talk!",
				"[3/3]",
			},
		},
		{
			name:    "limit",
			args:    []string{"show", "conv-newer", "--limit", "1"},
			want:    []string{"[1/3]", "(2 more message(s))"},
			notWant: []string{"It depends on scope"},
		},
		{
			name:    "since",
			args:    []string{"show", "conv-newer", "--since", "2026-03-02T15:30:02Z"},
			want:    []string{"[1/2]", "It depends on scope", "Thanks"},
			notWant: []string{"How much does a website cost?"},
		},
		{
			name:     "invalid since",
			args:     []string{"show", "conv-newer", "--since", "yesterday"},
			wantErr:  true,
			errMatch: "RFC3339",
		},
		{
			name:     "unknown conversation",
			args:     []string{"show", "missing"},
			wantErr:  true,
			errMatch: "conversation not found: missing",
		},
		{
			name:    "missing argument",
			args:    []string{"show"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--dsn", dbPath}, tt.args...)
			out, err := executeCommand(t, args...)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMatch != "" {
					assert.Contains(t, err.Error(), tt.errMatch)
				}
				return
			}
			require.NoError(t, err)
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestShowCommand_UserMessageBeforeReply(t *testing.T) {
	out, err := executeCommand(t, "--dsn", fixtureStore(t), "show", "conv-older")
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "Do you build mobile apps?"), strings.Index(out, "Yes, we build iOS and Android apps."))
}

func TestFilterSince(t *testing.T) {
	messages := []internal.TranscriptMessage{
		{Actor: "user", Content: "a", Timestamp: "2026-01-01T10:00:00Z"},
		{Actor: "assistant", Content: "b", Timestamp: "2026-01-01T10:00:05Z"},
		{Actor: "user", Content: "no timestamp"},
	}

	assert.Len(t, filterSince(messages, time.Time{}), 3, "zero time keeps everything")

	got := filterSince(messages, time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC))
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Content, "the bound is inclusive")
}

func TestDisplayMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  internal.TranscriptMessage
		want string
	}{
		{name: "user", msg: internal.TranscriptMessage{Actor: "user", Content: "hi"}, want: "Visitor"},
		{name: "assistant", msg: internal.TranscriptMessage{Actor: "assistant", Content: "hello"}, want: "JL Assistant"},
		{name: "other", msg: internal.TranscriptMessage{Actor: "system", Content: "x"}, want: "system"},
		{name: "empty content", msg: internal.TranscriptMessage{Actor: "user", Content: "  "}, want: "(empty message)"},
		{name: "unparsed timestamp", msg: internal.TranscriptMessage{Actor: "user", Content: "x", Timestamp: "soon"}, want: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			displayMessage(&buf, 1, tt.msg, 1)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		width     int
		wantLines int
	}{
		{name: "short", text: "hello world", width: 80, wantLines: 1},
		{name: "wraps on words", text: "aaa bbb ccc ddd", width: 7, wantLines: 2},
		{name: "keeps newlines", text: "one\ntwo", width: 80, wantLines: 2},
		{name: "long word on its own line", text: "x " + strings.Repeat("y", 20), width: 10, wantLines: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapText(tt.text, tt.width)
			assert.Len(t, strings.Split(got, "\n"), tt.wantLines, "wrapped: %q", got)
		})
	}
}
