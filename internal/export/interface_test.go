package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/javalab/jl-assistant/internal"
	"gopkg.in/yaml.v3"
)

// storedTranscript builds a transcript the way export does, from store rows
func storedTranscript() *internal.Transcript {
	start := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)
	conv := internal.Conversation{ID: "conv-7", Status: internal.StatusActive, CreatedAt: start}
	messages := []internal.PersistedMessage{
		{ConversationID: "conv-7", Role: internal.RoleUser, Content: "How much does a website cost?", CreatedAt: start.Add(time.Second)},
		{ConversationID: "conv-7", Role: internal.RoleAssistant, Content: "It depends on scope.\nLet's talk!", CreatedAt: start.Add(2 * time.Second)},
	}
	return internal.NewTranscript(conv, messages, "sqlite")
}

func TestNewExporter(t *testing.T) {
	for _, format := range Formats {
		t.Run(format, func(t *testing.T) {
			exporter, err := NewExporter(format)
			if err != nil {
				t.Fatalf("NewExporter(%q) error = %v", format, err)
			}
			if got := exporter.Extension(); got != format {
				t.Errorf("Extension() = %q, want %q", got, format)
			}
		})
	}

	t.Run("markdown alias", func(t *testing.T) {
		exporter, err := NewExporter("markdown")
		if err != nil {
			t.Fatalf("NewExporter() error = %v", err)
		}
		if got := exporter.Extension(); got != "md" {
			t.Errorf("Extension() = %q, want md", got)
		}
	})

	for _, format := range []string{"xml", "", "JSON"} {
		t.Run("unsupported "+format, func(t *testing.T) {
			exporter, err := NewExporter(format)
			if err == nil {
				t.Fatalf("NewExporter(%q) = %T, want error", format, exporter)
			}
			for _, f := range Formats {
				if !strings.Contains(err.Error(), f) {
					t.Errorf("error %q does not list %q", err, f)
				}
			}
		})
	}
}

func TestExporters_StoredTranscript(t *testing.T) {
	want := storedTranscript()

	tests := []struct {
		format string
		check  func(t *testing.T, out []byte)
	}{
		{
			format: "json",
			check: func(t *testing.T, out []byte) {
				var got internal.Transcript
				if err := json.Unmarshal(out, &got); err != nil {
					t.Fatalf("invalid JSON: %v", err)
				}
				assertSameTranscript(t, want, &got)
			},
		},
		{
			format: "yaml",
			check: func(t *testing.T, out []byte) {
				var got internal.Transcript
				if err := yaml.Unmarshal(out, &got); err != nil {
					t.Fatalf("invalid YAML: %v", err)
				}
				assertSameTranscript(t, want, &got)
			},
		},
		{
			format: "jsonl",
			check: func(t *testing.T, out []byte) {
				lines := strings.Split(strings.TrimSpace(string(out)), "\n")
				if len(lines) != len(want.Messages) {
					t.Fatalf("got %d lines, want %d", len(lines), len(want.Messages))
				}
				for i, line := range lines {
					var got jsonlLine
					if err := json.Unmarshal([]byte(line), &got); err != nil {
						t.Fatalf("line %d: %v", i, err)
					}
					msg := want.Messages[i]
					if got.Conversation != want.ID || got.Actor != msg.Actor || got.Content != msg.Content || got.Timestamp != msg.Timestamp {
						t.Errorf("line %d = %+v, want %+v", i, got, msg)
					}
				}
			},
		},
		{
			format: "md",
			check: func(t *testing.T, out []byte) {
				text := string(out)
				for _, s := range []string{"# Conversation conv-7", "How much does a website cost?", "JL Assistant", "Let's talk!"} {
					if !strings.Contains(text, s) {
						t.Errorf("markdown missing %q", s)
					}
				}
				if strings.Index(text, "website cost") > strings.Index(text, "depends on scope") {
					t.Error("messages are out of order")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exporter, err := NewExporter(tt.format)
			if err != nil {
				t.Fatalf("NewExporter() error = %v", err)
			}
			var buf bytes.Buffer
			if err := exporter.Export(want, &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			tt.check(t, buf.Bytes())
		})
	}
}

func assertSameTranscript(t *testing.T, want, got *internal.Transcript) {
	t.Helper()
	if got.ID != want.ID || got.Status != want.Status || got.Source != want.Source {
		t.Errorf("header = %s/%s/%s, want %s/%s/%s", got.ID, got.Status, got.Source, want.ID, want.Status, want.Source)
	}
	if got.Metadata != want.Metadata {
		t.Errorf("metadata = %+v, want %+v", got.Metadata, want.Metadata)
	}
	if len(got.Messages) != len(want.Messages) {
		t.Fatalf("got %d messages, want %d", len(got.Messages), len(want.Messages))
	}
	for i := range want.Messages {
		if got.Messages[i] != want.Messages[i] {
			t.Errorf("message %d = %+v, want %+v", i, got.Messages[i], want.Messages[i])
		}
	}
}
