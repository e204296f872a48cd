package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/javalab/jl-assistant/internal"
)

// jsonlLine is one message of a JSONL export. The conversation ID is
// repeated so several transcripts can share a file.
type jsonlLine struct {
	Conversation string `json:"conversation"`
	Actor        string `json:"actor"`
	Content      string `json:"content"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// JSONLExporter exports transcripts in JSONL format (one message per line)
type JSONLExporter struct{}

// Export exports a transcript to JSONL format
func (e *JSONLExporter) Export(transcript *internal.Transcript, w io.Writer) error {
	if transcript == nil {
		return fmt.Errorf("nil transcript")
	}
	enc := json.NewEncoder(w)

	for _, msg := range transcript.Messages {
		line := jsonlLine{
			Conversation: transcript.ID,
			Actor:        msg.Actor,
			Content:      msg.Content,
			Timestamp:    msg.Timestamp,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
