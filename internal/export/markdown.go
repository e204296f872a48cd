package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/javalab/jl-assistant/internal"
)

// actorLabels maps stored roles to the names shown in the widget
var actorLabels = map[string]string{
	string(internal.RoleUser):      "You",
	string(internal.RoleAssistant): "JL Assistant",
}

// MarkdownExporter exports transcripts in Markdown format
type MarkdownExporter struct{}

// Export exports a transcript to Markdown format
func (e *MarkdownExporter) Export(transcript *internal.Transcript, w io.Writer) error {
	if transcript == nil {
		return fmt.Errorf("nil transcript")
	}

	// Header
	_, _ = fmt.Fprintf(w, "# Conversation %s\n\n", transcript.ID)

	if transcript.Status != "" {
		_, _ = fmt.Fprintf(w, "**Status:** %s  \n", transcript.Status)
	}
	if transcript.Source != "" {
		_, _ = fmt.Fprintf(w, "**Source:** %s  \n", transcript.Source)
	}
	if transcript.Metadata.CreatedAt != "" {
		_, _ = fmt.Fprintf(w, "**Started:** %s  \n", transcript.Metadata.CreatedAt)
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(transcript.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Messages\n\n")

	for i, msg := range transcript.Messages {
		timestamp := ""
		if msg.Timestamp != "" {
			timestamp = fmt.Sprintf(" (%s)", msg.Timestamp)
		}

		label, ok := actorLabels[msg.Actor]
		if !ok {
			label = msg.Actor
		}

		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", label, timestamp, escapeMarkdown(msg.Content))

		if i < len(transcript.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

// escapeMarkdown escapes emphasis markers outside fenced code blocks
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	inCodeBlock := false

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "```"):
			inCodeBlock = !inCodeBlock
		case !inCodeBlock:
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
