package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/javalab/jl-assistant/internal"
	"github.com/javalab/jl-assistant/internal/store"
	"github.com/spf13/cobra"
)

var (
	limit int
	since string
)

var (
	// Styles for show command
	conversationHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	conversationMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show messages for a specific conversation",
	Long:  `Display the messages of a recorded conversation in the order they were sent.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		var sinceTime time.Time
		if since != "" {
			parsed, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return fmt.Errorf("invalid --since timestamp format (expected RFC3339): %w", err)
			}
			sinceTime = parsed
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		transcript, err := store.Transcript(cmd.Context(), st, id)
		if err != nil {
			if errors.Is(err, internal.ErrNotFound) {
				return fmt.Errorf("conversation not found: %s (use 'jl-assistant list' to see recorded conversations)", id)
			}
			return err
		}

		out := cmd.OutOrStdout()
		displayTranscriptHeader(out, transcript)

		messages := filterSince(transcript.Messages, sinceTime)
		total := len(messages)
		if limit > 0 && limit < total {
			messages = messages[:limit]
		}

		for i, msg := range messages {
			displayMessage(out, i+1, msg, total)
		}

		if limit > 0 && limit < total {
			fmt.Fprintln(out)
			fmt.Fprintln(out, lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Italic(true).
				Render(fmt.Sprintf("... (%d more message(s))", total-limit)))
		}

		return nil
	},
}

// filterSince keeps messages stamped at or after t. A zero t keeps everything.
func filterSince(messages []internal.TranscriptMessage, t time.Time) []internal.TranscriptMessage {
	if t.IsZero() {
		return messages
	}
	filtered := make([]internal.TranscriptMessage, 0, len(messages))
	for _, msg := range messages {
		ts, err := time.Parse(time.RFC3339, msg.Timestamp)
		if err != nil {
			continue
		}
		if !ts.Before(t) {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

func displayTranscriptHeader(out io.Writer, transcript *internal.Transcript) {
	fmt.Fprintln(out, conversationHeaderStyle.Render(fmt.Sprintf("💬 Conversation %s", transcript.ID)))

	metaParts := []string{fmt.Sprintf("Status: %s", transcript.Status)}
	if transcript.Metadata.CreatedAt != "" {
		metaParts = append(metaParts, fmt.Sprintf("Started: %s", transcript.Metadata.CreatedAt))
	}
	metaParts = append(metaParts, fmt.Sprintf("Messages: %d", len(transcript.Messages)))
	metaParts = append(metaParts, fmt.Sprintf("Store: %s", transcript.Source))

	fmt.Fprintln(out, conversationMetaStyle.Render(strings.Join(metaParts, " • ")))
	fmt.Fprintln(out)
}

func displayMessage(out io.Writer, index int, msg internal.TranscriptMessage, total int) {
	var actorStyle lipgloss.Style
	var actorLabel string

	switch internal.Role(msg.Actor) {
	case internal.RoleUser:
		actorStyle = userMessageStyle
		actorLabel = "👤 Visitor"
	case internal.RoleAssistant:
		actorStyle = assistantMessageStyle
		actorLabel = "🤖 JL Assistant"
	default:
		actorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
		actorLabel = fmt.Sprintf("🔧 %s", msg.Actor)
	}

	header := actorStyle.Render(actorLabel) + " " + timestampStyle.Render(fmt.Sprintf("[%d/%d]", index, total))
	if msg.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, msg.Timestamp); err == nil {
			header += " " + timestampStyle.Render(t.Local().Format("15:04:05"))
		} else {
			header += " " + timestampStyle.Render(msg.Timestamp)
		}
	}
	fmt.Fprintln(out, header)

	content := strings.TrimSpace(msg.Content)
	if content != "" {
		fmt.Fprintln(out, messageContentStyle.Render(wrapText(content, 80)))
	} else {
		fmt.Fprintln(out, messageContentStyle.Foreground(lipgloss.Color("240")).Render("(empty message)"))
	}

	fmt.Fprintln(out)
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		currentLine := ""
		for _, word := range strings.Fields(line) {
			switch {
			case currentLine == "":
				currentLine = word
			case len(currentLine)+len(word)+1 > width:
				wrapped = append(wrapped, currentLine)
				currentLine = word
			default:
				currentLine += " " + word
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of messages to show")
	showCmd.Flags().StringVar(&since, "since", "", "Show messages since timestamp (RFC3339)")
}
