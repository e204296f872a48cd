package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/javalab/jl-assistant/internal"
	"github.com/spf13/cobra"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded conversations",
	Long:  `List every recorded chat conversation, newest first, with its status and message count.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		conversations, err := st.ListConversations(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list conversations: %w", err)
		}

		displayConversations(cmd.OutOrStdout(), conversations, time.Now())
		return nil
	},
}

func displayConversations(out io.Writer, conversations []internal.ConversationSummary, now time.Time) {
	if len(conversations) == 0 {
		fmt.Fprintln(out, headerStyle.Render("📋 No conversations found"))
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📋 Found %d conversation(s)", len(conversations))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Status")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Started")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 80))

	for _, conv := range conversations {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			idStyle.Render(conv.ID),
			statusStyle.Render(string(conv.Status)),
			countStyle.Render(strconv.Itoa(conv.MessageCount)),
			dateStyle.Render(formatStarted(conv.CreatedAt, now)),
		)
	}

	_ = w.Flush()
	fmt.Fprintln(out)
	fmt.Fprintln(out, idStyle.Render("💡 Tip: Use ")+
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render("jl-assistant show "+conversations[0].ID)+
		idStyle.Render(" to read a conversation"))
}

// formatStarted renders t relative to now: a time today, a weekday this
// week, a date otherwise
func formatStarted(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour && t.YearDay() == now.In(t.Location()).YearDay():
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
}
