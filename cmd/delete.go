package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/javalab/jl-assistant/internal"
	"github.com/spf13/cobra"
)

var deleteYes bool

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation and its messages",
	Long: `Delete a recorded conversation together with all of its messages.

The command asks for confirmation unless --yes is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if _, err := st.GetConversation(ctx, id); err != nil {
			if errors.Is(err, internal.ErrNotFound) {
				return fmt.Errorf("conversation not found: %s", id)
			}
			return err
		}
		messages, err := st.ListMessages(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to read conversation: %w", err)
		}

		if !deleteYes {
			fmt.Fprintf(cmd.OutOrStdout(), "Delete conversation %s and its %d message(s)? [y/N] ", id, len(messages))
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			switch strings.ToLower(strings.TrimSpace(answer)) {
			case "y", "yes":
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}
		}

		if err := st.DeleteConversation(ctx, id); err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		internal.LogInfo("Deleted conversation %s (%d messages)", id, len(messages))
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation %s\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Delete without asking")
}
