package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/javalab/jl-assistant/internal"
	"github.com/javalab/jl-assistant/internal/chat"
	"github.com/javalab/jl-assistant/internal/stream"
	"github.com/javalab/jl-assistant/internal/tui"
	"github.com/spf13/cobra"
)

var (
	chatMessage   string
	chatLineMode  bool
	chatNoPersist bool
)

// settleTimeout bounds how long chat waits on exit for a reply still being
// streamed and stored
const settleTimeout = 5 * time.Second

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the chat widget",
	Long: `Open the JL Assistant chat widget.

On a terminal this starts the full-screen widget. When input or output is
not a terminal, or with --line, each input line is sent as one message and
replies are printed as they stream. In line mode "/new" starts a new chat
and "/quit" leaves.

With --message a single message is sent and the reply printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateChat(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		greeting := chat.DefaultGreeting
		if cfg.Chat.Greeting != "" {
			greeting = cfg.Chat.Greeting
		}

		opts := []chat.Option{chat.WithWelcomeMessage(greeting)}
		if !chatNoPersist {
			st, err := openStore(ctx)
			if err != nil {
				// the chat works without a store; nothing is recorded
				internal.LogWarn("Conversations will not be saved: %v", err)
			} else {
				defer func() {
					if err := st.Close(); err != nil {
						internal.LogWarn("Failed to close store: %v", err)
					}
				}()
				var recOpts []chat.RecorderOption
				if cfg.Chat.PersistGreeting {
					recOpts = append(recOpts, chat.WithGreeting(greeting))
				}
				opts = append(opts, chat.WithRecorder(chat.NewRecorder(st, recOpts...)))
			}
		}

		client := stream.NewClient(cfg.Chat.GatewayURL, cfg.Chat.APIKey)
		ctrl := chat.NewController(client, opts...)
		// runs before the store closes
		defer waitForTurn(ctrl)

		if chatMessage != "" {
			return sendOnce(ctx, ctrl, chatMessage, cmd.OutOrStdout())
		}

		in, out := cmd.InOrStdin(), cmd.OutOrStdout()
		if chatLineMode || !internal.IsTerminal(in) || !internal.IsTerminal(out) {
			return tui.RunLine(ctx, ctrl, in, out)
		}
		return tui.Run(ctx, ctrl)
	},
}

// sendOnce sends text as the first message of a new conversation and prints the reply
func sendOnce(ctx context.Context, ctrl *chat.Controller, text string, out io.Writer) error {
	ctrl.Open()
	ctrl.SetInput(text)
	err := ctrl.Submit(ctx)

	snap := ctrl.Snapshot()
	if n := len(snap.Messages); n > 0 && snap.Messages[n-1].Role == internal.RoleAssistant && n > 2 {
		fmt.Fprintln(out, snap.Messages[n-1].Content)
	}
	if err != nil {
		if snap.Notice != nil {
			return fmt.Errorf("%s", snap.Notice.Description)
		}
		return err
	}
	return nil
}

// waitForTurn lets a reply that outlived the UI finish before the store closes
func waitForTurn(ctrl *chat.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := ctrl.Wait(ctx); err != nil {
		internal.LogWarn("Gave up waiting for the last reply; it may not be saved: %v", err)
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send one message, print the reply and exit")
	chatCmd.Flags().BoolVar(&chatLineMode, "line", false, "Use line mode even on a terminal")
	chatCmd.Flags().BoolVar(&chatNoPersist, "no-persist", false, "Do not record the conversation")
}
