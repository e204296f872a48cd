package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/javalab/jl-assistant/internal"
	"github.com/javalab/jl-assistant/internal/config"
	"github.com/javalab/jl-assistant/internal/store"
	"github.com/spf13/cobra"
)

var (
	verbose     bool
	configPath  string
	storeDriver string
	storeDSN    string
	version     string = "dev"
	commit      string = "unknown"
	date        string = "unknown"
)

// cfg is loaded before any subcommand runs
var cfg = config.Default()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jl-assistant",
	Short: "Chat with the JL Assistant and manage its conversations",
	Long: `jl-assistant is the terminal client, gateway and admin tool for the
JL Assistant chat widget.

The chat streams replies token by token from the chat gateway and records
every conversation in a SQLite or PostgreSQL store.

Quick Start:
  jl-assistant chat                      # Open the chat widget
  jl-assistant chat -m "Hi there"        # Send one message and print the reply
  jl-assistant serve                     # Run the chat gateway
  jl-assistant list                      # List recorded conversations
  jl-assistant show <conversation-id>    # Read one conversation
  jl-assistant export --format md        # Export conversations as Markdown

Configuration is read from ~/.jl-assistant/config.yaml, a .env file and
JL_* environment variables, in that order.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(config.Options{
			Path:     configPath,
			EnvFiles: []string{".env"},
		})
		if err != nil {
			return err
		}
		if storeDriver != "" {
			loaded.Store.Driver = storeDriver
		}
		if storeDSN != "" {
			loaded.Store.DSN = storeDSN
		}

		internal.ConfigureLogger(cmd.ErrOrStderr(), loaded.Log.Level, loaded.Log.Format)
		if verbose {
			internal.SetVerbose(true)
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		internal.PrintError(fmt.Sprintf("Error: %v", err))
		os.Exit(1)
	}
}

// SetVersionInfo records build metadata injected by the linker
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// openStore opens the configured conversation store
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	return st, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.jl-assistant/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store", "", "Conversation store driver (sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&storeDSN, "dsn", "", "Store location: SQLite file path or PostgreSQL URL")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
