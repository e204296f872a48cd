package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/javalab/jl-assistant/internal"
	"github.com/javalab/jl-assistant/internal/gateway"
	"github.com/spf13/cobra"
)

var serveListen string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat gateway",
	Long: `Run the chat gateway the widget talks to.

The gateway accepts the conversation so far, prepends the system prompt and
streams the model's reply back as server-sent events. It also serves
/healthz and Prometheus metrics on /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveListen != "" {
			cfg.Gateway.Listen = serveListen
		}
		if err := cfg.ValidateGateway(); err != nil {
			return err
		}

		prompt, err := gateway.LoadSystemPrompt(cfg.Gateway.SystemPromptFile)
		if err != nil {
			return err
		}
		if cfg.Gateway.UpstreamKey == "" {
			internal.LogWarn("No upstream API key configured (JL_UPSTREAM_API_KEY); chat requests will fail")
		}

		srv := gateway.New(gateway.Config{
			Path:         cfg.Gateway.Path,
			UpstreamURL:  cfg.Gateway.UpstreamURL,
			UpstreamKey:  cfg.Gateway.UpstreamKey,
			Model:        cfg.Gateway.Model,
			SystemPrompt: prompt,
			CORSOrigin:   cfg.Gateway.CORSOrigin,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx, cfg.Gateway.Listen)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from config, :8787)")
}
