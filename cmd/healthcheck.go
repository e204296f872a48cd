package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"github.com/javalab/jl-assistant/internal/config"
	"github.com/spf13/cobra"
)

var (
	healthcheckSkipGateway bool
	healthcheckTimeout     time.Duration
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check configuration, store access and gateway reachability",
	Long: `Check the health of jl-assistant by verifying:
  • The configuration is complete
  • The conversation store opens and can be read
  • The chat gateway answers on /healthz

This command is useful for debugging deployments, especially in CI/CD environments.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()
		var failures int

		fmt.Fprintln(out, sectionStyle.Render("🔍 JL Assistant Health Check"))
		fmt.Fprintln(out)

		// Step 1: Configuration
		fmt.Fprintln(out, infoStyle.Render("Step 1: Checking configuration..."))
		if err := cfg.ValidateChat(); err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Chat configuration:"), err)
			failures++
		} else {
			fmt.Fprintln(out, successStyle.Render("✅ Chat configuration complete"))
		}
		if err := cfg.ValidateGateway(); err != nil {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Gateway configuration:"), err)
		}
		if cfg.Gateway.UpstreamKey == "" {
			fmt.Fprintln(out, warningStyle.Render("⚠️  No upstream API key; 'serve' will answer chat requests with an error"))
		}
		if verbose {
			path := configPath
			if path == "" {
				path = config.DefaultPath()
			}
			fmt.Fprintf(out, "   Config file: %s\n", path)
			fmt.Fprintf(out, "   Gateway URL: %s\n", cfg.Chat.GatewayURL)
		}
		fmt.Fprintln(out)

		// Step 2: Store
		fmt.Fprintln(out, infoStyle.Render("Step 2: Checking conversation store..."))
		if n, err := checkStore(ctx); err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Store unavailable:"), err)
			failures++
		} else {
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ %s store readable, %d conversation(s)", cfg.Store.Driver, n)))
		}
		if verbose {
			fmt.Fprintf(out, "   Driver: %s\n", cfg.Store.Driver)
		}
		fmt.Fprintln(out)

		// Step 3: Gateway
		if healthcheckSkipGateway {
			fmt.Fprintln(out, infoStyle.Render("Step 3: Gateway check skipped"))
		} else {
			fmt.Fprintln(out, infoStyle.Render("Step 3: Checking chat gateway..."))
			if err := checkGateway(ctx, out, cfg.Chat.GatewayURL, healthcheckTimeout); err != nil {
				fmt.Fprintln(out, errorStyle.Render("❌ Gateway unreachable:"), err)
				failures++
			} else {
				fmt.Fprintln(out, successStyle.Render("✅ Gateway is up"))
			}
		}
		fmt.Fprintln(out)

		// Summary
		fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		fmt.Fprintln(out)
		if failures > 0 {
			fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("❌ Health check failed: %d problem(s)", failures)))
			return fmt.Errorf("health check failed: %d problem(s)", failures)
		}
		fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
		return nil
	},
}

func checkStore(ctx context.Context) (int, error) {
	st, err := openStore(ctx)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	conversations, err := st.ListConversations(ctx)
	if err != nil {
		return 0, err
	}
	return len(conversations), nil
}

// healthURL derives the gateway health endpoint from its chat URL
func healthURL(gatewayURL string) (string, error) {
	u, err := url.Parse(gatewayURL)
	if err != nil {
		return "", fmt.Errorf("invalid gateway URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid gateway URL: %q", gatewayURL)
	}
	u.Path = "/healthz"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func checkGateway(ctx context.Context, out io.Writer, gatewayURL string, timeout time.Duration) error {
	target, err := healthURL(gatewayURL)
	if err != nil {
		return err
	}

	client := resty.New().SetTimeout(timeout)
	resp, err := client.R().SetContext(ctx).Get(target)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("%s returned %s", target, resp.Status())
	}
	if verbose {
		fmt.Fprintf(out, "   %s: %s\n", target, resp.String())
	}
	return nil
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVar(&healthcheckSkipGateway, "skip-gateway", false, "Do not contact the chat gateway")
	healthcheckCmd.Flags().DurationVar(&healthcheckTimeout, "timeout", 5*time.Second, "Gateway request timeout")
}
