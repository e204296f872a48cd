package cmd

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/javalab/jl-assistant/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so runs do not leak into each other
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

type run struct {
	ctx   context.Context
	stdin io.Reader
}

// executeCommand runs the root command with args in an isolated HOME and
// returns what it wrote to stdout
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWith(t, run{}, args...)
}

func executeWith(t *testing.T, r run, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", testutil.CreateTempDir(t))

	if r.ctx == nil {
		r.ctx = context.Background()
	}
	if r.stdin == nil {
		r.stdin = strings.NewReader("")
	}

	resetFlags(rootCmd)
	for _, sub := range rootCmd.Commands() {
		sub.SetContext(r.ctx)
	}

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(r.stdin)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(r.ctx)
	if err != nil {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}

// fixtureStore creates a seeded SQLite store and returns its path
func fixtureStore(t *testing.T) string {
	t.Helper()
	return testutil.CreateChatFixture(t, filepath.Join(testutil.CreateTempDir(t), "chat.db"))
}
