package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/javalab/jl-assistant/internal"
	"github.com/javalab/jl-assistant/internal/export"
	"github.com/javalab/jl-assistant/internal/store"
	"github.com/spf13/cobra"
)

var (
	format         string
	outputDir      string
	conversationID string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export conversations to files",
	Long: `Export recorded conversations to various formats (jsonl, md, yaml, json).

Every conversation is written to its own file in the output directory, or a
single one with --id. Use --out - to write to standard output.
Use 'jl-assistant list' to see conversation IDs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var transcripts []*internal.Transcript
		err = internal.ShowProgressWithSteps(ctx, []internal.ProgressStep{
			{
				Message: "Loading conversations",
				Fn: func() error {
					var loadErr error
					transcripts, loadErr = loadTranscripts(ctx, st, conversationID)
					return loadErr
				},
			},
		})
		if err != nil {
			return err
		}

		if outputDir == "-" {
			return exportToWriter(cmd.OutOrStdout(), exporter, transcripts)
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return &internal.ExportError{Format: format, Path: outputDir, Err: err}
		}

		var failed int
		err = internal.ShowProgress(ctx, fmt.Sprintf("Exporting %d conversation(s) to %s", len(transcripts), outputDir), func() error {
			for _, t := range transcripts {
				path := filepath.Join(outputDir, fmt.Sprintf("conversation_%s.%s", t.ID, exporter.Extension()))
				if err := exportToFile(path, exporter, t); err != nil {
					internal.LogError("%v", err)
					failed++
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if failed > 0 {
			return &internal.ExportError{Format: format, Path: outputDir, Err: fmt.Errorf("%d of %d conversation(s) failed", failed, len(transcripts))}
		}

		internal.PrintSuccess(fmt.Sprintf("Export complete: %d conversation(s) exported to %s", len(transcripts), outputDir))
		return nil
	},
}

// loadTranscripts returns the transcript for id, or every conversation when id is empty
func loadTranscripts(ctx context.Context, st store.Store, id string) ([]*internal.Transcript, error) {
	if id != "" {
		t, err := store.Transcript(ctx, st, id)
		if err != nil {
			return nil, fmt.Errorf("conversation not found: %s: %w", id, err)
		}
		return []*internal.Transcript{t}, nil
	}

	conversations, err := st.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	transcripts := make([]*internal.Transcript, 0, len(conversations))
	for _, conv := range conversations {
		t, err := store.Transcript(ctx, st, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation %s: %w", conv.ID, err)
		}
		transcripts = append(transcripts, t)
	}
	return transcripts, nil
}

func exportToFile(path string, exporter export.Exporter, t *internal.Transcript) error {
	file, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	if err := exporter.Export(t, file); err != nil {
		_ = file.Close()
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	return nil
}

// exportToWriter writes every transcript to w. Documents are separated as
// each format requires.
func exportToWriter(w io.Writer, exporter export.Exporter, transcripts []*internal.Transcript) error {
	for i, t := range transcripts {
		if i > 0 {
			switch exporter.Extension() {
			case "yaml":
				fmt.Fprintln(w, "---")
			case "md":
				fmt.Fprintln(w)
			}
		}
		if err := exporter.Export(t, w); err != nil {
			return &internal.ExportError{Format: exporter.Extension(), Path: "-", Err: err}
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format ("+strings.Join(export.Formats, ", ")+")")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory, or - for standard output")
	exportCmd.Flags().StringVar(&conversationID, "id", "", "Export a single conversation by ID")
}
