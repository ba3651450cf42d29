// Package evalcmd holds the eval subcommands: scoring extraction against
// labelled menus and reporting on saved runs.
package evalcmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// App is what the eval commands need from the root command
type App interface {
	Logger() *slog.Logger
	Rasterizer() (Rasterizer, error)
	// Extractor builds a client for provider and model; empty values mean the configured ones
	Extractor(provider, model string) (Extractor, ExtractorInfo, error)
}

// ExtractorInfo names the backend an Extractor talks to
type ExtractorInfo struct {
	Provider    string
	Model       string
	Temperature float64
}

// NewRunCmd creates the run command
func NewRunCmd(app App) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Score menu extraction against a labelled dataset",
		Long: `Runs every record of a labelled menu dataset through rasterization and
extraction, then matches the extracted items to the transcribed ones.

The dataset is a JSONL or Parquet file of records with an id, the menu files
(relative to the dataset) and the expected items with their prices. Results
are written as YAML under the output directory.`,
		Example: `  # Evaluate 10 menus with the configured provider
  menuimport eval run --dataset ./menus/labels.jsonl --sample 10

  # Compare a local model, two menus at a time, at most 20 calls a minute
  menuimport eval run --dataset ./menus/labels.parquet --provider ollama --model qwen2.5vl:7b --concurrency 2 --rpm 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(opts.datasetPath); err != nil {
				return fmt.Errorf("dataset file not found: %s", opts.datasetPath)
			}
			return executeRun(cmd.Context(), cmd.OutOrStdout(), app, opts)
		},
	}

	cmd.Flags().StringVar(&opts.datasetPath, "dataset", "", "Path to the labelled dataset (.jsonl or .parquet)")
	cmd.Flags().StringVar(&opts.outputDir, "output", "evals", "Directory for YAML results")
	cmd.Flags().IntVar(&opts.sampleSize, "sample", -1, "Number of records to evaluate (-1 for all)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Extraction provider (gemini, openai or ollama); defaults to the configured one")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (defaults to the provider's default)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 2, "Records processed at once")
	cmd.Flags().Float64Var(&opts.perMinute, "rpm", 30, "Maximum extraction calls per minute (0 for no limit)")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

// NewReportCmd creates the report command
func NewReportCmd() *cobra.Command {
	var resultsPath string
	var format string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a saved evaluation",
		Example: `  menuimport eval report --results evals/gemini-2.5-flash-2026-10-15_09-00-00.yaml
  menuimport eval report --results evals/run.yaml --format csv > run.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeReport(cmd.OutOrStdout(), resultsPath, format)
		},
	}

	cmd.Flags().StringVar(&resultsPath, "results", "", "Path to a YAML result written by eval run")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json, csv)")
	_ = cmd.MarkFlagRequired("results")

	return cmd
}
