package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "OCR job service turning PDFs and images into Markdown",
	Long: `Folio is an OCR job service. Submitted PDFs are split into per-page
jobs that a worker pool processes through a pluggable OCR backend, and
results are polled as Markdown with parsed sections.

The pipeline includes:
  - PDF rasterization to per-page images
  - Hosted (Hugging Face space) and self-hosted (Ollama) OCR backends
  - Atomic page claiming across concurrent workers
  - Markdown section parsing for structured results`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.folio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "folio home directory (default: ~/.folio)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
