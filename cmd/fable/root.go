package main

import (
	"github.com/spf13/cobra"

	"github.com/fablepress/fable/internal/api"
	"github.com/fablepress/fable/version"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "fable",
	Short: "Photo-to-storybook generation pipeline",
	Long: `Fable turns a set of uploaded family photos into an illustrated,
print-ready children's storybook.

The pipeline includes:
  - One-shot narrative generation across the whole photo set
  - Per-page illustration generation with content screening
  - Print-resolution upscaling and cover branding
  - Interior and cover PDF assembly for print-on-demand`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.fable/config.yaml)",
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
