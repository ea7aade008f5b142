package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	appName = "macrocorr"
	version = "v1.3.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = log.Output(os.Stderr)
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Version: version,
		Short:   "Macro correlation matrix pipeline",
		Long: `macrocorr computes pairwise correlation matrices across configured
macro and market series, clusters them for readability, and renders
static heatmaps plus a rolling-window animation.`,
		SilenceUsage: true,
	}
	// Accept snake_case spellings of the flag names from older wrappers.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	rootCmd.PersistentFlags().String("series", "config/series.yaml", "Series configuration file")
	rootCmd.PersistentFlags().String("viz", "config/viz.yaml", "Visualization configuration file")
	rootCmd.PersistentFlags().String("out", ".", "Output root directory")
	rootCmd.PersistentFlags().String("raw-dir", "data/raw", "Raw snapshot directory")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCmd(), newHeatmapCmd(), newAnimateCmd(), newFetchCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func setupVerbosity(cmd *cobra.Command) {
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
