package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/macroview/macrocorr/internal/artifacts"
	"github.com/macroview/macrocorr/internal/config"
	"github.com/macroview/macrocorr/internal/fetch"
	"github.com/macroview/macrocorr/internal/pipeline"
	"github.com/macroview/macrocorr/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: fetch, align, correlate, render",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, false, false)
		},
	}
	addRunFlags(cmd)
	return cmd
}

func newHeatmapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Render the static correlation heatmap only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, true, false)
		},
	}
	addRunFlags(cmd)
	return cmd
}

func newAnimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "animate",
		Short: "Render the rolling correlation animation only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, false, true)
		},
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "Override mode from viz.yaml (levels|returns)")
	cmd.Flags().Bool("offline", false, "Replay raw snapshots instead of fetching")
	cmd.Flags().String("store", "", "Postgres DSN for the optional run store")
	cmd.Flags().StringSlice("pair", nil, "Series pair to chart, as A:B (repeatable)")
}

func runPipeline(cmd *cobra.Command, staticOnly, animationOnly bool) error {
	setupVerbosity(cmd)

	seriesPath, _ := cmd.Flags().GetString("series")
	vizPath, _ := cmd.Flags().GetString("viz")
	outRoot, _ := cmd.Flags().GetString("out")
	rawDir, _ := cmd.Flags().GetString("raw-dir")
	offline, _ := cmd.Flags().GetBool("offline")
	modeOverride, _ := cmd.Flags().GetString("mode")
	dsn, _ := cmd.Flags().GetString("store")
	pairFlags, _ := cmd.Flags().GetStringSlice("pair")

	specs, err := config.LoadSeries(seriesPath)
	if err != nil {
		return err
	}
	viz, err := config.LoadViz(vizPath)
	if err != nil {
		return err
	}
	if modeOverride != "" {
		viz.Mode = config.Mode(modeOverride)
		if err := viz.Validate(); err != nil {
			return err
		}
	}

	pairs, err := parsePairs(pairFlags)
	if err != nil {
		return err
	}

	writer, err := artifacts.NewWriter(outRoot)
	if err != nil {
		return err
	}

	runner := &pipeline.Runner{
		Series:        specs,
		Viz:           viz,
		Out:           writer,
		RawDir:        rawDir,
		Offline:       offline,
		Pairs:         pairs,
		StaticOnly:    staticOnly,
		AnimationOnly: animationOnly,
	}
	if !offline {
		runner.Client = fetch.NewClient()
	}
	if dsn != "" {
		st, err := store.Open(dsn)
		if err != nil {
			return err
		}
		defer st.Close()
		runner.Store = st
	}

	return runner.Run(cmd.Context())
}

func parsePairs(flags []string) ([][2]string, error) {
	var pairs [][2]string
	for _, raw := range flags {
		parts := strings.SplitN(raw, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid --pair %q, want A:B", raw)
		}
		pairs = append(pairs, [2]string{parts[0], parts[1]})
	}
	return pairs, nil
}
