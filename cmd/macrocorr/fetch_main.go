package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/macroview/macrocorr/internal/config"
	"github.com/macroview/macrocorr/internal/fetch"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch all configured series and snapshot them to the raw dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupVerbosity(cmd)
			seriesPath, _ := cmd.Flags().GetString("series")
			rawDir, _ := cmd.Flags().GetString("raw-dir")

			specs, err := config.LoadSeries(seriesPath)
			if err != nil {
				return err
			}
			client := fetch.NewClient()
			series := client.FetchAll(cmd.Context(), specs)
			saved := 0
			for _, s := range series {
				path, err := fetch.SaveRaw(s, rawDir)
				if err != nil {
					log.Warn().Err(err).Str("series", s.ID).Msg("snapshot failed")
					continue
				}
				log.Info().Str("series", s.ID).Str("path", path).Msg("snapshot saved")
				saved++
			}
			log.Info().Int("fetched", len(series)).Int("saved", saved).Int("configured", len(specs)).Msg("fetch complete")
			return nil
		},
	}
}
