// Package pipeline orchestrates one batch run: fetch or replay raw
// series, align, correlate, cluster, render, write artifacts. The run is
// single-pass; only the rolling windows fan out internally.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/macroview/macrocorr/internal/align"
	"github.com/macroview/macrocorr/internal/anim"
	"github.com/macroview/macrocorr/internal/artifacts"
	"github.com/macroview/macrocorr/internal/cluster"
	"github.com/macroview/macrocorr/internal/config"
	"github.com/macroview/macrocorr/internal/corr"
	"github.com/macroview/macrocorr/internal/fetch"
	"github.com/macroview/macrocorr/internal/render"
	"github.com/macroview/macrocorr/internal/store"
	"github.com/macroview/macrocorr/internal/timeseries"
)

// Runner wires the pipeline stages together for one run.
type Runner struct {
	Series  []config.SeriesSpec
	Viz     config.VizConfig
	Client  *fetch.Client
	Out     *artifacts.Writer
	Store   *store.Store
	RawDir  string
	Offline bool
	// Pairs lists series id pairs to chart individually.
	Pairs [][2]string
	// StaticOnly skips the rolling animation; AnimationOnly skips the
	// static heatmap and store write.
	StaticOnly    bool
	AnimationOnly bool
}

// Run executes the full pipeline. Static artifacts are written before
// the animation so an empty rolling sequence still leaves the heatmaps
// behind; the EmptySequenceError is then propagated.
func (r *Runner) Run(ctx context.Context) error {
	series, err := r.loadSeries(ctx)
	if err != nil {
		return err
	}
	if len(series) < r.Viz.MinSeriesForOutput {
		return fmt.Errorf("not enough series for output: have %d, need >= %d",
			len(series), r.Viz.MinSeriesForOutput)
	}

	aligner := align.NewAligner(r.Viz)
	panel, err := aligner.Align(series, r.Viz.Mode)
	if err != nil {
		return err
	}
	log.Info().Int("rows", panel.Rows()).Int("series", panel.Cols()).
		Time("first", panel.Dates[0]).Time("last", panel.Dates[panel.Rows()-1]).
		Msg("panel aligned")
	r.logCoverage(panel)

	if err := r.Out.WritePanelCSV(panel, string(r.Viz.Mode)); err != nil {
		return err
	}

	engine := corr.NewEngine(r.Viz)
	scale := render.NewScale(r.Viz.ColorScale)

	// Static heatmap over the lookback tail.
	if !r.AnimationOnly {
		if err := r.writeStatic(ctx, engine, panel, scale); err != nil {
			return err
		}
	}

	if r.StaticOnly {
		return r.Out.WriteManifest(string(r.Viz.Mode))
	}

	// Rolling animation over the trimmed lookback, falling back to the
	// full panel when the trim leaves nothing.
	rolling := engine.Rolling(r.trimForRolling(panel))
	if len(rolling) == 0 {
		log.Warn().Msg("no rolling windows after lookback trim, retrying with full history")
		rolling = engine.Rolling(panel)
	}
	log.Info().Int("windows", len(rolling)).Msg("rolling correlations computed")

	if err := r.writeAnimation(rolling, scale); err != nil {
		return err
	}
	for _, pair := range r.Pairs {
		data, err := render.PairChart(rolling, pair[0], pair[1])
		if err != nil {
			log.Warn().Err(err).Str("a", pair[0]).Str("b", pair[1]).Msg("pair chart skipped")
			continue
		}
		if err := r.Out.WritePairChart(data, string(r.Viz.Mode), pair[0], pair[1]); err != nil {
			return err
		}
	}

	return r.Out.WriteManifest(string(r.Viz.Mode))
}

// writeStatic renders and writes the full-period heatmap and, when a
// store is configured, persists the run.
func (r *Runner) writeStatic(ctx context.Context, engine *corr.Engine, panel *align.Panel, scale render.Scale) error {
	full := engine.Full(panel.Tail(r.Viz.LookbackMonths))
	ordered, err := r.order(full)
	if err != nil {
		return err
	}
	heatmap, err := render.RenderStatic(ordered, scale)
	if err != nil {
		return err
	}
	pngData, err := render.EncodePNG(heatmap)
	if err != nil {
		return fmt.Errorf("failed to encode heatmap png: %w", err)
	}
	if err := r.Out.WriteHeatmap(pngData, render.EncodeSVG(heatmap), string(r.Viz.Mode), r.Viz.LookbackMonths); err != nil {
		return err
	}
	log.Info().Str("window", heatmap.WindowTag).Msg("static heatmap written")

	if r.Store != nil {
		runRec := &store.Run{
			ID:           r.Out.RunID(),
			CreatedAt:    time.Now().UTC(),
			Mode:         string(r.Viz.Mode),
			WindowMonths: r.Viz.RollingWindowMonths,
			SeriesIDs:    panel.IDs,
			Matrix:       full,
		}
		if err := r.Store.SaveRun(ctx, runRec); err != nil {
			return err
		}
		log.Info().Str("run_id", runRec.ID.String()).Msg("run persisted")
	}
	return nil
}

// loadSeries fetches from providers, or replays raw snapshots offline,
// in config order so identical runs produce identical panels. Fetch
// failures fall back to the latest snapshot when one exists.
func (r *Runner) loadSeries(ctx context.Context) ([]*timeseries.Series, error) {
	var out []*timeseries.Series
	for _, spec := range r.Series {
		name := spec.Name
		var s *timeseries.Series
		var err error
		if r.Offline || r.Client == nil {
			s, err = fetch.LoadLatestRaw(spec, r.RawDir)
		} else {
			s, err = r.Client.FetchSeries(ctx, spec)
			if err == nil {
				if _, serr := fetch.SaveRaw(s, r.RawDir); serr != nil {
					log.Warn().Err(serr).Str("series", name).Msg("raw snapshot not saved")
				}
			} else {
				log.Warn().Err(err).Str("series", name).Msg("fetch failed, trying raw snapshot")
				s, err = fetch.LoadLatestRaw(spec, r.RawDir)
			}
		}
		if err != nil {
			log.Warn().Err(err).Str("series", name).Msg("series unavailable, skipping")
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// order applies clustering when enabled; otherwise the identity
// permutation.
func (r *Runner) order(m *corr.Matrix) (*cluster.OrderedMatrix, error) {
	if !r.Viz.Cluster {
		return cluster.Identity(m), nil
	}
	return cluster.Order(m, r.Viz.Linkage)
}

// trimForRolling keeps the last rolling_lookback_months of end-dates,
// the frame ending exactly at the cutoff included, plus the preceding
// window so the first frame stays computable.
func (r *Runner) trimForRolling(p *align.Panel) *align.Panel {
	keep := r.Viz.RollingLookbackMonths + r.Viz.RollingWindowMonths
	return p.Tail(keep)
}

// writeAnimation reorders each rolling matrix independently, assembles
// the frame sequence and streams the gif encode.
func (r *Runner) writeAnimation(rolling []*corr.Matrix, scale render.Scale) error {
	oms := make([]*cluster.OrderedMatrix, 0, len(rolling))
	for _, m := range rolling {
		om, err := r.order(m)
		if err != nil {
			return err
		}
		oms = append(oms, om)
	}

	assembler := &anim.Assembler{Scale: scale, FrameSeconds: r.Viz.FrameSeconds}
	seq, final, err := assembler.Assemble(oms)
	if err != nil {
		return err
	}
	log.Info().Int("frames", seq.Len()).Str("final", final.End.Format("2006-01")).Msg("animation assembled")

	f, path, err := r.Out.AnimationTarget(string(r.Viz.Mode), r.Viz.RollingWindowMonths)
	if err != nil {
		return err
	}
	if err := assembler.EncodeGIF(seq, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close animation file: %w", err)
	}
	if err := r.Out.FinishAnimation(path, string(r.Viz.Mode)); err != nil {
		return err
	}
	if err := r.Out.WriteAnimationMP4(path, string(r.Viz.Mode), r.Viz.FrameSeconds); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("animation written")
	return nil
}

// logCoverage mirrors the coverage report analysts use to debug why a
// series drops out of rolling windows.
func (r *Runner) logCoverage(p *align.Panel) {
	for i, id := range p.IDs {
		first, last := -1, -1
		count := 0
		for t := range p.Dates {
			if timeseries.IsMissing(p.Data[i][t]) {
				continue
			}
			if first < 0 {
				first = t
			}
			last = t
			count++
		}
		if first < 0 {
			log.Debug().Str("series", id).Msg("coverage: no data")
			continue
		}
		log.Debug().Str("series", id).
			Str("from", p.Dates[first].Format("2006-01")).
			Str("to", p.Dates[last].Format("2006-01")).
			Int("obs", count).Msg("coverage")
	}
}
