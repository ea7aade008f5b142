// Package artifacts is the output layer: it names files, writes encoded
// artifacts, maintains the _latest aliases the README embeds, and records
// a manifest per run. The core hands it tagged artifact descriptions and
// never chooses paths itself.
package artifacts

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/macroview/macrocorr/internal/align"
	"github.com/macroview/macrocorr/internal/timeseries"
)

// Writer lays out the run's output tree:
//
//	reports/figures/     static heatmaps (png + svg)
//	reports/animations/  rolling gifs
//	data/processed/      aligned panel snapshots
type Writer struct {
	FigDir  string
	AnimDir string
	ProcDir string
	// Stamp dates output filenames; one stamp per run.
	Stamp string

	runID uuid.UUID
	files []ManifestEntry
}

// ManifestEntry records one written artifact.
type ManifestEntry struct {
	Path      string `json:"path"`
	Kind      string `json:"kind"` // heatmap_png | heatmap_svg | animation_gif | animation_mp4 | pair_chart | panel_csv
	WindowTag string `json:"window_tag,omitempty"`
}

// Manifest describes everything a run produced.
type Manifest struct {
	RunID       uuid.UUID       `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Mode        string          `json:"mode"`
	Files       []ManifestEntry `json:"files"`
}

// NewWriter creates a writer rooted at dir, creating the output tree.
func NewWriter(root string) (*Writer, error) {
	w := &Writer{
		FigDir:  filepath.Join(root, "reports", "figures"),
		AnimDir: filepath.Join(root, "reports", "animations"),
		ProcDir: filepath.Join(root, "data", "processed"),
		Stamp:   time.Now().UTC().Format("2006-01-02"),
		runID:   uuid.New(),
	}
	for _, d := range []string{w.FigDir, w.AnimDir, w.ProcDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output dir %s: %w", d, err)
		}
	}
	return w, nil
}

// RunID returns the id stamped into this run's manifest.
func (w *Writer) RunID() uuid.UUID { return w.runID }

// WriteHeatmap writes the dated png and svg for a static heatmap and
// refreshes the _latest aliases.
func (w *Writer) WriteHeatmap(pngData, svgData []byte, mode string, lookback int) error {
	base := fmt.Sprintf("corr_heatmap_%s_%d_%s", mode, lookback, w.Stamp)
	latest := fmt.Sprintf("corr_heatmap_%s_latest", mode)

	if err := w.writeAliased(w.FigDir, base+".png", latest+".png", pngData, "heatmap_png"); err != nil {
		return err
	}
	return w.writeAliased(w.FigDir, base+".svg", latest+".svg", svgData, "heatmap_svg")
}

// AnimationTarget opens the dated gif file for streaming encode and
// returns it with its final path. The caller encodes into it; Close, then
// FinishAnimation to alias and record it.
func (w *Writer) AnimationTarget(mode string, windowMonths int) (*os.File, string, error) {
	name := fmt.Sprintf("corr_heatmap_rolling_%s_%d_%s.gif", mode, windowMonths, w.Stamp)
	path := filepath.Join(w.AnimDir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create animation file: %w", err)
	}
	return f, path, nil
}

// FinishAnimation refreshes the _latest gif alias and records the
// artifact.
func (w *Writer) FinishAnimation(path, mode string) error {
	latest := filepath.Join(w.AnimDir, fmt.Sprintf("corr_heatmap_rolling_%s_latest.gif", mode))
	if err := copyFile(path, latest); err != nil {
		return fmt.Errorf("failed to update latest animation alias: %w", err)
	}
	w.record(path, "animation_gif", "")
	w.record(latest, "animation_gif", "")
	return nil
}

// WriteAnimationMP4 converts the gif into an mp4 companion for viewers
// that cannot pause or replay gifs. Best effort: without ffmpeg on PATH
// the gif stays the only animation artifact and the run continues.
func (w *Writer) WriteAnimationMP4(gifPath, mode string, frameSeconds float64) error {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		log.Debug().Msg("ffmpeg not found, skipping mp4 companion")
		return nil
	}
	fps := int(math.Round(1 / frameSeconds))
	if fps < 1 {
		fps = 1
	}
	mp4 := strings.TrimSuffix(gifPath, ".gif") + ".mp4"
	// libx264 needs even dimensions; the scale filter rounds down.
	cmd := exec.Command(ffmpeg, "-y", "-i", gifPath,
		"-r", strconv.Itoa(fps), "-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2", mp4)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Warn().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("mp4 companion not written")
		return nil
	}
	latest := filepath.Join(w.AnimDir, fmt.Sprintf("corr_heatmap_rolling_%s_latest.mp4", mode))
	if err := copyFile(mp4, latest); err != nil {
		return fmt.Errorf("failed to update latest mp4 alias: %w", err)
	}
	w.record(mp4, "animation_mp4", "")
	w.record(latest, "animation_mp4", "")
	return nil
}

// WritePairChart writes a per-pair rolling correlation chart.
func (w *Writer) WritePairChart(data []byte, mode, idA, idB string) error {
	name := fmt.Sprintf("corr_pair_%s_%s_%s_%s.png", mode, idA, idB, w.Stamp)
	path := filepath.Join(w.FigDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pair chart: %w", err)
	}
	w.record(path, "pair_chart", "")
	return nil
}

// WritePanelCSV snapshots the aligned panel for reproducibility, one
// column per series.
func (w *Writer) WritePanelCSV(p *align.Panel, mode string) error {
	name := fmt.Sprintf("monthly_%s_%s.csv", mode, w.Stamp)
	path := filepath.Join(w.ProcDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create panel snapshot: %w", err)
	}
	defer f.Close()

	fmt.Fprint(f, "date")
	for _, id := range p.IDs {
		fmt.Fprintf(f, ",%s", id)
	}
	fmt.Fprintln(f)
	for t, d := range p.Dates {
		fmt.Fprint(f, d.Format("2006-01-02"))
		for i := range p.IDs {
			v := p.Data[i][t]
			if timeseries.IsMissing(v) {
				fmt.Fprint(f, ",")
			} else {
				fmt.Fprintf(f, ",%s", strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
		fmt.Fprintln(f)
	}
	w.record(path, "panel_csv", "")
	return nil
}

// WriteManifest writes manifest.json next to the figures.
func (w *Writer) WriteManifest(mode string) error {
	m := Manifest{
		RunID:       w.runID,
		GeneratedAt: time.Now().UTC(),
		Mode:        mode,
		Files:       w.files,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	path := filepath.Join(w.FigDir, "manifest.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	log.Info().Str("path", path).Str("run_id", w.runID.String()).Int("files", len(w.files)).Msg("manifest written")
	return nil
}

func (w *Writer) writeAliased(dir, name, aliasName string, data []byte, kind string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	alias := filepath.Join(dir, aliasName)
	if err := os.WriteFile(alias, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", aliasName, err)
	}
	w.record(path, kind, "")
	w.record(alias, kind, "")
	return nil
}

func (w *Writer) record(path, kind, tag string) {
	w.files = append(w.files, ManifestEntry{Path: path, Kind: kind, WindowTag: tag})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
