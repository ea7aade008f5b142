package fetch

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/macroview/macrocorr/internal/config"
	"github.com/macroview/macrocorr/internal/timeseries"
)

// SaveRaw snapshots a fetched series to <rawDir>/<name>_<YYYY-MM-DD>.csv
// with header "date,<name>". Snapshots are what offline runs replay.
func SaveRaw(s *timeseries.Series, rawDir string) (string, error) {
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create raw dir: %w", err)
	}
	path := filepath.Join(rawDir, fmt.Sprintf("%s_%s.csv", s.ID, time.Now().UTC().Format("2006-01-02")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create raw snapshot: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", s.ID}); err != nil {
		return "", err
	}
	for _, o := range s.Obs {
		if err := w.Write([]string{o.Date.Format("2006-01-02"), strconv.FormatFloat(o.Value, 'g', -1, 64)}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write raw snapshot: %w", err)
	}
	return path, nil
}

// LoadLatestRaw loads the most recent snapshot for a configured series.
// Snapshot filenames sort lexicographically by date, so the last match is
// the newest.
func LoadLatestRaw(spec config.SeriesSpec, rawDir string) (*timeseries.Series, error) {
	pattern := filepath.Join(rawDir, spec.Name+"_*.csv")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no raw snapshots matching %s", pattern)
	}
	sort.Strings(matches)
	latest := matches[len(matches)-1]

	f, err := os.Open(latest)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw snapshot: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("raw snapshot header in %s: %w", latest, err)
	}
	if len(header) < 2 || header[0] != "date" || header[1] != spec.Name {
		return nil, fmt.Errorf("raw snapshot %s missing expected columns: date, %s", latest, spec.Name)
	}
	var obs []timeseries.Observation
	for {
		rec, err := cr.Read()
		if err != nil {
			break
		}
		if len(rec) < 2 {
			continue
		}
		d, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			continue
		}
		obs = append(obs, timeseries.Observation{Date: d, Value: v})
	}
	s := timeseries.New(spec.Name, obs)
	s.Label = spec.Label
	s.Transform = spec.Transform
	s.Frequency = spec.Frequency
	s.ResampleMean = spec.Resample == "mean"
	return s, nil
}
