// Package config loads and validates the pipeline configuration. All YAML
// is parsed once at startup into typed structs; nothing downstream reads
// loosely-typed maps.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/macroview/macrocorr/internal/timeseries"
)

// ConfigurationError indicates malformed parameters: bad YAML shape, an
// unknown linkage strategy, a non-square matrix handed to the renderer.
// It is never retried; the run cannot proceed meaningfully.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError builds a ConfigurationError for the given field.
func NewConfigurationError(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SeriesSpec describes one configured series: where it comes from and how
// it is transformed before correlating.
type SeriesSpec struct {
	Name      string               `yaml:"-"`
	Source    string               `yaml:"source"`    // fred | stooq | yahoo
	ID        string               `yaml:"id"`        // provider-side identifier
	Label     string               `yaml:"label"`     // display label, defaults to Name
	Transform timeseries.Transform `yaml:"transform"` // level | return | yoy
	Frequency timeseries.Frequency `yaml:"frequency"` // native frequency, defaults to daily
	Resample  string               `yaml:"resample"`  // last | mean, defaults to last
}

// seriesFile is the on-disk shape of series.yaml. The mapping is kept as
// a raw node so document order survives decoding; series order decides
// panel column order and clustering tie-breaks, so it must match what
// the analyst wrote.
type seriesFile struct {
	Series yaml.Node `yaml:"series"`
}

// Linkage names a hierarchical clustering linkage strategy.
type Linkage string

const (
	LinkageAverage  Linkage = "average"
	LinkageSingle   Linkage = "single"
	LinkageComplete Linkage = "complete"
)

// Mode selects the panel construction mode.
type Mode string

const (
	ModeLevels  Mode = "levels"
	ModeReturns Mode = "returns"
)

// VizConfig holds the pipeline-wide parameters from viz.yaml.
type VizConfig struct {
	Mode                  Mode       `yaml:"mode"`                    // levels | returns
	LookbackMonths        int        `yaml:"lookback_months"`         // static heatmap window
	RollingWindowMonths   int        `yaml:"rolling_window_months"`   // rolling correlation window
	RollingLookbackMonths int        `yaml:"rolling_lookback_months"` // cap on animation frame end-dates
	MinValidFraction      float64    `yaml:"min_valid_fraction"`      // per-pair valid-obs fraction per window
	MaxMissingFraction    float64    `yaml:"max_missing_fraction"`    // drop index points missing more than this
	MaxFfillGap           int        `yaml:"max_ffill_gap"`           // forward-fill limit after alignment
	Cluster               bool       `yaml:"cluster"`                 // reorder matrices by clustering
	Linkage               Linkage    `yaml:"linkage"`                 // average | single | complete
	ColorScale            [2]float64 `yaml:"color_scale"`             // diverging scale bounds
	FrameSeconds          float64    `yaml:"frame_seconds"`           // animation frame duration
	MinSeriesForOutput    int        `yaml:"min_series_for_output"`   // abort below this many series
}

// Defaults mirrors the values the original deployment ran with; viz.yaml
// overrides any subset.
func Defaults() VizConfig {
	return VizConfig{
		Mode:                  ModeLevels,
		LookbackMonths:        120,
		RollingWindowMonths:   36,
		RollingLookbackMonths: 300,
		MinValidFraction:      1.0,
		MaxMissingFraction:    0.5,
		MaxFfillGap:           3,
		Cluster:               true,
		Linkage:               LinkageAverage,
		ColorScale:            [2]float64{-1, 1},
		FrameSeconds:          0.5,
		MinSeriesForOutput:    5,
	}
}

// LoadSeries reads series.yaml and returns the specs in document order,
// with per-series defaults applied and transforms validated.
func LoadSeries(path string) ([]SeriesSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read series config: %w", err)
	}
	var file seriesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse series YAML: %w", err)
	}
	if file.Series.Kind != yaml.MappingNode || len(file.Series.Content) == 0 {
		return nil, NewConfigurationError("series", "series.yaml must contain a top-level 'series' mapping")
	}
	out := make([]SeriesSpec, 0, len(file.Series.Content)/2)
	for i := 0; i+1 < len(file.Series.Content); i += 2 {
		name := file.Series.Content[i].Value
		var spec SeriesSpec
		if err := file.Series.Content[i+1].Decode(&spec); err != nil {
			return nil, NewConfigurationError(name, "%v", err)
		}
		spec.Name = name
		if spec.Label == "" {
			spec.Label = name
		}
		if spec.Resample == "" {
			spec.Resample = "last"
		}
		if spec.Resample != "last" && spec.Resample != "mean" {
			return nil, NewConfigurationError(name, "resample must be 'last' or 'mean', got %q", spec.Resample)
		}
		tr, err := timeseries.ParseTransform(string(spec.Transform))
		if err != nil {
			return nil, NewConfigurationError(name, "%v", err)
		}
		spec.Transform = tr
		freq, err := timeseries.ParseFrequency(string(spec.Frequency))
		if err != nil {
			return nil, NewConfigurationError(name, "%v", err)
		}
		spec.Frequency = freq
		switch spec.Source {
		case "fred", "stooq", "yahoo":
		default:
			return nil, NewConfigurationError(name, "unknown source: %q", spec.Source)
		}
		if spec.ID == "" {
			return nil, NewConfigurationError(name, "missing provider id")
		}
		out = append(out, spec)
	}
	return out, nil
}

// LoadViz reads viz.yaml over Defaults() and validates the result.
func LoadViz(path string) (VizConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read viz config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse viz YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every field once so the pipeline never re-validates.
func (c VizConfig) Validate() error {
	if c.Mode != ModeLevels && c.Mode != ModeReturns {
		return NewConfigurationError("mode", "must be 'levels' or 'returns', got %q", c.Mode)
	}
	if c.LookbackMonths < 2 {
		return NewConfigurationError("lookback_months", "must be >= 2, got %d", c.LookbackMonths)
	}
	if c.RollingWindowMonths < 2 {
		return NewConfigurationError("rolling_window_months", "must be >= 2, got %d", c.RollingWindowMonths)
	}
	if c.RollingLookbackMonths < 1 {
		return NewConfigurationError("rolling_lookback_months", "must be >= 1, got %d", c.RollingLookbackMonths)
	}
	if c.MinValidFraction <= 0 || c.MinValidFraction > 1 {
		return NewConfigurationError("min_valid_fraction", "must be in (0, 1], got %g", c.MinValidFraction)
	}
	if c.MaxMissingFraction < 0 || c.MaxMissingFraction >= 1 {
		return NewConfigurationError("max_missing_fraction", "must be in [0, 1), got %g", c.MaxMissingFraction)
	}
	if c.MaxFfillGap < 0 {
		return NewConfigurationError("max_ffill_gap", "must be >= 0, got %d", c.MaxFfillGap)
	}
	switch c.Linkage {
	case LinkageAverage, LinkageSingle, LinkageComplete:
	default:
		return NewConfigurationError("linkage", "unknown linkage strategy: %q", c.Linkage)
	}
	if c.ColorScale[0] >= c.ColorScale[1] {
		return NewConfigurationError("color_scale", "lower bound must be below upper bound, got [%g, %g]", c.ColorScale[0], c.ColorScale[1])
	}
	if c.FrameSeconds <= 0 {
		return NewConfigurationError("frame_seconds", "must be > 0, got %g", c.FrameSeconds)
	}
	if c.MinSeriesForOutput < 2 {
		return NewConfigurationError("min_series_for_output", "must be >= 2, got %d", c.MinSeriesForOutput)
	}
	return nil
}
