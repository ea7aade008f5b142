package render

import (
	"bytes"
	"fmt"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/macroview/macrocorr/internal/config"
	"github.com/macroview/macrocorr/internal/corr"
)

// PairChart renders the rolling correlation of one series pair over time
// as a PNG line chart, a drill-down companion to the animation.
func PairChart(rolling []*corr.Matrix, idA, idB string) ([]byte, error) {
	if len(rolling) == 0 {
		return nil, config.NewConfigurationError("pair", "no rolling windows to chart")
	}
	ia := indexOf(rolling[0].IDs, idA)
	ib := indexOf(rolling[0].IDs, idB)
	if ia < 0 || ib < 0 {
		return nil, config.NewConfigurationError("pair", "unknown series pair %q/%q", idA, idB)
	}

	var times []time.Time
	var values []float64
	for _, m := range rolling {
		v := m.At(ia, ib)
		if !corr.IsDefined(v) {
			continue
		}
		times = append(times, m.Window.End)
		values = append(values, v)
	}
	if len(times) < 2 {
		return nil, config.NewConfigurationError("pair", "fewer than 2 defined windows for %q/%q", idA, idB)
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Rolling %dm correlation: %s vs %s", rolling[0].Window.Length, idA, idB),
		Width:  900,
		Height: 360,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: -1, Max: 1},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    fmt.Sprintf("%s/%s", idA, idB),
				XValues: times,
				YValues: values,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render pair chart: %w", err)
	}
	return buf.Bytes(), nil
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
