package fetch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/macroview/macrocorr/internal/timeseries"
)

const fredCSVURL = "https://fred.stlouisfed.org/graph/fredgraph.csv?id=%s"

// goldAMSeries occasionally 404s on the fredgraph endpoint; the PM fixing
// carries the same gold price and serves as fallback.
const (
	goldAMSeries = "GOLDAMGBD228NLBM"
	goldPMSeries = "GOLDPMGBD228NLBM"
)

// FRED fetches series from the St. Louis Fed fredgraph CSV endpoint.
type FRED struct {
	httpc   *http.Client
	baseURL string
}

// NewFRED creates a FRED provider.
func NewFRED(httpc *http.Client) *FRED {
	return &FRED{httpc: httpc, baseURL: fredCSVURL}
}

func (f *FRED) Name() string { return "fred" }

// Fetch downloads and parses one FRED series. Non-numeric placeholder
// values ("." and "NA") are dropped, matching the provider's CSV quirks.
func (f *FRED) Fetch(ctx context.Context, id string) ([]timeseries.Observation, error) {
	body, status, err := f.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound && id == goldAMSeries {
		body, status, err = f.get(ctx, goldPMSeries)
		if err != nil {
			return nil, err
		}
		id = goldPMSeries
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fred returned status %d for %s", status, id)
	}
	defer body.Close()
	return parseFredCSV(body, id)
}

func (f *FRED) get(ctx context.Context, id string) (io.ReadCloser, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(f.baseURL, id), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := f.httpc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fred request for %s: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, resp.StatusCode, nil
	}
	return resp.Body, resp.StatusCode, nil
}

// parseFredCSV reads the two-column fredgraph CSV. The date column is
// DATE or observation_date depending on endpoint version; the value
// column is named after the series id.
func parseFredCSV(r io.Reader, id string) ([]timeseries.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("fred csv header: %w", err)
	}
	dateCol, valueCol := -1, -1
	for i, name := range header {
		switch name {
		case "DATE", "date", "observation_date":
			dateCol = i
		case id:
			valueCol = i
		}
	}
	if dateCol < 0 || valueCol < 0 {
		return nil, fmt.Errorf("unexpected fred csv columns for %s: %v", id, header)
	}
	var obs []timeseries.Observation
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fred csv row: %w", err)
		}
		if len(rec) <= dateCol || len(rec) <= valueCol {
			continue
		}
		d, err := time.Parse("2006-01-02", rec[dateCol])
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(rec[valueCol], 64)
		if err != nil {
			// "." and "NA" mark missing observations.
			continue
		}
		obs = append(obs, timeseries.Observation{Date: d, Value: v})
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("no observations in fred csv for %s", id)
	}
	return obs, nil
}
