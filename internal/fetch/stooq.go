package fetch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/macroview/macrocorr/internal/timeseries"
)

const stooqCSVURL = "https://stooq.com/q/d/l/?s=%s&i=d"

// Stooq serves daily OHLC history without auth but rejects default Go
// user agents, hence the browser UA below.
const stooqUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Stooq fetches close prices from the Stooq daily CSV endpoint.
type Stooq struct {
	httpc   *http.Client
	baseURL string
}

// NewStooq creates a Stooq provider.
func NewStooq(httpc *http.Client) *Stooq {
	return &Stooq{httpc: httpc, baseURL: stooqCSVURL}
}

func (s *Stooq) Name() string { return "stooq" }

// Fetch downloads the full daily history for a symbol and returns close
// prices.
func (s *Stooq) Fetch(ctx context.Context, symbol string) ([]timeseries.Observation, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, fmt.Sprintf(s.baseURL, normalizeStooqSymbol(symbol)), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", stooqUserAgent)
	req.Header.Set("Accept", "text/csv,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stooq request for %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stooq returned status %d for %s", resp.StatusCode, symbol)
	}
	return parseStooqCSV(resp.Body, symbol)
}

// normalizeStooqSymbol lowercases and appends the .us market suffix for
// short plain US tickers, which is how Stooq keys them.
func normalizeStooqSymbol(symbol string) string {
	sym := strings.ToLower(strings.TrimSpace(symbol))
	switch strings.ToUpper(symbol) {
	case "SPY", "SPY.US", "SPX", "^SPX":
		return "spy.us"
	}
	if !strings.HasSuffix(sym, ".us") && len(sym) <= 5 && isAlpha(sym) {
		return sym + ".us"
	}
	return sym
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return len(s) > 0
}

// parseStooqCSV reads the Date,Open,High,Low,Close(,Volume) daily CSV and
// keeps the close column.
func parseStooqCSV(r io.Reader, symbol string) ([]timeseries.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("stooq csv header for %s: %w", symbol, err)
	}
	dateCol, closeCol := -1, -1
	for i, name := range header {
		switch name {
		case "Date":
			dateCol = i
		case "Close":
			closeCol = i
		}
	}
	if dateCol < 0 || closeCol < 0 {
		return nil, fmt.Errorf("unexpected stooq csv columns for %s: %v", symbol, header)
	}
	var obs []timeseries.Observation
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stooq csv row: %w", err)
		}
		if len(rec) <= dateCol || len(rec) <= closeCol {
			continue
		}
		d, err := time.Parse("2006-01-02", rec[dateCol])
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(rec[closeCol], 64)
		if err != nil {
			continue
		}
		obs = append(obs, timeseries.Observation{Date: d, Value: v})
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("no observations in stooq csv for %s", symbol)
	}
	return obs, nil
}
