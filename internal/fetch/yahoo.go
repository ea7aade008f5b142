package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/macroview/macrocorr/internal/timeseries"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/%s?range=max&interval=1d"

// yahooAlternates lists interchangeable tickers tried when the primary
// symbol is blocked or empty; gold and VIX trade under several listings.
var yahooAlternates = map[string][]string{
	"XAUUSD=X": {"GC=F", "GLD"},
	"GLD":      {"GC=F", "XAUUSD=X"},
	"GC=F":     {"XAUUSD=X", "GLD"},
	"^VIX":     {"VIXY"},
}

// yahooFredFallback maps common tickers to FRED equivalents for when
// Yahoo is unreachable entirely.
var yahooFredFallback = map[string]string{
	"^GSPC":    "SP500",
	"^VIX":     "VIXCLS",
	"XAUUSD=X": goldPMSeries,
	"GC=F":     goldPMSeries,
	"GLD":      goldPMSeries,
}

// Yahoo fetches daily close prices from the v8 chart endpoint. Yahoo
// throttles aggressively, so requests retry with backoff and fall
// through to alternate tickers, then to a FRED proxy where one exists.
type Yahoo struct {
	httpc   *http.Client
	baseURL string
	fred    *FRED
	backoff time.Duration
}

// NewYahoo creates a Yahoo provider. fred may be nil to disable the
// proxy fallback.
func NewYahoo(httpc *http.Client, fred *FRED) *Yahoo {
	return &Yahoo{httpc: httpc, baseURL: yahooChartURL, fred: fred, backoff: 400 * time.Millisecond}
}

func (y *Yahoo) Name() string { return "yahoo" }

// Fetch downloads the full daily history for a symbol, trying alternate
// listings and the FRED proxy before giving up.
func (y *Yahoo) Fetch(ctx context.Context, symbol string) ([]timeseries.Observation, error) {
	obs, err := y.chart(ctx, symbol)
	if err == nil {
		return obs, nil
	}
	for _, alt := range yahooAlternates[symbol] {
		if obs, altErr := y.chart(ctx, alt); altErr == nil {
			log.Warn().Str("symbol", symbol).Str("alternate", alt).Msg("yahoo symbol unavailable, using alternate listing")
			return obs, nil
		}
	}
	if fredID, ok := yahooFredFallback[symbol]; ok && y.fred != nil {
		log.Warn().Err(err).Str("symbol", symbol).Str("fred_id", fredID).Msg("yahoo unavailable, using fred proxy")
		return y.fred.Fetch(ctx, fredID)
	}
	return nil, err
}

// chart hits the chart endpoint with a bounded retry on throttling and
// server errors.
func (y *Yahoo) chart(ctx context.Context, symbol string) ([]timeseries.Observation, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * y.backoff):
			}
		}
		obs, retryable, err := y.chartOnce(ctx, symbol)
		if err == nil {
			return obs, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (y *Yahoo) chartOnce(ctx context.Context, symbol string) ([]timeseries.Observation, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(y.baseURL, symbol), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", stooqUserAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := y.httpc.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("yahoo request for %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("yahoo returned status %d for %s", resp.StatusCode, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("yahoo returned status %d for %s", resp.StatusCode, symbol)
	}
	obs, err := parseYahooChart(resp.Body, symbol)
	return obs, false, err
}

// yahooChart is the subset of the chart response the parser reads.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// parseYahooChart extracts close prices, preferring unadjusted close and
// falling back to adjusted when the quote block is empty. Null entries
// mark non-trading days and are dropped.
func parseYahooChart(r io.Reader, symbol string) ([]timeseries.Observation, error) {
	var payload yahooChart
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("yahoo chart json for %s: %w", symbol, err)
	}
	if e := payload.Chart.Error; e != nil {
		return nil, fmt.Errorf("yahoo chart error for %s: %s (%s)", symbol, e.Description, e.Code)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("no chart result for %s", symbol)
	}
	res := payload.Chart.Result[0]
	var closes []*float64
	if len(res.Indicators.Quote) > 0 && len(res.Indicators.Quote[0].Close) > 0 {
		closes = res.Indicators.Quote[0].Close
	} else if len(res.Indicators.AdjClose) > 0 {
		closes = res.Indicators.AdjClose[0].AdjClose
	}
	if len(closes) != len(res.Timestamp) {
		return nil, fmt.Errorf("yahoo chart shape mismatch for %s: %d timestamps, %d closes",
			symbol, len(res.Timestamp), len(closes))
	}
	var obs []timeseries.Observation
	for i, ts := range res.Timestamp {
		if closes[i] == nil {
			continue
		}
		yy, mm, dd := time.Unix(ts, 0).UTC().Date()
		obs = append(obs, timeseries.Observation{
			Date:  time.Date(yy, mm, dd, 0, 0, 0, 0, time.UTC),
			Value: *closes[i],
		})
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("no observations in yahoo chart for %s", symbol)
	}
	return obs, nil
}
