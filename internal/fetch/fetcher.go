// Package fetch pulls raw series from external data providers and
// snapshots them to disk. The correlation core never talks to this
// package; it consumes already-fetched series.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/macroview/macrocorr/internal/config"
	"github.com/macroview/macrocorr/internal/net/budget"
	"github.com/macroview/macrocorr/internal/net/ratelimit"
	"github.com/macroview/macrocorr/internal/timeseries"
)

// Provider fetches one series' raw observations by provider-side id.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, id string) ([]timeseries.Observation, error)
}

// Client routes series specs to providers, enforcing per-provider rate
// limits and circuit breaking so one flaky upstream cannot stall or spam
// a whole run.
type Client struct {
	providers map[string]Provider
	breakers  map[string]*gobreaker.CircuitBreaker
	limiter   *ratelimit.Limiter
	budget    *budget.Tracker
}

// NewClient builds a client over the default providers.
func NewClient() *Client {
	httpc := &http.Client{Timeout: 20 * time.Second}
	c := &Client{
		providers: make(map[string]Provider),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		limiter:   ratelimit.New(2.0, 2),
		budget:    budget.NewTracker(500),
	}
	fred := NewFRED(httpc)
	c.register(fred)
	c.register(NewStooq(httpc))
	c.register(NewYahoo(httpc, fred))
	return c
}

func (c *Client) register(p Provider) {
	c.providers[p.Name()] = p
	c.breakers[p.Name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    p.Name(),
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("fetch circuit breaker state change")
		},
	})
}

// FetchSeries fetches one configured series through the rate limiter and
// the provider's circuit breaker.
func (c *Client) FetchSeries(ctx context.Context, spec config.SeriesSpec) (*timeseries.Series, error) {
	p, ok := c.providers[spec.Source]
	if !ok {
		return nil, fmt.Errorf("no provider registered for source %q", spec.Source)
	}
	if err := c.budget.Spend(spec.Source); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx, spec.Source); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", spec.Source, err)
	}
	out, err := c.breakers[spec.Source].Execute(func() (interface{}, error) {
		return p.Fetch(ctx, spec.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s (%s:%s): %w", spec.Name, spec.Source, spec.ID, err)
	}
	obs := out.([]timeseries.Observation)
	s := timeseries.New(spec.Name, obs)
	s.Label = spec.Label
	s.Transform = spec.Transform
	s.Frequency = spec.Frequency
	s.ResampleMean = spec.Resample == "mean"
	return s, nil
}

// FetchAll fetches every configured series in config order, logging and
// skipping failures; retry is the caller's concern, not the pipeline's.
// Returns the series that succeeded.
func (c *Client) FetchAll(ctx context.Context, specs []config.SeriesSpec) []*timeseries.Series {
	var out []*timeseries.Series
	for _, spec := range specs {
		s, err := c.FetchSeries(ctx, spec)
		if err != nil {
			log.Warn().Err(err).Str("series", spec.Name).Msg("fetch failed, skipping")
			continue
		}
		log.Info().Str("series", spec.Name).Int("rows", s.Len()).Msg("fetched")
		out = append(out, s)
	}
	return out
}
