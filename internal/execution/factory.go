package execution

import (
	"time"

	"order_engine/internal/infra"
)

// NewVenues builds the simulated venues from configuration.
// With no venues configured it falls back to the Raydium and Meteora mocks.
func NewVenues(cfgs []infra.VenueConfig) []Venue {
	if len(cfgs) == 0 {
		return []Venue{NewRaydiumMock(), NewMeteoraMock()}
	}

	venues := make([]Venue, 0, len(cfgs))
	for _, c := range cfgs {
		venues = append(venues, NewMockVenue(MockVenueConfig{
			Name:           c.Name,
			BasePrice:      c.BasePrice,
			VarianceLow:    c.VarianceLow,
			VarianceHigh:   c.VarianceHigh,
			Fee:            c.Fee,
			QuoteLatency:   time.Duration(c.QuoteLatencyMS) * time.Millisecond,
			ExecuteLatency: time.Duration(c.ExecuteLatencyMS) * time.Millisecond,
			FailQuotes:     c.FailQuotes,
			FailExecutions: c.FailExecutions,
		}))
	}
	return venues
}

// NewRouterFromConfig wires the configured venues and timeouts into a Router.
func NewRouterFromConfig(cfg *infra.Config) *Router {
	r := NewRouter(time.Duration(cfg.Router.QuoteTimeoutMS)*time.Millisecond, NewVenues(cfg.Venues)...)
	if cfg.Router.ExecuteTimeoutMS > 0 {
		r.WithExecuteTimeout(time.Duration(cfg.Router.ExecuteTimeoutMS) * time.Millisecond)
	}
	return r
}
