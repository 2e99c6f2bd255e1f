package execution

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"order_engine/internal/domain"
	"order_engine/internal/infra"

	"github.com/shopspring/decimal"
)

func TestMockVenue_QuoteWithinVariance(t *testing.T) {
	venue := NewMockVenue(MockVenueConfig{
		Name:         "Raydium",
		BasePrice:    decimal.NewFromInt(150),
		VarianceLow:  -0.02,
		VarianceHigh: 0.02,
		Fee:          decimal.RequireFromString("0.003"),
	})

	low := decimal.RequireFromString("147")
	high := decimal.RequireFromString("153")

	for i := 0; i < 50; i++ {
		q, err := venue.Quote(context.Background(), "SOL", "USDC", decimal.NewFromInt(1))
		if err != nil {
			t.Fatalf("Quote failed: %v", err)
		}
		if q.Venue != "Raydium" {
			t.Errorf("Expected venue Raydium, got %s", q.Venue)
		}
		if q.Price.LessThan(low) || q.Price.GreaterThan(high) {
			t.Errorf("price %s outside [147, 153]", q.Price)
		}
		if err := q.Validate(); err != nil {
			t.Errorf("mock quote should validate: %v", err)
		}
	}
}

func TestMockVenue_Execute(t *testing.T) {
	venue := NewMockVenue(MockVenueConfig{Name: "Meteora", BasePrice: decimal.NewFromInt(150)})
	quote := domain.Quote{Venue: "Meteora", Price: decimal.RequireFromString("151.2")}

	res, err := venue.Execute(context.Background(), quote)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.HasPrefix(res.SettlementRef, "tx_") || len(res.SettlementRef) != 19 {
		t.Errorf("unexpected settlement ref %q", res.SettlementRef)
	}
	if !res.ExecutedPrice.Equal(quote.Price) {
		t.Errorf("Expected executed price %s, got %s", quote.Price, res.ExecutedPrice)
	}

	// Quote from another venue
	_, err = venue.Execute(context.Background(), domain.Quote{Venue: "Raydium", Price: quote.Price})
	if !errors.Is(err, domain.ErrExecutionFailed) {
		t.Errorf("Expected ErrExecutionFailed, got %v", err)
	}
}

func TestMockVenue_FailureModes(t *testing.T) {
	venue := NewMockVenue(MockVenueConfig{
		Name:           "Broken",
		BasePrice:      decimal.NewFromInt(150),
		FailQuotes:     true,
		FailExecutions: true,
	})

	if _, err := venue.Quote(context.Background(), "SOL", "USDC", decimal.NewFromInt(1)); err == nil {
		t.Error("Expected quote failure")
	}
	_, err := venue.Execute(context.Background(), domain.Quote{Venue: "Broken", Price: decimal.NewFromInt(1)})
	if !errors.Is(err, domain.ErrExecutionFailed) {
		t.Errorf("Expected ErrExecutionFailed, got %v", err)
	}
}

func TestMockVenue_HonorsContext(t *testing.T) {
	venue := NewMockVenue(MockVenueConfig{
		Name:         "Slow",
		BasePrice:    decimal.NewFromInt(150),
		QuoteLatency: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := venue.Quote(ctx, "SOL", "USDC", decimal.NewFromInt(1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestNewVenues(t *testing.T) {
	defaults := NewVenues(nil)
	if len(defaults) != 2 || defaults[0].Name() != "Raydium" || defaults[1].Name() != "Meteora" {
		t.Errorf("unexpected default venues")
	}

	configured := NewVenues([]infra.VenueConfig{
		{Name: "Orca", BasePrice: decimal.NewFromInt(100), Fee: decimal.RequireFromString("0.001")},
	})
	if len(configured) != 1 || configured[0].Name() != "Orca" {
		t.Fatalf("unexpected configured venues")
	}
	q, err := configured[0].Quote(context.Background(), "SOL", "USDC", decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if !q.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("zero variance should quote the base price, got %s", q.Price)
	}
}
