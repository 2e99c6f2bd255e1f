package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"order_engine/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockVenueConfig describes a simulated venue.
type MockVenueConfig struct {
	Name           string
	BasePrice      decimal.Decimal
	VarianceLow    float64 // fraction, e.g. -0.02
	VarianceHigh   float64 // fraction, e.g. 0.02
	Fee            decimal.Decimal
	QuoteLatency   time.Duration
	ExecuteLatency time.Duration
	FailQuotes     bool
	FailExecutions bool
}

// MockVenue is a safe Venue implementation that never touches a real exchange.
type MockVenue struct {
	cfg MockVenueConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockVenue creates a simulated venue.
func NewMockVenue(cfg MockVenueConfig) *MockVenue {
	return &MockVenue{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(len(cfg.Name)))),
	}
}

// NewRaydiumMock returns the default Raydium-like venue: 150 +/-2%, fee 0.3%.
func NewRaydiumMock() *MockVenue {
	return NewMockVenue(MockVenueConfig{
		Name:           "Raydium",
		BasePrice:      decimal.NewFromInt(150),
		VarianceLow:    -0.02,
		VarianceHigh:   0.02,
		Fee:            decimal.RequireFromString("0.003"),
		QuoteLatency:   2500 * time.Millisecond,
		ExecuteLatency: 2 * time.Second,
	})
}

// NewMeteoraMock returns the default Meteora-like venue: 150 -1%..+3%, fee 0.2%.
func NewMeteoraMock() *MockVenue {
	return NewMockVenue(MockVenueConfig{
		Name:           "Meteora",
		BasePrice:      decimal.NewFromInt(150),
		VarianceLow:    -0.01,
		VarianceHigh:   0.03,
		Fee:            decimal.RequireFromString("0.002"),
		QuoteLatency:   2 * time.Second,
		ExecuteLatency: 2 * time.Second,
	})
}

func (m *MockVenue) Name() string {
	return m.cfg.Name
}

func (m *MockVenue) Quote(ctx context.Context, inputAsset, outputAsset string, amount decimal.Decimal) (domain.Quote, error) {
	if err := sleep(ctx, m.cfg.QuoteLatency); err != nil {
		return domain.Quote{}, err
	}
	if m.cfg.FailQuotes {
		return domain.Quote{}, fmt.Errorf("%s: quote unavailable for %s/%s", m.cfg.Name, inputAsset, outputAsset)
	}

	price := m.cfg.BasePrice.Mul(decimal.NewFromFloat(1 + m.variance())).Round(6)

	slog.Debug("MOCK VENUE: Quote",
		slog.String("venue", m.cfg.Name),
		slog.String("pair", inputAsset+"/"+outputAsset),
		slog.String("amount", amount.String()),
		slog.String("price", price.String()),
	)

	return domain.Quote{Venue: m.cfg.Name, Price: price, Fee: m.cfg.Fee}, nil
}

func (m *MockVenue) Execute(ctx context.Context, quote domain.Quote) (domain.ExecutionResult, error) {
	if quote.Venue != m.cfg.Name {
		return domain.ExecutionResult{}, &domain.ExecutionError{Venue: m.cfg.Name, Reason: "quote belongs to " + quote.Venue}
	}
	if err := sleep(ctx, m.cfg.ExecuteLatency); err != nil {
		return domain.ExecutionResult{}, err
	}
	if m.cfg.FailExecutions {
		return domain.ExecutionResult{}, &domain.ExecutionError{Venue: m.cfg.Name, Reason: "swap rejected"}
	}

	return domain.ExecutionResult{
		SettlementRef: newSettlementRef(),
		ExecutedPrice: quote.Price,
	}, nil
}

func (m *MockVenue) variance() float64 {
	if m.cfg.VarianceHigh <= m.cfg.VarianceLow {
		return m.cfg.VarianceLow
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.VarianceLow + m.rng.Float64()*(m.cfg.VarianceHigh-m.cfg.VarianceLow)
}

func newSettlementRef() string {
	return "tx_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
