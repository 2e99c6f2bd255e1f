package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Quote is a venue's proposed execution for one routing step. Never persisted on its own.
type Quote struct {
	Venue string          `json:"venue"`
	Price decimal.Decimal `json:"price"`
	Fee   decimal.Decimal `json:"fee"` // fraction in [0,1)
}

// Validate rejects quotes that cannot be executed.
func (q Quote) Validate() error {
	if q.Venue == "" {
		return fmt.Errorf("quote has no venue")
	}
	if !q.Price.IsPositive() {
		return fmt.Errorf("quote from %s has non-positive price %s", q.Venue, q.Price)
	}
	if q.Fee.IsNegative() || q.Fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("quote from %s has fee %s outside [0,1)", q.Venue, q.Fee)
	}
	return nil
}

// ExecutionResult is what a venue reports after executing a quote.
type ExecutionResult struct {
	SettlementRef string          `json:"settlementRef"`
	ExecutedPrice decimal.Decimal `json:"executedPrice"`
}
