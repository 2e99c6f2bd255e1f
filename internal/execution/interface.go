package execution

import (
	"context"

	"order_engine/internal/domain"

	"github.com/shopspring/decimal"
)

// Venue is a pluggable source of quotes and execution for an asset pair.
type Venue interface {
	// Name identifies the venue in quotes and persisted orders.
	Name() string

	// Quote proposes an execution price for swapping amount of inputAsset into outputAsset.
	Quote(ctx context.Context, inputAsset, outputAsset string, amount decimal.Decimal) (domain.Quote, error)

	// Execute performs the swap at the quoted venue.
	Execute(ctx context.Context, quote domain.Quote) (domain.ExecutionResult, error)
}
