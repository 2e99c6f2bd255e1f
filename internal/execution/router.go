package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"order_engine/internal/domain"

	"github.com/shopspring/decimal"
)

// DefaultQuoteTimeout bounds each venue's quote call.
const DefaultQuoteTimeout = 5 * time.Second

// Router fans a quote request out to every venue and executes against the winner.
//
// Selection: the strictly greater price wins. On an exact tie the venue whose
// quote arrived first is kept.
type Router struct {
	venues         []Venue
	byName         map[string]Venue
	quoteTimeout   time.Duration
	executeTimeout time.Duration
}

// NewRouter creates a router over the given venues. A non-positive timeout uses DefaultQuoteTimeout.
func NewRouter(quoteTimeout time.Duration, venues ...Venue) *Router {
	if quoteTimeout <= 0 {
		quoteTimeout = DefaultQuoteTimeout
	}
	byName := make(map[string]Venue, len(venues))
	for _, v := range venues {
		byName[v.Name()] = v
	}
	return &Router{
		venues:       venues,
		byName:       byName,
		quoteTimeout: quoteTimeout,
	}
}

// WithExecuteTimeout bounds Execute calls. Zero means only the caller's context applies.
func (r *Router) WithExecuteTimeout(d time.Duration) *Router {
	r.executeTimeout = d
	return r
}

// Venues returns the configured venue names in registration order.
func (r *Router) Venues() []string {
	names := make([]string, 0, len(r.venues))
	for _, v := range r.venues {
		names = append(names, v.Name())
	}
	return names
}

type quoteReply struct {
	venue string
	quote domain.Quote
	err   error
}

// BestQuote queries all venues concurrently and returns the best executable quote.
// It fails with ErrNoQuoteAvailable when every venue errors or times out.
func (r *Router) BestQuote(ctx context.Context, inputAsset, outputAsset string, amount decimal.Decimal) (domain.Quote, error) {
	if len(r.venues) == 0 {
		return domain.Quote{}, fmt.Errorf("%w: no venues configured", domain.ErrNoQuoteAvailable)
	}

	slog.Info("Fetching quotes",
		slog.String("pair", inputAsset+"/"+outputAsset),
		slog.String("amount", amount.String()),
		slog.Int("venues", len(r.venues)),
	)

	qctx, cancel := context.WithTimeout(ctx, r.quoteTimeout)
	defer cancel()

	// Buffered so late venues never block after we stop listening.
	replies := make(chan quoteReply, len(r.venues))
	for _, v := range r.venues {
		go func(v Venue) {
			q, err := v.Quote(qctx, inputAsset, outputAsset, amount)
			if err == nil {
				err = q.Validate()
			}
			replies <- quoteReply{venue: v.Name(), quote: q, err: err}
		}(v)
	}

	var (
		best    *domain.Quote
		errs    []error
		pending = len(r.venues)
	)

collect:
	for pending > 0 {
		select {
		case rep := <-replies:
			pending--
			if rep.err != nil {
				slog.Warn("Venue quote failed", slog.String("venue", rep.venue), slog.Any("error", rep.err))
				errs = append(errs, fmt.Errorf("%s: %w", rep.venue, rep.err))
				continue
			}
			slog.Info("Venue quote",
				slog.String("venue", rep.venue),
				slog.String("price", rep.quote.Price.String()),
				slog.String("fee", rep.quote.Fee.String()),
			)
			if best == nil || rep.quote.Price.GreaterThan(best.Price) {
				q := rep.quote
				best = &q
			}
		case <-qctx.Done():
			errs = append(errs, fmt.Errorf("%d venue(s) did not answer: %w", pending, qctx.Err()))
			break collect
		}
	}

	if best == nil {
		return domain.Quote{}, fmt.Errorf("%w: all %d venues failed: %w",
			domain.ErrNoQuoteAvailable, len(r.venues), errors.Join(errs...))
	}

	slog.Info("Best quote selected", slog.String("venue", best.Venue), slog.String("price", best.Price.String()))
	return *best, nil
}

// Execute performs the swap on the venue named in the quote.
// Every failure is reported as an ExecutionError.
func (r *Router) Execute(ctx context.Context, quote domain.Quote) (domain.ExecutionResult, error) {
	v, ok := r.byName[quote.Venue]
	if !ok {
		return domain.ExecutionResult{}, &domain.ExecutionError{Venue: quote.Venue, Reason: "unknown venue"}
	}

	if r.executeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.executeTimeout)
		defer cancel()
	}

	slog.Info("Executing swap", slog.String("venue", quote.Venue), slog.String("price", quote.Price.String()))

	res, err := v.Execute(ctx, quote)
	if err != nil {
		var execErr *domain.ExecutionError
		if errors.As(err, &execErr) {
			return domain.ExecutionResult{}, err
		}
		return domain.ExecutionResult{}, &domain.ExecutionError{Venue: quote.Venue, Reason: "execution failed", Err: err}
	}
	if res.SettlementRef == "" {
		return domain.ExecutionResult{}, &domain.ExecutionError{Venue: quote.Venue, Reason: "empty settlement reference"}
	}
	return res, nil
}
