package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"order_engine/internal/domain"
	"order_engine/internal/infra"

	"github.com/shopspring/decimal"
)

// Progress checkpoints reported to the queue transport.
const (
	ProgressRouting   = 10
	ProgressBuilding  = 40
	ProgressSubmitted = 70
	ProgressDone      = 100
)

// QuoteRouter finds the best venue and executes against it.
type QuoteRouter interface {
	BestQuote(ctx context.Context, inputAsset, outputAsset string, amount decimal.Decimal) (domain.Quote, error)
	Execute(ctx context.Context, quote domain.Quote) (domain.ExecutionResult, error)
}

// Processor drives one order from pending to a terminal status.
//
// Every step goes through domain.Advance, is persisted with a status guard,
// and only then published. Running the same job again is safe: steps the
// order already passed are skipped without events.
type Processor struct {
	orders    domain.OrderRepository
	router    QuoteRouter
	publisher domain.StatusPublisher
	metrics   *infra.Metrics
	now       func() time.Time
}

// NewProcessor creates a processor. A nil metrics uses infra.GlobalMetrics.
func NewProcessor(orders domain.OrderRepository, router QuoteRouter, publisher domain.StatusPublisher, metrics *infra.Metrics) *Processor {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Processor{
		orders:    orders,
		router:    router,
		publisher: publisher,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Process runs the execution pipeline for the job's order.
// A returned error is retriable only for persistence failures before the final attempt.
func (p *Processor) Process(ctx context.Context, job domain.Job, progress domain.ProgressReporter) error {
	orderID := job.Payload.OrderID
	logger := slog.With(
		slog.String("order_id", orderID),
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
	)

	order, err := p.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return err
		}
		return domain.NewTransportError("load order", err)
	}
	if order.Status.IsTerminal() {
		logger.Info("Order already finished, skipping", slog.String("status", order.Status.String()))
		p.metrics.RecordDuplicate()
		return nil
	}

	// 1. Routing
	progress.ReportProgress(ProgressRouting)
	if err := p.step(ctx, job, order, domain.Transition{Trigger: domain.TriggerPickedUp}); err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return nil
	}

	// 2. Quote
	var quote domain.Quote
	if order.Status.Reached(domain.StatusBuilding) {
		quote, err = persistedQuote(order)
		if err != nil {
			return p.failOrder(ctx, job, order, err)
		}
		logger.Info("Resuming with persisted quote", slog.String("venue", quote.Venue))
	} else {
		quote, err = p.router.BestQuote(ctx, order.InputAsset, order.OutputAsset, order.Amount)
		if err != nil {
			return p.failOrder(ctx, job, order, err)
		}
	}

	progress.ReportProgress(ProgressBuilding)
	if err := p.step(ctx, job, order, domain.Transition{Trigger: domain.TriggerQuoted, Quote: &quote}); err != nil {
		return err
	}
	// the stored quote wins if a concurrent delivery got there first
	if stored, err := persistedQuote(order); err == nil {
		quote = stored
	}

	// 3. Submission
	progress.ReportProgress(ProgressSubmitted)
	if err := p.step(ctx, job, order, domain.Transition{Trigger: domain.TriggerSubmitted}); err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return nil
	}

	// 4. Execution
	result, err := p.router.Execute(ctx, quote)
	if err != nil {
		return p.failOrder(ctx, job, order, err)
	}
	if err := p.step(ctx, job, order, domain.Transition{Trigger: domain.TriggerConfirmed, Result: &result}); err != nil {
		return err
	}

	progress.ReportProgress(ProgressDone)
	if order.Status == domain.StatusConfirmed {
		p.metrics.RecordOrderOutcome(true)
		logger.Info("✅ Order confirmed",
			slog.String("venue", quote.Venue),
			slog.String("price", result.ExecutedPrice.String()),
			slog.String("settlement_ref", result.SettlementRef),
		)
	}
	return nil
}

// step applies one transition. A transition the order already passed is a no-op.
func (p *Processor) step(ctx context.Context, job domain.Job, order *domain.Order, t domain.Transition) error {
	upd, ev, err := domain.Advance(order, t, p.now())
	if errors.Is(err, domain.ErrDuplicateTransition) {
		slog.Debug("Transition already applied",
			slog.String("order_id", order.ID),
			slog.String("trigger", string(t.Trigger)),
			slog.String("status", order.Status.String()),
		)
		p.metrics.RecordDuplicate()
		return nil
	}
	if err != nil {
		return err
	}

	if err := p.orders.Update(ctx, order.ID, upd); err != nil {
		if errors.Is(err, domain.ErrDuplicateTransition) {
			// another delivery moved the order; continue from the stored state
			p.metrics.RecordDuplicate()
			return p.reload(ctx, order)
		}
		return p.persistFailure(ctx, job, order, err)
	}

	order.Apply(upd)
	p.publish(ctx, ev)
	return nil
}

// failOrder records cause on the order and returns it to the transport as final.
func (p *Processor) failOrder(ctx context.Context, job domain.Job, order *domain.Order, cause error) error {
	upd, ev, err := domain.Advance(order, domain.Transition{Trigger: domain.TriggerFailed, Err: cause}, p.now())
	if err != nil {
		return fmt.Errorf("order %s: %w", order.ID, cause)
	}

	if err := p.orders.Update(ctx, order.ID, upd); err != nil {
		if !errors.Is(err, domain.ErrDuplicateTransition) && !job.IsFinalAttempt() {
			return domain.NewTransportError("record failure", err)
		}
		slog.Error("Failed to record order failure",
			slog.String("order_id", order.ID),
			slog.Any("cause", cause),
			slog.Any("error", err),
		)
		return fmt.Errorf("order %s: %w", order.ID, cause)
	}

	order.Apply(upd)
	p.publish(ctx, ev)
	p.metrics.RecordOrderOutcome(false)

	slog.Warn("❌ Order failed", slog.String("order_id", order.ID), slog.Any("error", cause))
	return fmt.Errorf("order %s: %w", order.ID, cause)
}

// persistFailure turns a store error into a transport retry, or into an order
// failure once the retry budget is spent.
func (p *Processor) persistFailure(ctx context.Context, job domain.Job, order *domain.Order, err error) error {
	terr := domain.NewTransportError("update order", err)
	if !job.IsFinalAttempt() {
		return terr
	}
	failErr := p.failOrder(ctx, job, order, terr)
	// never hand a retriable error back on the last attempt
	if domain.IsRetriable(failErr) {
		return domain.NewFatalTransportError("update order", err)
	}
	return failErr
}

func (p *Processor) reload(ctx context.Context, order *domain.Order) error {
	fresh, err := p.orders.FindByID(ctx, order.ID)
	if err != nil {
		return domain.NewTransportError("reload order", err)
	}
	*order = *fresh
	return nil
}

func (p *Processor) publish(ctx context.Context, ev domain.StatusEvent) {
	if err := p.publisher.Publish(ctx, ev); err != nil {
		slog.Warn("Failed to publish status",
			slog.String("order_id", ev.OrderID),
			slog.String("status", ev.Status.String()),
			slog.Any("error", err),
		)
	}
}

func persistedQuote(order *domain.Order) (domain.Quote, error) {
	if order.Venue == nil || !order.QuotedPrice.Valid {
		return domain.Quote{}, fmt.Errorf("%w: order %s is %s without a stored quote",
			domain.ErrInvalidTransition, order.ID, order.Status)
	}
	return domain.Quote{Venue: *order.Venue, Price: order.QuotedPrice.Decimal}, nil
}
