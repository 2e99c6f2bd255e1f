package stream

import (
	"context"
	"log/slog"

	"order_engine/internal/domain"
	"order_engine/internal/infra"
)

// LocalPublisher fans status events out to the in-process registry.
type LocalPublisher struct {
	registry *Registry
	metrics  *infra.Metrics
}

var _ domain.StatusPublisher = (*LocalPublisher)(nil)

// NewLocalPublisher creates a publisher over registry. A nil metrics uses infra.GlobalMetrics.
func NewLocalPublisher(registry *Registry, metrics *infra.Metrics) *LocalPublisher {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &LocalPublisher{registry: registry, metrics: metrics}
}

// Publish never blocks on subscribers: a full subscriber is disconnected instead.
func (p *LocalPublisher) Publish(ctx context.Context, ev domain.StatusEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n := p.registry.Dispatch(ev)
	p.metrics.RecordPublished()

	slog.Debug("Status published",
		slog.String("order_id", ev.OrderID),
		slog.String("status", ev.Status.String()),
		slog.Int("subscribers", n),
	)
	return nil
}
