package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"order_engine/internal/domain"
	"order_engine/internal/infra"
)

// DefaultConcurrency is the number of jobs processed in parallel.
const DefaultConcurrency = 5

// JobHandler processes one job to completion.
type JobHandler interface {
	Process(ctx context.Context, job domain.Job, progress domain.ProgressReporter) error
}

// WorkerPool runs a fixed number of worker slots against a job source.
// Each slot takes one delivery, runs it to completion, then acks or nacks it.
type WorkerPool struct {
	source      domain.JobSource
	handler     JobHandler
	concurrency int
	grace       time.Duration
	metrics     *infra.Metrics
}

// NewWorkerPool creates a pool. A non-positive concurrency uses DefaultConcurrency.
func NewWorkerPool(source domain.JobSource, handler JobHandler, concurrency int, metrics *infra.Metrics) *WorkerPool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &WorkerPool{
		source:      source,
		handler:     handler,
		concurrency: concurrency,
		grace:       10 * time.Second,
		metrics:     metrics,
	}
}

// WithShutdownGrace sets how long in-flight jobs may run after ctx is cancelled.
func (w *WorkerPool) WithShutdownGrace(d time.Duration) *WorkerPool {
	w.grace = d
	return w
}

// Run blocks until ctx is cancelled or the source closes.
// In-flight jobs are not cancelled with ctx; they get the shutdown grace period to finish.
func (w *WorkerPool) Run(ctx context.Context) {
	slog.Info("🚀 Worker pool started", slog.Int("concurrency", w.concurrency))

	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	var wg sync.WaitGroup
	for slot := 0; slot < w.concurrency; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, jobCtx, slot)
		}(slot)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Info("Worker pool stopping, waiting for in-flight jobs", slog.Duration("grace", w.grace))
		timer := time.NewTimer(w.grace)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			slog.Warn("Shutdown grace expired, cancelling in-flight jobs")
			cancelJobs()
			<-done
		}
	}

	slog.Info("Worker pool stopped")
}

func (w *WorkerPool) loop(ctx, jobCtx context.Context, slot int) {
	for {
		d, err := w.source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, domain.ErrQueueClosed) {
				return
			}
			slog.Error("Dequeue failed", slog.Int("slot", slot), slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		w.handle(jobCtx, slot, d)
	}
}

func (w *WorkerPool) handle(ctx context.Context, slot int, d domain.Delivery) {
	job := d.Job()
	start := time.Now()

	w.metrics.JobStarted()
	defer w.metrics.JobFinished()

	err := w.run(ctx, job, d)
	w.metrics.RecordJob(time.Since(start), err != nil)

	if err != nil {
		d.Nack(err)
		return
	}
	d.Ack()

	slog.Debug("Job done",
		slog.Int("slot", slot),
		slog.String("job_id", job.ID),
		slog.Duration("latency", time.Since(start)),
	)
}

func (w *WorkerPool) run(ctx context.Context, job domain.Job, progress domain.ProgressReporter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.String("job_id", job.ID), slog.Any("panic", r))
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()

	if job.Name != domain.JobExecuteOrder {
		return fmt.Errorf("unknown job name %q", job.Name)
	}
	return w.handler.Process(ctx, job, progress)
}
