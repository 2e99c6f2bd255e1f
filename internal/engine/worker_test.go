package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"order_engine/internal/domain"
	"order_engine/internal/infra"
	"order_engine/internal/infra/queue"
)

type handlerFunc func(ctx context.Context, job domain.Job, progress domain.ProgressReporter) error

func (f handlerFunc) Process(ctx context.Context, job domain.Job, progress domain.ProgressReporter) error {
	return f(ctx, job, progress)
}

func enqueueN(t *testing.T, q *queue.Queue, name string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := q.Enqueue(context.Background(), name, domain.JobPayload{OrderID: fmt.Sprintf("order-%d", i)}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func runPool(t *testing.T, pool *WorkerPool) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("worker pool did not stop")
		}
	}
}

func TestWorkerPool_BoundedConcurrency(t *testing.T) {
	q := queue.New(queue.Options{})
	defer q.Close()

	var inFlight, peak atomic.Int32
	handler := handlerFunc(func(ctx context.Context, job domain.Job, progress domain.ProgressReporter) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	metrics := &infra.Metrics{}
	stop := runPool(t, NewWorkerPool(q, handler, 2, metrics))
	defer stop()

	enqueueN(t, q, domain.JobExecuteOrder, 6)
	waitUntil(t, func() bool { return q.Stats().Completed == 6 })

	if got := peak.Load(); got > 2 {
		t.Errorf("Expected at most 2 concurrent jobs, saw %d", got)
	}
	if got := metrics.Snapshot().JobsProcessed; got != 6 {
		t.Errorf("Expected 6 processed jobs, got %d", got)
	}
}

func TestWorkerPool_NacksFailures(t *testing.T) {
	q := queue.New(queue.Options{Backoff: func(int) time.Duration { return 0 }})
	defer q.Close()

	var calls atomic.Int32
	handler := handlerFunc(func(ctx context.Context, job domain.Job, progress domain.ProgressReporter) error {
		calls.Add(1)
		switch job.Payload.OrderID {
		case "order-0":
			return domain.ErrNoQuoteAvailable
		case "order-1":
			panic("boom")
		}
		return nil
	})

	stop := runPool(t, NewWorkerPool(q, handler, 1, &infra.Metrics{}))
	defer stop()

	enqueueN(t, q, domain.JobExecuteOrder, 3)
	enqueueN(t, q, "unknown-job", 1)

	waitUntil(t, func() bool {
		s := q.Stats()
		return s.Completed+s.Failed == 4
	})
	s := q.Stats()
	if s.Completed != 1 || s.Failed != 3 {
		t.Errorf("unexpected stats %+v", s)
	}
	if calls.Load() != 3 {
		t.Errorf("unknown job must not reach the handler, got %d calls", calls.Load())
	}
}

func TestWorkerPool_InFlightJobSurvivesShutdown(t *testing.T) {
	q := queue.New(queue.Options{})
	defer q.Close()

	started := make(chan struct{})
	var once sync.Once
	var ctxErr atomic.Value
	handler := handlerFunc(func(ctx context.Context, job domain.Job, progress domain.ProgressReporter) error {
		once.Do(func() { close(started) })
		time.Sleep(50 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			ctxErr.Store(err)
		}
		return nil
	})

	stop := runPool(t, NewWorkerPool(q, handler, 1, &infra.Metrics{}).WithShutdownGrace(time.Second))
	enqueueN(t, q, domain.JobExecuteOrder, 1)
	<-started
	stop()

	if v := ctxErr.Load(); v != nil {
		t.Errorf("in-flight job context was cancelled: %v", v)
	}
	if q.Stats().Completed != 1 {
		t.Errorf("in-flight job should complete during the grace period")
	}
}

func TestWorkerPool_StopsWhenQueueCloses(t *testing.T) {
	q := queue.New(queue.Options{})
	pool := NewWorkerPool(q, handlerFunc(func(context.Context, domain.Job, domain.ProgressReporter) error {
		return errors.New("unused")
	}), 3, &infra.Metrics{})

	done := make(chan struct{})
	go func() {
		pool.Run(context.Background())
		close(done)
	}()
	q.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool should stop once the queue is closed")
	}
}
