package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"order_engine/internal/api"
	"order_engine/internal/domain"
	"order_engine/internal/engine"
	"order_engine/internal/execution"
	"order_engine/internal/infra"
	"order_engine/internal/infra/kafka"
	"order_engine/internal/infra/queue"
	"order_engine/internal/infra/storage"
	"order_engine/internal/service"
	"order_engine/internal/stream"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Metrics   *infra.Metrics
	Storage   *storage.Storage
	Queue     *queue.Queue
	Registry  *stream.Registry
	Publisher domain.StatusPublisher
	Orders    *service.OrderService
	Router    *execution.Router
	Server    *api.Server
	Workers   *engine.WorkerPool

	journal  *queue.Journal
	consumer *kafka.Consumer
	closers  []func() error
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{Metrics: infra.GlobalMetrics}
}

// Initialize performs core system initialization (config, DB, queue, wiring)
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping Order Execution Engine...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	b.closers = append(b.closers, store.Close)
	slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.Path))

	// 4. Job queue (+ optional journal)
	if cfg.Queue.JournalPath != "" {
		journal, err := queue.OpenJournal(cfg.Queue.JournalPath, cfg.Queue.Name)
		if err != nil {
			b.Close()
			return err
		}
		b.journal = journal
		b.closers = append(b.closers, journal.Close)
	}
	b.Queue = queue.New(queue.Options{
		Name:        cfg.Queue.Name,
		MaxAttempts: cfg.Queue.MaxAttempts,
		Backoff:     cfg.RetryBackoff().Delay,
		Journal:     b.journal,
	})
	slog.Info("✅ Job queue ready", slog.String("queue", cfg.Queue.Name), slog.Bool("journal", b.journal != nil))

	// 5. Live-update fan-out
	b.Registry = stream.NewRegistry(b.Metrics)
	switch cfg.Stream.Bus {
	case "kafka":
		k := cfg.Stream.Kafka
		pub := kafka.NewPublisher(k.Brokers, k.Topic, b.Metrics)
		b.Publisher = pub
		b.consumer = kafka.NewConsumer(k.Brokers, k.Topic, consumerGroup(k.GroupID), b.Registry)
		b.closers = append(b.closers, pub.Close, b.consumer.Close)
		slog.Info("✅ Kafka status bus configured", slog.String("topic", k.Topic))
	default:
		b.Publisher = stream.NewLocalPublisher(b.Registry, b.Metrics)
	}

	// 6. Services
	b.Orders = service.NewOrderService(b.Storage, b.Queue)
	b.Router = execution.NewRouterFromConfig(cfg)
	slog.Info("✅ Venues configured", slog.Any("venues", b.Router.Venues()))

	b.Server = api.NewServer(api.Options{
		Addr:             cfg.Server.Addr,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		SubscriberBuffer: cfg.Stream.SubscriberBuffer,
		QueueStats:       b.Queue.Stats,
	}, b.Orders, b.Registry, b.Metrics)

	if cfg.Worker.Enabled {
		processor := engine.NewProcessor(b.Storage, b.Router, b.Publisher, b.Metrics)
		b.Workers = engine.NewWorkerPool(b.Queue, processor, cfg.Worker.Concurrency, b.Metrics).
			WithShutdownGrace(time.Duration(cfg.Worker.ShutdownGraceMS) * time.Millisecond)
	}

	return nil
}

// Recover re-enqueues work left over from a previous run.
func (b *Bootstrap) Recover(ctx context.Context) error {
	if b.journal != nil {
		n, err := b.Queue.Recover(ctx)
		if err != nil {
			return err
		}
		slog.Info("🔄 Queue journal replayed", slog.Int("jobs", n))
		return nil
	}
	_, err := b.Orders.RequeueUnfinished(ctx, b.Storage)
	return err
}

// Run serves the API and, when enabled, the worker pool until ctx is cancelled.
func (b *Bootstrap) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.Server.Start(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if b.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.consumer.Run(ctx)
		}()
	}

	if b.Workers != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Workers.Run(ctx)
		}()
	} else {
		slog.Info("Worker disabled, running API only")
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("API shutdown incomplete", slog.Any("error", err))
	}

	wg.Wait()
	return runErr
}

// Close releases resources in reverse order of acquisition.
func (b *Bootstrap) Close() {
	if b.Queue != nil {
		b.Queue.Close()
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("Close failed", slog.Any("error", err))
		}
	}
	b.closers = nil
}

// consumerGroup gives each process its own group so every replica sees every event.
func consumerGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return base
	}
	return base + "-" + host
}
