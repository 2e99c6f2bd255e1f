package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"order_engine/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize("configs/config.yaml"); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Replay unfinished work before accepting new jobs
	if err := bootstrap.Recover(ctx); err != nil {
		slog.Error("❌ Recovery failed", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}

	slog.InfoContext(ctx, "✨ Order Execution Engine fully operational. Press Ctrl+C to exit.")

	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("❌ Engine stopped with error", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}

	slog.Info("👋 Shutting down gracefully...")
}
