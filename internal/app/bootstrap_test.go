package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"order_engine/internal/service"
	"order_engine/internal/stream"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, dir string, workers bool) string {
	t.Helper()
	body := fmt.Sprintf(`server:
  addr: "127.0.0.1:0"
worker:
  enabled: %t
  concurrency: 2
  shutdown_grace_ms: 100
queue:
  journal_path: %q
storage:
  path: %q
logging:
  level: error
  dir: ""
`, workers, filepath.Join(dir, "queue"), filepath.Join(dir, "orders.db"))

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestInitialize_WiresComponents(t *testing.T) {
	path := writeConfig(t, t.TempDir(), true)

	b := NewBootstrap()
	if err := b.Initialize(path); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer b.Close()

	if b.Workers == nil {
		t.Error("expected a worker pool when workers are enabled")
	}
	if _, ok := b.Publisher.(*stream.LocalPublisher); !ok {
		t.Errorf("expected the in-process publisher, got %T", b.Publisher)
	}
	if len(b.Router.Venues()) != 2 {
		t.Errorf("expected 2 default venues, got %v", b.Router.Venues())
	}
	if err := b.Recover(context.Background()); err != nil {
		t.Errorf("Recover on an empty journal failed: %v", err)
	}
}

func TestRecover_ReplaysJournaledJobs(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, false)
	amount := decimal.RequireFromString("2")

	// 1. Accept an order with no worker running, then stop.
	first := NewBootstrap()
	if err := first.Initialize(path); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	resp, err := first.Orders.Submit(context.Background(), service.SubmitRequest{
		InputAsset: "SOL", OutputAsset: "USDC", Amount: &amount,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	first.Close()

	// 2. A fresh process sees the job again.
	second := NewBootstrap()
	if err := second.Initialize(path); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	defer second.Close()

	if err := second.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if got := second.Queue.Stats().Waiting; got != 1 {
		t.Fatalf("expected 1 replayed job, got %d", got)
	}

	order, err := second.Orders.Get(context.Background(), resp.OrderID)
	if err != nil {
		t.Fatalf("order lost across restart: %v", err)
	}
	if order.Status.IsTerminal() {
		t.Errorf("order should still be open, got %s", order.Status)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	path := writeConfig(t, t.TempDir(), true)

	b := NewBootstrap()
	if err := b.Initialize(path); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
