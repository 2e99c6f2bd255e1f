package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"order_engine/internal/domain"

	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *Storage {
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestCreateAndFindOrder(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	order := domain.NewOrder("order-1", "SOL", "USDC", decimal.RequireFromString("1.5"))

	// 1. Create
	if err := s.Create(ctx, order); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// 2. Find
	fetched, err := s.FindByID(ctx, "order-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if fetched.Status != domain.StatusPending {
		t.Errorf("expected status pending, got %s", fetched.Status)
	}
	if !fetched.Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("expected amount 1.5, got %s", fetched.Amount)
	}
	if fetched.Venue != nil || fetched.QuotedPrice.Valid || fetched.SettlementRef != nil {
		t.Error("nullable fields should be empty on a fresh order")
	}
}

func TestFindOrder_NotFound(t *testing.T) {
	s := setupTestDB(t)

	_, err := s.FindByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestUpdateOrder_PartialFields(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	s.Create(ctx, domain.NewOrder("order-2", "SOL", "USDC", decimal.NewFromInt(2)))

	venue := "Meteora"
	updates := []domain.OrderUpdate{
		{ExpectedStatus: domain.StatusPending, Status: domain.StatusRouting},
		{
			ExpectedStatus: domain.StatusRouting,
			Status:         domain.StatusBuilding,
			Venue:          &venue,
			QuotedPrice:    decimal.NewNullDecimal(decimal.RequireFromString("151.2")),
		},
	}
	for _, upd := range updates {
		if err := s.Update(ctx, "order-2", upd); err != nil {
			t.Fatalf("Update to %s failed: %v", upd.Status, err)
		}
	}

	fetched, _ := s.FindByID(ctx, "order-2")
	if fetched.Status != domain.StatusBuilding {
		t.Errorf("expected building, got %s", fetched.Status)
	}
	if fetched.Venue == nil || *fetched.Venue != "Meteora" {
		t.Errorf("expected venue Meteora, got %v", fetched.Venue)
	}
	if !fetched.QuotedPrice.Valid || !fetched.QuotedPrice.Decimal.Equal(decimal.RequireFromString("151.2")) {
		t.Errorf("expected quoted price 151.2, got %v", fetched.QuotedPrice)
	}
}

func TestUpdateOrder_GuardRejectsStaleStatus(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	s.Create(ctx, domain.NewOrder("order-3", "SOL", "USDC", decimal.NewFromInt(1)))

	upd := domain.OrderUpdate{ExpectedStatus: domain.StatusPending, Status: domain.StatusRouting}
	if err := s.Update(ctx, "order-3", upd); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	// Redelivery applies the same transition again.
	err := s.Update(ctx, "order-3", upd)
	if !errors.Is(err, domain.ErrDuplicateTransition) {
		t.Errorf("expected ErrDuplicateTransition, got %v", err)
	}

	err = s.Update(ctx, "missing", upd)
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound for unknown id, got %v", err)
	}
}

func TestListByStatus(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	s.Create(ctx, domain.NewOrder("a", "SOL", "USDC", decimal.NewFromInt(1)))
	s.Create(ctx, domain.NewOrder("b", "SOL", "USDC", decimal.NewFromInt(1)))
	s.Update(ctx, "b", domain.OrderUpdate{ExpectedStatus: domain.StatusPending, Status: domain.StatusRouting})
	msg := "NoQuoteAvailable"
	s.Create(ctx, domain.NewOrder("c", "SOL", "USDC", decimal.NewFromInt(1)))
	s.Update(ctx, "c", domain.OrderUpdate{ExpectedStatus: domain.StatusPending, Status: domain.StatusFailed, Error: &msg})

	open, err := s.ListByStatus(ctx, 0, domain.StatusPending, domain.StatusRouting)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("expected 2 unfinished orders, got %d", len(open))
	}

	failed, _ := s.ListByStatus(ctx, 10, domain.StatusFailed)
	if len(failed) != 1 || failed[0].Error == nil || *failed[0].Error != msg {
		t.Errorf("unexpected failed orders: %+v", failed)
	}
}
