package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"order_engine/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubmitRequest is the ingress payload for a swap order.
// inputToken/outputToken are accepted as older names for the asset fields.
type SubmitRequest struct {
	InputAsset  string           `json:"inputAsset"`
	OutputAsset string           `json:"outputAsset"`
	InputToken  string           `json:"inputToken,omitempty"`
	OutputToken string           `json:"outputToken,omitempty"`
	Amount      *decimal.Decimal `json:"amount"`
}

// SubmitResponse is returned once the order is persisted and queued.
type SubmitResponse struct {
	OrderID string             `json:"orderId"`
	Status  domain.OrderStatus `json:"status"`
}

// OrderLister lists orders by status; used to requeue work after a restart without a journal.
type OrderLister interface {
	ListByStatus(ctx context.Context, limit int, statuses ...domain.OrderStatus) ([]domain.Order, error)
}

// OrderService accepts orders and hands them to the execution queue.
type OrderService struct {
	orders domain.OrderRepository
	queue  domain.JobQueue
	newID  func() string
}

// NewOrderService creates a new OrderService instance
func NewOrderService(orders domain.OrderRepository, queue domain.JobQueue) *OrderService {
	return &OrderService{
		orders: orders,
		queue:  queue,
		newID:  uuid.NewString,
	}
}

// Validate normalizes the request and checks required fields.
func (r *SubmitRequest) Validate() error {
	if r.InputAsset == "" {
		r.InputAsset = r.InputToken
	}
	if r.OutputAsset == "" {
		r.OutputAsset = r.OutputToken
	}
	r.InputAsset = strings.TrimSpace(r.InputAsset)
	r.OutputAsset = strings.TrimSpace(r.OutputAsset)

	switch {
	case r.InputAsset == "":
		return &domain.ValidationError{Field: "inputAsset", Reason: "required"}
	case r.OutputAsset == "":
		return &domain.ValidationError{Field: "outputAsset", Reason: "required"}
	case r.Amount == nil:
		return &domain.ValidationError{Field: "amount", Reason: "required"}
	case !r.Amount.IsPositive():
		return &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return nil
}

// Submit persists a pending order and enqueues its execution job.
func (s *OrderService) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if err := req.Validate(); err != nil {
		return SubmitResponse{}, err
	}

	order := domain.NewOrder(s.newID(), req.InputAsset, req.OutputAsset, *req.Amount)
	if err := s.orders.Create(ctx, order); err != nil {
		return SubmitResponse{}, domain.NewTransportError("create order", err)
	}

	if err := s.enqueue(ctx, order); err != nil {
		// leave no pending order behind that nothing will ever pick up
		msg := err.Error()
		upd := domain.OrderUpdate{ExpectedStatus: domain.StatusPending, Status: domain.StatusFailed, Error: &msg}
		if uerr := s.orders.Update(ctx, order.ID, upd); uerr != nil {
			slog.Error("Failed to mark unqueued order", slog.String("order_id", order.ID), slog.Any("error", uerr))
		}
		return SubmitResponse{}, err
	}

	slog.Info("Order accepted",
		slog.String("order_id", order.ID),
		slog.String("pair", order.InputAsset+"/"+order.OutputAsset),
		slog.String("amount", order.Amount.String()),
	)
	return SubmitResponse{OrderID: order.ID, Status: order.Status}, nil
}

// Get returns the persisted order.
func (s *OrderService) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.orders.FindByID(ctx, id)
}

// RequeueUnfinished enqueues a job for every order that has not reached a terminal status.
func (s *OrderService) RequeueUnfinished(ctx context.Context, lister OrderLister) (int, error) {
	orders, err := lister.ListByStatus(ctx, 0,
		domain.StatusPending, domain.StatusRouting, domain.StatusBuilding, domain.StatusSubmitted)
	if err != nil {
		return 0, fmt.Errorf("list unfinished orders: %w", err)
	}
	for i := range orders {
		if err := s.enqueue(ctx, &orders[i]); err != nil {
			return i, err
		}
	}
	if len(orders) > 0 {
		slog.Info("🔄 Requeued unfinished orders", slog.Int("count", len(orders)))
	}
	return len(orders), nil
}

func (s *OrderService) enqueue(ctx context.Context, order *domain.Order) error {
	_, err := s.queue.Enqueue(ctx, domain.JobExecuteOrder, domain.JobPayload{
		OrderID:     order.ID,
		InputAsset:  order.InputAsset,
		OutputAsset: order.OutputAsset,
		Amount:      order.Amount,
	})
	if err != nil {
		return fmt.Errorf("enqueue order %s: %w", order.ID, err)
	}
	return nil
}
