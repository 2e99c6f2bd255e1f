package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusEvent is broadcast once per order transition.
// Optional fields are omitted from the wire payload when nil.
type StatusEvent struct {
	OrderID       string           `json:"orderId"`
	Status        OrderStatus      `json:"status"`
	Venue         *string          `json:"venue,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	SettlementRef *string          `json:"settlementRef,omitempty"`
	Error         *string          `json:"error,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Topic returns the pub/sub channel name for the event's order.
func (e StatusEvent) Topic() string {
	return TopicFor(e.OrderID)
}

// TopicFor names the broadcast channel of one order.
func TopicFor(orderID string) string {
	return "order:" + orderID
}
