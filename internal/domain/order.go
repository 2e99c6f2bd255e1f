package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a swap order.
// Tokens are lower-case; ParseOrderStatus also accepts legacy upper-case values.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusRouting   OrderStatus = "routing"
	StatusBuilding  OrderStatus = "building"
	StatusSubmitted OrderStatus = "submitted"
	StatusConfirmed OrderStatus = "confirmed"
	StatusFailed    OrderStatus = "failed"
)

// rank orders the forward path. Failed is terminal and sits outside the path.
var statusRank = map[OrderStatus]int{
	StatusPending:   0,
	StatusRouting:   1,
	StatusBuilding:  2,
	StatusSubmitted: 3,
	StatusConfirmed: 4,
}

// ParseOrderStatus normalizes a status token.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	if status == StatusFailed {
		return status, nil
	}
	if _, ok := statusRank[status]; !ok {
		return "", fmt.Errorf("unknown order status: %q", s)
	}
	return status, nil
}

// IsTerminal reports whether no further transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Reached reports whether an order in status s has already passed through target.
func (s OrderStatus) Reached(target OrderStatus) bool {
	if s == target {
		return true
	}
	if s == StatusFailed || target == StatusFailed {
		return false
	}
	return statusRank[s] >= statusRank[target]
}

func (s OrderStatus) String() string {
	return string(s)
}

// Order is the persisted swap order record.
// Nullable fields stay nil until the corresponding transition records them.
type Order struct {
	ID            string              `gorm:"primaryKey" json:"orderId"`
	InputAsset    string              `gorm:"not null" json:"inputAsset"`
	OutputAsset   string              `gorm:"not null" json:"outputAsset"`
	Amount        decimal.Decimal     `gorm:"type:text;not null" json:"amount"`
	Status        OrderStatus         `gorm:"index;not null" json:"status"`
	Venue         *string             `json:"venue,omitempty"`
	QuotedPrice   decimal.NullDecimal `gorm:"type:text" json:"quotedPrice"`
	ExecutedPrice decimal.NullDecimal `gorm:"type:text" json:"executedPrice"`
	SettlementRef *string             `json:"settlementRef,omitempty"`
	Error         *string             `json:"error,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// NewOrder creates a pending order. The id must be assigned before the job is enqueued.
func NewOrder(id, inputAsset, outputAsset string, amount decimal.Decimal) *Order {
	return &Order{
		ID:          id,
		InputAsset:  inputAsset,
		OutputAsset: outputAsset,
		Amount:      amount,
		Status:      StatusPending,
	}
}

// Apply copies the fields of a persisted update onto the in-memory record.
func (o *Order) Apply(u OrderUpdate) {
	o.Status = u.Status
	if u.Venue != nil {
		o.Venue = u.Venue
	}
	if u.QuotedPrice.Valid {
		o.QuotedPrice = u.QuotedPrice
	}
	if u.ExecutedPrice.Valid {
		o.ExecutedPrice = u.ExecutedPrice
	}
	if u.SettlementRef != nil {
		o.SettlementRef = u.SettlementRef
	}
	if u.Error != nil {
		o.Error = u.Error
	}
}

// Snapshot renders the current persisted state as a StatusEvent.
// Sent to a fresh subscriber so it does not have to wait for the next transition.
func (o *Order) Snapshot() StatusEvent {
	ev := StatusEvent{
		OrderID:       o.ID,
		Status:        o.Status,
		Venue:         o.Venue,
		SettlementRef: o.SettlementRef,
		Error:         o.Error,
		Timestamp:     o.UpdatedAt,
	}
	switch {
	case o.ExecutedPrice.Valid:
		p := o.ExecutedPrice.Decimal
		ev.Price = &p
	case o.QuotedPrice.Valid:
		p := o.QuotedPrice.Decimal
		ev.Price = &p
	}
	return ev
}

// OrderUpdate is a partial update guarded by the status it expects to replace.
type OrderUpdate struct {
	ExpectedStatus OrderStatus
	Status         OrderStatus
	Venue          *string
	QuotedPrice    decimal.NullDecimal
	ExecutedPrice  decimal.NullDecimal
	SettlementRef  *string
	Error          *string
}
