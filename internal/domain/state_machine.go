package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trigger is the pipeline step that drives a transition.
type Trigger string

const (
	TriggerPickedUp  Trigger = "picked_up"
	TriggerQuoted    Trigger = "quote_obtained"
	TriggerSubmitted Trigger = "execution_submitted"
	TriggerConfirmed Trigger = "execution_confirmed"
	TriggerFailed    Trigger = "step_failed"
)

type edge struct {
	from OrderStatus
	to   OrderStatus
}

var transitionTable = map[Trigger]edge{
	TriggerPickedUp:  {from: StatusPending, to: StatusRouting},
	TriggerQuoted:    {from: StatusRouting, to: StatusBuilding},
	TriggerSubmitted: {from: StatusBuilding, to: StatusSubmitted},
	TriggerConfirmed: {from: StatusSubmitted, to: StatusConfirmed},
}

// Transition carries a trigger and the step result it records.
type Transition struct {
	Trigger Trigger
	Quote   *Quote           // TriggerQuoted
	Result  *ExecutionResult // TriggerConfirmed
	Err     error            // TriggerFailed
}

// Advance applies a transition to the order's current state.
// It returns the guarded update to persist and the event to publish after persisting.
// ErrDuplicateTransition means the transition is already satisfied and must be ignored.
func Advance(o *Order, t Transition, now time.Time) (OrderUpdate, StatusEvent, error) {
	if t.Trigger == TriggerFailed {
		return fail(o, t.Err, now)
	}

	e, ok := transitionTable[t.Trigger]
	if !ok {
		return OrderUpdate{}, StatusEvent{}, fmt.Errorf("%w: unknown trigger %q", ErrInvalidTransition, t.Trigger)
	}
	if o.Status.IsTerminal() || o.Status.Reached(e.to) {
		return OrderUpdate{}, StatusEvent{}, fmt.Errorf("%w: order %s is %s, wanted %s",
			ErrDuplicateTransition, o.ID, o.Status, e.to)
	}
	if o.Status != e.from {
		return OrderUpdate{}, StatusEvent{}, fmt.Errorf("%w: order %s cannot move %s -> %s",
			ErrInvalidTransition, o.ID, o.Status, e.to)
	}

	upd := OrderUpdate{ExpectedStatus: o.Status, Status: e.to}
	ev := StatusEvent{OrderID: o.ID, Status: e.to, Timestamp: now}

	switch t.Trigger {
	case TriggerQuoted:
		if t.Quote == nil {
			return OrderUpdate{}, StatusEvent{}, fmt.Errorf("%w: %s requires a quote", ErrInvalidTransition, t.Trigger)
		}
		venue := t.Quote.Venue
		price := t.Quote.Price
		upd.Venue = &venue
		upd.QuotedPrice = decimal.NewNullDecimal(price)
		ev.Venue = &venue
		ev.Price = &price
	case TriggerConfirmed:
		if t.Result == nil {
			return OrderUpdate{}, StatusEvent{}, fmt.Errorf("%w: %s requires an execution result", ErrInvalidTransition, t.Trigger)
		}
		ref := t.Result.SettlementRef
		price := t.Result.ExecutedPrice
		upd.SettlementRef = &ref
		upd.ExecutedPrice = decimal.NewNullDecimal(price)
		ev.Venue = o.Venue
		ev.Price = &price
		ev.SettlementRef = &ref
	}

	return upd, ev, nil
}

func fail(o *Order, cause error, now time.Time) (OrderUpdate, StatusEvent, error) {
	if o.Status.IsTerminal() {
		return OrderUpdate{}, StatusEvent{}, fmt.Errorf("%w: order %s is already %s",
			ErrDuplicateTransition, o.ID, o.Status)
	}

	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	upd := OrderUpdate{ExpectedStatus: o.Status, Status: StatusFailed, Error: &msg}
	ev := StatusEvent{OrderID: o.ID, Status: StatusFailed, Error: &msg, Timestamp: now}
	return upd, ev, nil
}
