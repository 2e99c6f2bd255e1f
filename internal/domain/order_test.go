package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrder_Snapshot(t *testing.T) {
	order := NewOrder("o-1", "SOL", "USDC", decimal.RequireFromString("1.5"))
	venue := "Meteora"
	order.Status = StatusBuilding
	order.Venue = &venue
	order.QuotedPrice = decimal.NewNullDecimal(decimal.RequireFromString("151.2"))

	ev := order.Snapshot()
	if ev.Status != StatusBuilding || ev.Venue == nil || *ev.Venue != venue {
		t.Errorf("unexpected snapshot %+v", ev)
	}
	if ev.Price == nil || ev.Price.String() != "151.2" {
		t.Errorf("snapshot should carry the quoted price, got %v", ev.Price)
	}

	order.ExecutedPrice = decimal.NewNullDecimal(decimal.RequireFromString("151.25"))
	ev = order.Snapshot()
	if ev.Price.String() != "151.25" {
		t.Errorf("snapshot should prefer executed price, got %v", ev.Price)
	}
}

func TestStatusEvent_JSONOmitsEmptyFields(t *testing.T) {
	ev := StatusEvent{OrderID: "o-1", Status: StatusRouting}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"status":"routing"`) {
		t.Errorf("status token should be lower-case: %s", s)
	}
	for _, field := range []string{"venue", "price", "settlementRef", "error"} {
		if strings.Contains(s, field) {
			t.Errorf("%s should be omitted: %s", field, s)
		}
	}
	if ev.Topic() != "order:o-1" {
		t.Errorf("Topic() = %s", ev.Topic())
	}
}

func TestQuote_Validate(t *testing.T) {
	tests := []struct {
		name    string
		quote   Quote
		wantErr bool
	}{
		{"valid", Quote{Venue: "Raydium", Price: decimal.NewFromInt(150), Fee: decimal.RequireFromString("0.003")}, false},
		{"zero price", Quote{Venue: "Raydium", Price: decimal.Zero}, true},
		{"fee of one", Quote{Venue: "Raydium", Price: decimal.NewFromInt(1), Fee: decimal.NewFromInt(1)}, true},
		{"negative fee", Quote{Venue: "Raydium", Price: decimal.NewFromInt(1), Fee: decimal.NewFromInt(-1)}, true},
		{"no venue", Quote{Price: decimal.NewFromInt(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.quote.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJob_IsFinalAttempt(t *testing.T) {
	job := Job{Attempt: 1, MaxAttempts: 3}
	if job.IsFinalAttempt() {
		t.Error("attempt 1 of 3 is not final")
	}
	job.Attempt = 3
	if !job.IsFinalAttempt() {
		t.Error("attempt 3 of 3 is final")
	}
}
