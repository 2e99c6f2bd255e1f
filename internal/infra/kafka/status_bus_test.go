package kafka

import (
	"strings"
	"testing"
	"time"

	"order_engine/internal/domain"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type captureSink struct {
	events []domain.StatusEvent
}

func (c *captureSink) Dispatch(ev domain.StatusEvent) int {
	c.events = append(c.events, ev)
	return 1
}

func TestMessage_KeyedByOrder(t *testing.T) {
	venue := "Meteora"
	price := decimal.RequireFromString("151.2")
	ev := domain.StatusEvent{
		OrderID:   "order-1",
		Status:    domain.StatusBuilding,
		Venue:     &venue,
		Price:     &price,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	msg, err := message(ev)
	if err != nil {
		t.Fatalf("message failed: %v", err)
	}
	if string(msg.Key) != "order-1" {
		t.Errorf("Expected key order-1, got %s", msg.Key)
	}
	body := string(msg.Value)
	for _, want := range []string{`"orderId":"order-1"`, `"status":"building"`, `"venue":"Meteora"`, `"price":"151.2"`} {
		if !strings.Contains(body, want) {
			t.Errorf("payload %s missing %s", body, want)
		}
	}
	if strings.Contains(body, "settlementRef") || strings.Contains(body, `"error"`) {
		t.Errorf("unset optional fields should be omitted: %s", body)
	}
}

func TestConsumer_HandleDispatches(t *testing.T) {
	sink := &captureSink{}
	c := &Consumer{sink: sink}

	ref := "tx_0123456789abcdef"
	price := decimal.RequireFromString("150")
	msg, _ := message(domain.StatusEvent{OrderID: "order-2", Status: domain.StatusConfirmed, Price: &price, SettlementRef: &ref})
	c.handle(msg)

	// Malformed and unknown payloads are dropped.
	c.handle(kafka.Message{Value: []byte("not json")})
	c.handle(kafka.Message{Value: []byte(`{"orderId":"x","status":"exploded"}`)})
	c.handle(kafka.Message{Value: []byte(`{"status":"routing"}`)})

	if len(sink.events) != 1 {
		t.Fatalf("Expected 1 dispatched event, got %d", len(sink.events))
	}
	got := sink.events[0]
	if got.OrderID != "order-2" || got.Status != domain.StatusConfirmed || *got.SettlementRef != ref {
		t.Errorf("unexpected event %+v", got)
	}
	if !got.Price.Equal(price) {
		t.Errorf("price lost on the bus: %s", got.Price)
	}
}

func TestDecodeEvent_NormalizesStatus(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"orderId":"o","status":"CONFIRMED"}`))
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if ev.Status != domain.StatusConfirmed {
		t.Errorf("Expected confirmed, got %s", ev.Status)
	}
}
