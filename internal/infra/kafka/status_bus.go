package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"order_engine/internal/domain"
	"order_engine/internal/infra"

	"github.com/segmentio/kafka-go"
)

// Publisher writes status events to a Kafka topic keyed by order id,
// so every event of one order lands on the same partition in publish order.
type Publisher struct {
	writer  *kafka.Writer
	metrics *infra.Metrics
}

var _ domain.StatusPublisher = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string, metrics *infra.Metrics) *Publisher {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		metrics: metrics,
	}
}

func (p *Publisher) Publish(ctx context.Context, ev domain.StatusEvent) error {
	msg, err := message(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return domain.NewTransportError("publish", err)
	}
	p.metrics.RecordPublished()
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Dispatcher receives decoded events; satisfied by stream.Registry.
type Dispatcher interface {
	Dispatch(ev domain.StatusEvent) int
}

// Consumer reads status events from Kafka and dispatches them to local subscribers.
// Every API process needs its own group id to see all events.
type Consumer struct {
	reader *kafka.Reader
	sink   Dispatcher
}

func NewConsumer(brokers []string, topic, groupID string, sink Dispatcher) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			MinBytes:    1,
			MaxBytes:    1 << 20,
			MaxWait:     100 * time.Millisecond,
			StartOffset: kafka.LastOffset,
		}),
		sink: sink,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("📡 Kafka status consumer started", slog.String("topic", c.reader.Config().Topic))
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("Kafka read failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(infra.CalculateBackoff(0)):
			}
			continue
		}
		c.handle(m)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) handle(m kafka.Message) {
	ev, err := DecodeEvent(m.Value)
	if err != nil {
		slog.Warn("Dropping malformed status event",
			slog.String("key", string(m.Key)),
			slog.Int64("offset", m.Offset),
			slog.Any("error", err),
		)
		return
	}
	c.sink.Dispatch(ev)
}

func message(ev domain.StatusEvent) (kafka.Message, error) {
	data, err := EncodeEvent(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(ev.OrderID), Value: data, Time: ev.Timestamp}, nil
}

// EncodeEvent renders the wire form shared with websocket clients.
func EncodeEvent(ev domain.StatusEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses and checks an event read from the bus.
func DecodeEvent(data []byte) (domain.StatusEvent, error) {
	var ev domain.StatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.StatusEvent{}, fmt.Errorf("failed to decode status event: %w", err)
	}
	if ev.OrderID == "" {
		return domain.StatusEvent{}, errors.New("status event without orderId")
	}
	status, err := domain.ParseOrderStatus(string(ev.Status))
	if err != nil {
		return domain.StatusEvent{}, err
	}
	ev.Status = status
	return ev, nil
}
