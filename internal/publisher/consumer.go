package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const readRetryDelay = time.Second

// OrderHandler reacts to one order placed by any storefront client.
type OrderHandler func(ctx context.Context, event OrderPlaced) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads OrderPlaced events and hands them to a handler. Malformed
// messages and handler failures are logged and skipped.
type Consumer struct {
	reader messageReader
	handle OrderHandler
	log    *zap.Logger
}

func NewConsumer(topic, groupID string, handle OrderHandler, log *zap.Logger, brokers ...string) *Consumer {
	if topic == "" {
		topic = DefaultTopic
	}
	if log == nil {
		log = zap.NewNop()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, handle: handle, log: log}
}

// Run consumes until ctx is done or the reader is closed.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.processMessage(ctx); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			c.log.Warn("error reading message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(readRetryDelay):
			}
		}
	}
}

// processMessage returns only read errors; everything after a successful
// read is logged.
func (c *Consumer) processMessage(ctx context.Context) error {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}

	if eventType := header(m, "event_type"); eventType != "" && eventType != EventOrderPlaced {
		return nil
	}

	var event OrderPlaced
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.log.Warn("error parsing message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if event.OrderID == "" {
		c.log.Warn("order placed event without order id", zap.Int64("offset", m.Offset))
		return nil
	}

	if err := c.handle(ctx, event); err != nil {
		c.log.Warn("failed to handle order placed event", zap.String("order_id", event.OrderID), zap.Error(err))
		return nil
	}
	c.log.Debug("handled order placed event", zap.String("order_id", event.OrderID))
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// ProductIDs lists the distinct products of an order.
func (e OrderPlaced) ProductIDs() []string {
	ids := make([]string, 0, len(e.Items))
	seen := make(map[string]struct{}, len(e.Items))
	for _, it := range e.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}
