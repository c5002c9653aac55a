package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer is a synchronous topic-bound writer. Publish returns only after
// the brokers acknowledged the write, so callers can safely record delivery.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	})
}

func (p *Producer) Close() error { return p.w.Close() }
