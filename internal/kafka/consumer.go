package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when processing succeeded and the offset may commit.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	log     *slog.Logger
	workers int
}

func NewConsumer(log *slog.Logger, brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, log: log, workers: workers}
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	errs := make(chan error, c.workers)

	for i := 0; i < c.workers; i++ {
		go func() {
			for m := range jobs {
				if err := h(ctx, m); err != nil {
					errs <- err
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					errs <- err
				}
			}
		}()
	}

	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			close(jobs)
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			return nil
		}

		// drain worker errors without blocking the dispatch loop
		select {
		case e := <-errs:
			c.log.Error("consumer worker", "err", e)
			time.Sleep(200 * time.Millisecond)
		default:
		}
	}
}
