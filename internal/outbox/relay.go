package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher is what the relay needs from a producer: a write that has been
// acknowledged by the time it returns.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// Relay polls unsent rows and publishes them. A row is marked sent only once
// its write was acknowledged; a failed write leaves the row pending for the
// next run, so delivery stays at-least-once across broker outages.
type Relay struct {
	Log       *slog.Logger
	DB        *pgxpool.Pool
	Producers map[string]Publisher
	Interval  time.Duration
	BatchSize int
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.flush(ctx); err != nil {
				r.Log.Error("outbox flush", "err", err)
			}
		}
	}
}

func (r *Relay) flush(ctx context.Context) error {
	recs, err := FetchPending(ctx, r.DB, r.BatchSize)
	if err != nil {
		return err
	}
	return MarkSent(ctx, r.DB, r.publishBatch(ctx, recs))
}

// publishBatch returns the ids of the records whose writes were acknowledged.
func (r *Relay) publishBatch(ctx context.Context, recs []Record) []int64 {
	sent := make([]int64, 0, len(recs))
	for _, rec := range recs {
		p, ok := r.Producers[rec.Topic]
		if !ok {
			r.Log.Error("outbox: no producer for topic", "topic", rec.Topic, "event_id", rec.EventID)
			continue
		}
		err := p.Publish(ctx, []byte(rec.Key), rec.Payload,
			kafkago.Header{Key: "x-event-id", Value: []byte(rec.EventID)},
		)
		if err != nil {
			r.Log.Error("outbox publish", "topic", rec.Topic, "event_id", rec.EventID, "err", err)
			continue
		}
		sent = append(sent, rec.ID)
	}
	return sent
}
