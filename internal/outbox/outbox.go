package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Events are written in the same transaction as the state they describe and
// shipped to Kafka by the relay. Delivery is at-least-once; consumers dedup
// on event_id.

type Record struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func Insert(ctx context.Context, q Querier, eventID, topic, key string, payload []byte) error {
	_, err := q.Exec(ctx, `INSERT INTO outbox (event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`,
		eventID, topic, key, payload)
	return err
}

func FetchPending(ctx context.Context, pool *pgxpool.Pool, limit int) ([]Record, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, event_id, topic, key, payload, created_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func MarkSent(ctx context.Context, pool *pgxpool.Pool, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := pool.Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = ANY($1)`, ids)
	return err
}
