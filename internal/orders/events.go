package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderPaid      = "OrderPaid"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderConfirmedPayload struct {
	OrderID    string        `json:"order_id"`
	UserID     string        `json:"user_id"`
	Lines      []Line        `json:"items"`
	TotalCents int64         `json:"total_cents"`
	Method     PaymentMethod `json:"payment_method"`
	Status     Status        `json:"status"`
}

type OrderPaidPayload struct {
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id"`
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason,omitempty"`
}

func NewEnvelope(producer, eventType, orderID string, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       raw,
	}
}
