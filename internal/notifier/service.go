package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/shoestopper/checkout/internal/kafka"
	"github.com/shoestopper/checkout/internal/mailer"
	"github.com/shoestopper/checkout/internal/orders"
	"github.com/shoestopper/checkout/internal/redisx"
)

// Service turns order events into notifications. Delivery is best-effort:
// a mailer failure is logged and the offset still commits, so a broken mail
// gateway can never wedge the order pipeline.
type Service struct {
	Log    *slog.Logger
	Redis  *redis.Client
	Mailer mailer.Mailer
}

func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// at-least-once delivery: dedup on event_id
	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}

	switch env.EventType {
	case orders.EventOrderConfirmed:
		p, err := kafkax.UnwrapPayload[orders.OrderConfirmedPayload](env.Payload)
		if err != nil {
			return err
		}
		if err := s.Mailer.SendOrderConfirmation(ctx, p.UserID, p); err != nil {
			s.Log.Error("order confirmation mail", "order_id", p.OrderID, "err", err)
		}
	case orders.EventOrderPaid:
		p, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
		if err != nil {
			return err
		}
		if err := s.Mailer.SendPaymentReceipt(ctx, p.UserID, p); err != nil {
			s.Log.Error("payment receipt mail", "order_id", p.OrderID, "err", err)
		}
	case orders.EventOrderCancelled:
		// no outbound mail for cancellations today
	default:
		s.Log.Info("ignoring event", "event_type", env.EventType, "event_id", env.EventID)
	}

	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}
