package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	kafkax "github.com/shoestopper/checkout/internal/kafka"
	"github.com/shoestopper/checkout/internal/orders"
)

var (
	ErrInvalidCode       = errors.New("invalid or expired confirmation code")
	ErrNoPaymentRequired = errors.New("cash-on-delivery order does not require payment")
)

type OrderStore interface {
	Get(ctx context.Context, orderID string) (orders.Order, error)
	GetTransaction(ctx context.Context, transactionID string) (orders.Transaction, error)
	CreateTransaction(ctx context.Context, t orders.Transaction) error
	MarkPaid(ctx context.Context, orderID, transactionID string, ev orders.OutboxEvent) error
}

// Mailer delivers the one-time code out of band. Failures are logged, never
// propagated: the caller can re-initiate.
type Mailer interface {
	SendPaymentCode(ctx context.Context, userID, orderID, code string) error
}

// Gate is the out-of-band two-step confirmation that moves a PaymentPending
// order and its Created transaction to Paid.
type Gate struct {
	Log     *slog.Logger
	Orders  OrderStore
	Codes   CodeStore
	Mailer  Mailer
	Service string
}

func (g *Gate) Initiate(ctx context.Context, orderID string, method orders.PaymentMethod) (string, error) {
	o, err := g.Orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.Method == orders.MethodCOD {
		return "", ErrNoPaymentRequired
	}
	if o.Status != orders.StatusPaymentPending {
		return "", &orders.IllegalTransitionError{From: o.Status, To: orders.StatusPaid}
	}
	if !orders.ValidMethod(method) || method == orders.MethodCOD {
		return "", fmt.Errorf("cannot initiate payment with method %q", method)
	}

	t := orders.Transaction{
		ID:          uuid.NewString(),
		OrderID:     o.ID,
		UserID:      o.UserID,
		Method:      method,
		Status:      orders.TxCreated,
		AmountCents: o.TotalCents,
	}
	if err := g.Orders.CreateTransaction(ctx, t); err != nil {
		return "", err
	}

	code, err := newCode()
	if err != nil {
		return "", err
	}
	if err := g.Codes.Put(ctx, o.ID, t.ID, code); err != nil {
		return "", err
	}
	if err := g.Mailer.SendPaymentCode(ctx, o.UserID, o.ID, code); err != nil {
		g.Log.Error("send payment code", "order_id", o.ID, "err", err)
	}
	return t.ID, nil
}

// Confirm consumes the code and marks transaction and order Paid in one
// commit. Replaying the same call after success fails with ErrInvalidCode
// because the code is gone.
func (g *Gate) Confirm(ctx context.Context, orderID, transactionID, code string) error {
	t, err := g.Orders.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if t.OrderID != orderID {
		return orders.ErrNotFound
	}

	ok, err := g.Codes.Consume(ctx, orderID, transactionID, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}

	env := orders.NewEnvelope(g.Service, orders.EventOrderPaid, orderID, orders.OrderPaidPayload{
		OrderID:       orderID,
		UserID:        t.UserID,
		TransactionID: t.ID,
		AmountCents:   t.AmountCents,
	})
	ev := orders.OutboxEvent{
		EventID: env.EventID,
		Topic:   orders.TopicOrderPaid,
		Key:     orderID,
		Payload: kafkax.MustMarshal(env),
	}
	if err := g.Orders.MarkPaid(ctx, orderID, transactionID, ev); err != nil {
		// a transient storage failure must not burn the code; put it back so
		// the caller can retry without a fresh Initiate
		var transErr *orders.IllegalTransitionError
		if !errors.Is(err, orders.ErrNotFound) && !errors.As(err, &transErr) {
			if perr := g.Codes.Put(ctx, orderID, transactionID, code); perr != nil {
				g.Log.Error("restore confirmation code", "order_id", orderID, "err", perr)
			}
		}
		return err
	}
	return nil
}
