package mailer

import (
	"context"
	"log/slog"

	"github.com/shoestopper/checkout/internal/orders"
)

// Mailer is the notification collaborator: best-effort delivery, failures are
// logged by callers and never block order processing.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, userID string, o orders.OrderConfirmedPayload) error
	SendPaymentReceipt(ctx context.Context, userID string, p orders.OrderPaidPayload) error
	SendPaymentCode(ctx context.Context, userID, orderID, code string) error
}

// LogMailer stands in for the real mail gateway: it records what would have
// been sent. Content rendering is out of scope.
type LogMailer struct{ Log *slog.Logger }

func (m *LogMailer) SendOrderConfirmation(ctx context.Context, userID string, o orders.OrderConfirmedPayload) error {
	m.Log.Info("mail: order confirmation",
		"user_id", userID, "order_id", o.OrderID, "total_cents", o.TotalCents, "status", o.Status)
	return nil
}

func (m *LogMailer) SendPaymentReceipt(ctx context.Context, userID string, p orders.OrderPaidPayload) error {
	m.Log.Info("mail: payment receipt",
		"user_id", userID, "order_id", p.OrderID, "transaction_id", p.TransactionID, "amount_cents", p.AmountCents)
	return nil
}

func (m *LogMailer) SendPaymentCode(ctx context.Context, userID, orderID, code string) error {
	// The code itself is not logged.
	m.Log.Info("mail: payment confirmation code issued", "user_id", userID, "order_id", orderID)
	return nil
}
