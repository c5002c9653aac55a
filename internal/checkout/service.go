package checkout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shoestopper/checkout/internal/cart"
	kafkax "github.com/shoestopper/checkout/internal/kafka"
	"github.com/shoestopper/checkout/internal/orders"
)

// SnapshotReader resolves the cart into authoritative lines (price and stock
// from the catalog, never from the client).
type SnapshotReader interface {
	Snapshot(ctx context.Context, userID string) ([]cart.Line, error)
}

// OrderStore atomically reserves stock for every line and persists the order
// aggregate. Either the whole checkout commits or none of it does; there is
// no window where stock is decremented without an order row.
type OrderStore interface {
	CreateFromCheckout(ctx context.Context, o orders.Order, payTx *orders.Transaction, ev orders.OutboxEvent) error
}

type Service struct {
	Log     *slog.Logger
	Carts   SnapshotReader
	Orders  OrderStore
	Service string // event producer name
}

type PlacedOrder struct {
	OrderID       string        `json:"order_id"`
	Status        orders.Status `json:"status"`
	TotalCents    int64         `json:"total_cents"`
	NeedsPayment  bool          `json:"needs_payment"`
	TransactionID string        `json:"transaction_id,omitempty"`
}

// PlaceOrder is the all-or-nothing checkout: snapshot the cart, price the
// order from the snapshot, and hand the whole aggregate to the store, which
// reserves stock and persists it in one commit. A failed reservation fails
// the order and leaves no stock decremented.
func (s *Service) PlaceOrder(ctx context.Context, userID string, addr orders.Address, method orders.PaymentMethod) (PlacedOrder, error) {
	if !orders.ValidMethod(method) {
		return PlacedOrder{}, fmt.Errorf("%w: %q", orders.ErrInvalidPaymentMethod, method)
	}
	if !addr.Complete() {
		return PlacedOrder{}, orders.ErrIncompleteAddress
	}

	lines, err := s.Carts.Snapshot(ctx, userID)
	if err != nil {
		return PlacedOrder{}, err
	}

	var total int64
	snapshot := make([]orders.Line, 0, len(lines))
	for _, l := range lines {
		total += l.PriceCents * int64(l.Qty)
		snapshot = append(snapshot, orders.Line{
			ProductID:  l.ProductID,
			VariantID:  l.VariantID,
			Size:       l.Size,
			Color:      l.Color,
			Qty:        l.Qty,
			PriceCents: l.PriceCents,
		})
	}

	o := orders.Order{
		ID:         uuid.NewString(),
		UserID:     userID,
		Lines:      snapshot,
		TotalCents: total,
		Status:     orders.InitialStatus(method),
		Method:     method,
		Address:    addr,
	}

	var payTx *orders.Transaction
	if method == orders.MethodCOD {
		o.PaymentStatus = "PendingCOD"
	} else {
		o.PaymentStatus = string(orders.StatusPaymentPending)
		payTx = &orders.Transaction{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			UserID:      userID,
			Method:      method,
			Status:      orders.TxCreated,
			AmountCents: total,
		}
		o.PaymentTxID = payTx.ID
	}

	env := orders.NewEnvelope(s.Service, orders.EventOrderConfirmed, o.ID, orders.OrderConfirmedPayload{
		OrderID:    o.ID,
		UserID:     userID,
		Lines:      snapshot,
		TotalCents: total,
		Method:     method,
		Status:     o.Status,
	})
	ev := orders.OutboxEvent{
		EventID: env.EventID,
		Topic:   orders.TopicOrderConfirmed,
		Key:     o.ID,
		Payload: kafkax.MustMarshal(env),
	}

	if err := s.Orders.CreateFromCheckout(ctx, o, payTx, ev); err != nil {
		return PlacedOrder{}, err
	}
	s.Log.Info("order placed",
		"order_id", o.ID, "user_id", userID, "total_cents", total, "status", o.Status)

	out := PlacedOrder{
		OrderID:      o.ID,
		Status:       o.Status,
		TotalCents:   total,
		NeedsPayment: method != orders.MethodCOD,
	}
	if payTx != nil {
		out.TransactionID = payTx.ID
	}
	return out, nil
}
