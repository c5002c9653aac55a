package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shoestopper/checkout/internal/cart"
	"github.com/shoestopper/checkout/internal/catalog"
	"github.com/shoestopper/checkout/internal/outbox"
)

type Repo struct {
	DB *pgxpool.Pool
	// Producer names this service in the events it writes.
	Producer string
}

// OutboxEvent is an event to persist in the same transaction as the order
// change it announces.
type OutboxEvent struct {
	EventID string
	Topic   string
	Key     string
	Payload []byte
}

// CreateFromCheckout persists the order aggregate in one transaction: the
// stock reservation for every line, the order row, its line snapshot, the
// initial history entry, the Created payment transaction (non-COD), the cart
// wipe and the confirmation event. The conditional reservation UPDATEs
// serialize on their row locks, so concurrent checkouts for the last units
// still cannot oversell, and a crash mid-checkout rolls the reservations
// back with everything else.
func (r *Repo) CreateFromCheckout(ctx context.Context, o Order, payTx *Transaction, ev OutboxEvent) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, l := range o.Lines {
		if _, err := catalog.Reserve(ctx, tx, l.VariantID, l.Size, l.Qty); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, total_cents, status, payment_method, payment_status,
		                    payment_tx_id, address_name, address_phone, address_street,
		                    address_city, address_state, address_pincode)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		o.ID, o.UserID, o.TotalCents, o.Status, o.Method, o.PaymentStatus,
		nullable(o.PaymentTxID), o.Address.Name, o.Address.Phone, o.Address.Street,
		o.Address.City, o.Address.State, o.Address.Pincode)
	if err != nil {
		return err
	}

	for _, l := range o.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, variant_id, size, color, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, l.ProductID, l.VariantID, l.Size, l.Color, l.Qty, l.PriceCents); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, at) VALUES ($1, $2, $3)`,
		o.ID, o.Status, time.Now().UTC()); err != nil {
		return err
	}

	if payTx != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO payment_transactions (id, order_id, user_id, method, status, amount_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			payTx.ID, payTx.OrderID, payTx.UserID, payTx.Method, payTx.Status, payTx.AmountCents); err != nil {
			return err
		}
	}

	if err := cart.Clear(ctx, tx, o.UserID); err != nil {
		return err
	}
	if err := outbox.Insert(ctx, tx, ev.EventID, ev.Topic, ev.Key, ev.Payload); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Get loads the order with its line snapshot and full history.
func (r *Repo) Get(ctx context.Context, orderID string) (Order, error) {
	var o Order
	var payTxID *string
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, total_cents, status, payment_method, payment_status, payment_tx_id,
		       address_name, address_phone, address_street, address_city, address_state, address_pincode,
		       created_at, updated_at
		FROM orders WHERE id = $1`, orderID).
		Scan(&o.ID, &o.UserID, &o.TotalCents, &o.Status, &o.Method, &o.PaymentStatus, &payTxID,
			&o.Address.Name, &o.Address.Phone, &o.Address.Street, &o.Address.City, &o.Address.State,
			&o.Address.Pincode, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if payTxID != nil {
		o.PaymentTxID = *payTxID
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, variant_id, size, color, qty, price_cents
		FROM order_items WHERE order_id = $1 ORDER BY variant_id, size`, orderID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.VariantID, &l.Size, &l.Color, &l.Qty, &l.PriceCents); err != nil {
			return Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return Order{}, err
	}

	hrows, err := r.DB.Query(ctx, `
		SELECT status, at, note FROM order_status_history
		WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return Order{}, err
	}
	defer hrows.Close()
	for hrows.Next() {
		var h HistoryEntry
		if err := hrows.Scan(&h.Status, &h.At, &h.Note); err != nil {
			return Order{}, err
		}
		o.History = append(o.History, h)
	}
	return o, hrows.Err()
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, total_cents, status, payment_method, payment_status, created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalCents, &o.Status, &o.Method,
			&o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Transition moves the order to the target status when the adjacency table
// allows it, appending exactly one history entry in the same transaction.
// The UPDATE is guarded on the observed source status, so a concurrent
// transition makes this one fail instead of silently double-applying.
// Cancelled is not a plain status write: it carries the full cancellation
// body, stock release included, no matter who asked for it.
func (r *Repo) Transition(ctx context.Context, orderID string, target Status, note string) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owner string
	var current Status
	err = tx.QueryRow(ctx, `SELECT user_id, status FROM orders WHERE id = $1 FOR UPDATE`, orderID).
		Scan(&owner, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(current, target) {
		return Order{}, &IllegalTransitionError{From: current, To: target}
	}

	if target == StatusCancelled {
		err = r.cancelInTx(ctx, tx, orderID, owner, current, note)
	} else {
		err = applyTransition(ctx, tx, orderID, current, target, note)
	}
	if err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return r.Get(ctx, orderID)
}

// Cancel is owner-initiated. The status change, the history entry and the
// stock release for every line commit together; a second cancel finds the
// order already Cancelled and fails the adjacency check.
func (r *Repo) Cancel(ctx context.Context, orderID, userID, reason string) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owner string
	var current Status
	err = tx.QueryRow(ctx, `SELECT user_id, status FROM orders WHERE id = $1 FOR UPDATE`, orderID).
		Scan(&owner, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if owner != userID {
		return Order{}, ErrUnauthorized
	}
	if !CanCancel(current) {
		return Order{}, &IllegalTransitionError{From: current, To: StatusCancelled}
	}

	if err := r.cancelInTx(ctx, tx, orderID, owner, current, reason); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return r.Get(ctx, orderID)
}

// cancelInTx is the cancellation body shared by Cancel and Transition: the
// per-line stock release, the guarded status flip with its history entry,
// the payment transaction cancel and the event all land in the caller's
// transaction. The order row must already be locked.
func (r *Repo) cancelInTx(ctx context.Context, tx pgx.Tx, orderID, userID string, current Status, reason string) error {
	rows, err := tx.Query(ctx, `SELECT variant_id, size, qty FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return err
	}
	type line struct {
		variantID, size string
		qty             int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.variantID, &l.size, &l.qty); err != nil {
			rows.Close()
			return err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, l := range lines {
		if err := catalog.Release(ctx, tx, l.variantID, l.size, l.qty); err != nil {
			return err
		}
	}

	if err := applyTransition(ctx, tx, orderID, current, StatusCancelled, reason); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE payment_transactions SET status = $2, updated_at = now()
		WHERE order_id = $1 AND status = $3`, orderID, TxCancelled, TxCreated); err != nil {
		return err
	}

	env := NewEnvelope(r.Producer, EventOrderCancelled, orderID,
		OrderCancelledPayload{OrderID: orderID, UserID: userID, Reason: reason})
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return outbox.Insert(ctx, tx, env.EventID, TopicOrderCancelled, orderID, raw)
}

// MarkPaid flips the Created transaction and the PaymentPending order to Paid
// as one commit; the confirmation gate calls this after the one-time code was
// consumed.
func (r *Repo) MarkPaid(ctx context.Context, orderID, transactionID string, ev OutboxEvent) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !CanTransition(current, StatusPaid) {
		return &IllegalTransitionError{From: current, To: StatusPaid}
	}

	ct, err := tx.Exec(ctx, `
		UPDATE payment_transactions SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`, transactionID, TxPaid, TxCreated)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := applyTransition(ctx, tx, orderID, current, StatusPaid, ""); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET payment_status = 'Paid', payment_tx_id = $2 WHERE id = $1`,
		orderID, transactionID); err != nil {
		return err
	}
	if err := outbox.Insert(ctx, tx, ev.EventID, ev.Topic, ev.Key, ev.Payload); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) CreateTransaction(ctx context.Context, t Transaction) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payment_transactions (id, order_id, user_id, method, status, amount_cents)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.OrderID, t.UserID, t.Method, t.Status, t.AmountCents)
	return err
}

func (r *Repo) GetTransaction(ctx context.Context, transactionID string) (Transaction, error) {
	var t Transaction
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_id, user_id, method, status, amount_cents, created_at, updated_at
		FROM payment_transactions WHERE id = $1`, transactionID).
		Scan(&t.ID, &t.OrderID, &t.UserID, &t.Method, &t.Status, &t.AmountCents, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	return t, err
}

func applyTransition(ctx context.Context, tx pgx.Tx, orderID string, from, to Status, note string) error {
	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		orderID, to, from)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return &IllegalTransitionError{From: from, To: to}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, at, note) VALUES ($1, $2, $3, $4)`,
		orderID, to, time.Now().UTC(), note)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
