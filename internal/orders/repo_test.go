package orders

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoestopper/checkout/internal/catalog"
)

// Integration tests; they need a database with schema.sql applied. Set
// TEST_POSTGRES_DSN to run them.
func testRepo(t *testing.T) *Repo {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return &Repo{DB: pool, Producer: "orders-test"}
}

type fixture struct {
	productID string
	variantID string
	userID    string
}

func seed(t *testing.T, r *Repo, stock int) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{
		productID: uuid.NewString(),
		variantID: uuid.NewString(),
		userID:    uuid.NewString(),
	}

	_, err := r.DB.Exec(ctx, `INSERT INTO products (id, title, price_cents) VALUES ($1, 'Court Classic', 5999)`, f.productID)
	require.NoError(t, err)
	_, err = r.DB.Exec(ctx, `INSERT INTO variants (id, product_id, color) VALUES ($1, $2, 'white')`, f.variantID, f.productID)
	require.NoError(t, err)
	_, err = r.DB.Exec(ctx, `INSERT INTO variant_sizes (variant_id, size, stock) VALUES ($1, '9', $2)`, f.variantID, stock)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = r.DB.Exec(ctx, `DELETE FROM outbox WHERE key IN (SELECT id::text FROM orders WHERE user_id = $1)`, f.userID)
		_, _ = r.DB.Exec(ctx, `DELETE FROM payment_transactions WHERE user_id = $1`, f.userID)
		_, _ = r.DB.Exec(ctx, `DELETE FROM order_status_history WHERE order_id IN (SELECT id FROM orders WHERE user_id = $1)`, f.userID)
		_, _ = r.DB.Exec(ctx, `DELETE FROM order_items WHERE order_id IN (SELECT id FROM orders WHERE user_id = $1)`, f.userID)
		_, _ = r.DB.Exec(ctx, `DELETE FROM orders WHERE user_id = $1`, f.userID)
		_, _ = r.DB.Exec(ctx, `DELETE FROM variant_sizes WHERE variant_id = $1`, f.variantID)
		_, _ = r.DB.Exec(ctx, `DELETE FROM variants WHERE id = $1`, f.variantID)
		_, _ = r.DB.Exec(ctx, `DELETE FROM products WHERE id = $1`, f.productID)
	})
	return f
}

func testAddress() Address {
	return Address{Name: "A Customer", Street: "1 Main St", City: "Pune", Pincode: "411001"}
}

func newOrderFor(f fixture, method PaymentMethod) Order {
	o := Order{
		ID:     uuid.NewString(),
		UserID: f.userID,
		Lines: []Line{{
			ProductID:  f.productID,
			VariantID:  f.variantID,
			Size:       "9",
			Color:      "white",
			Qty:        2,
			PriceCents: 5999,
		}},
		TotalCents: 11998,
		Status:     InitialStatus(method),
		Method:     method,
		Address:    testAddress(),
	}
	if method == MethodCOD {
		o.PaymentStatus = "PendingCOD"
	} else {
		o.PaymentStatus = string(StatusPaymentPending)
	}
	return o
}

func testEvent(t *testing.T, orderID string) OutboxEvent {
	t.Helper()
	env := NewEnvelope("orders-test", EventOrderConfirmed, orderID, OrderConfirmedPayload{OrderID: orderID})
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return OutboxEvent{EventID: env.EventID, Topic: TopicOrderConfirmed, Key: orderID, Payload: raw}
}

func stockOf(t *testing.T, r *Repo, f fixture) int {
	t.Helper()
	var stock int
	require.NoError(t, r.DB.QueryRow(context.Background(),
		`SELECT stock FROM variant_sizes WHERE variant_id = $1 AND size = '9'`, f.variantID).Scan(&stock))
	return stock
}

func TestCreateFromCheckoutAndGet(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	f := seed(t, r, 5)

	o := newOrderFor(f, MethodCard)
	payTx := &Transaction{
		ID: uuid.NewString(), OrderID: o.ID, UserID: f.userID,
		Method: MethodCard, Status: TxCreated, AmountCents: o.TotalCents,
	}
	o.PaymentTxID = payTx.ID

	require.NoError(t, r.CreateFromCheckout(ctx, o, payTx, testEvent(t, o.ID)))

	// the reservation committed with the order
	assert.Equal(t, 3, stockOf(t, r, f))

	got, err := r.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaymentPending, got.Status)
	assert.Equal(t, int64(11998), got.TotalCents)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, int64(5999), got.Lines[0].PriceCents)
	require.Len(t, got.History, 1)
	assert.Equal(t, StatusPaymentPending, got.History[0].Status)
	assert.Equal(t, payTx.ID, got.PaymentTxID)

	tx, err := r.GetTransaction(ctx, payTx.ID)
	require.NoError(t, err)
	assert.Equal(t, TxCreated, tx.Status)
}

func TestTransitionAppendsHistory(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	f := seed(t, r, 5)

	o := newOrderFor(f, MethodCOD)
	require.NoError(t, r.CreateFromCheckout(ctx, o, nil, testEvent(t, o.ID)))

	got, err := r.Transition(ctx, o.ID, StatusShipped, "picked up by courier")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
	require.Len(t, got.History, 2)
	assert.Equal(t, "picked up by courier", got.History[1].Note)

	_, err = r.Transition(ctx, o.ID, StatusPaid, "")
	var transErr *IllegalTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, StatusShipped, transErr.From)

	// the failed attempt must not have added history
	got, err = r.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 2)
}

func TestCheckoutInsufficientStockPersistsNothing(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	f := seed(t, r, 1)

	o := newOrderFor(f, MethodCOD) // wants 2, only 1 left
	err := r.CreateFromCheckout(ctx, o, nil, testEvent(t, o.ID))
	var stockErr *catalog.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)

	// the rollback must leave no order and no decrement behind
	_, err = r.Get(ctx, o.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, stockOf(t, r, f))
}

func TestCancelReleasesStockOnce(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	f := seed(t, r, 3)

	o := newOrderFor(f, MethodCOD)
	require.NoError(t, r.CreateFromCheckout(ctx, o, nil, testEvent(t, o.ID)))
	require.Equal(t, 1, stockOf(t, r, f))

	got, err := r.Cancel(ctx, o.ID, f.userID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 3, stockOf(t, r, f))

	// a second cancel finds Cancelled, which is not a legal source
	_, err = r.Cancel(ctx, o.ID, f.userID, "again")
	var transErr *IllegalTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, 3, stockOf(t, r, f))
}

func TestAdminCancelReleasesStock(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	f := seed(t, r, 5)

	o := newOrderFor(f, MethodCard)
	payTx := &Transaction{
		ID: uuid.NewString(), OrderID: o.ID, UserID: f.userID,
		Method: MethodCard, Status: TxCreated, AmountCents: o.TotalCents,
	}
	o.PaymentTxID = payTx.ID
	require.NoError(t, r.CreateFromCheckout(ctx, o, payTx, testEvent(t, o.ID)))
	require.Equal(t, 3, stockOf(t, r, f))

	// cancellation through the status endpoint must restock like Cancel does
	got, err := r.Transition(ctx, o.ID, StatusCancelled, "fraud suspected")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 5, stockOf(t, r, f))
	require.Len(t, got.History, 2)
	assert.Equal(t, "fraud suspected", got.History[1].Note)

	tx, err := r.GetTransaction(ctx, payTx.ID)
	require.NoError(t, err)
	assert.Equal(t, TxCancelled, tx.Status)
}

func TestCancelRejectsNonOwner(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	f := seed(t, r, 5)

	o := newOrderFor(f, MethodCOD)
	require.NoError(t, r.CreateFromCheckout(ctx, o, nil, testEvent(t, o.ID)))

	_, err := r.Cancel(ctx, o.ID, uuid.NewString(), "not mine")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestMarkPaid(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	f := seed(t, r, 5)

	o := newOrderFor(f, MethodUPI)
	payTx := &Transaction{
		ID: uuid.NewString(), OrderID: o.ID, UserID: f.userID,
		Method: MethodUPI, Status: TxCreated, AmountCents: o.TotalCents,
	}
	o.PaymentTxID = payTx.ID
	require.NoError(t, r.CreateFromCheckout(ctx, o, payTx, testEvent(t, o.ID)))

	env := NewEnvelope("orders-test", EventOrderPaid, o.ID, OrderPaidPayload{OrderID: o.ID, TransactionID: payTx.ID})
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	ev := OutboxEvent{EventID: env.EventID, Topic: TopicOrderPaid, Key: o.ID, Payload: raw}
	require.NoError(t, r.MarkPaid(ctx, o.ID, payTx.ID, ev))

	got, err := r.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
	assert.Equal(t, "Paid", got.PaymentStatus)

	tx, err := r.GetTransaction(ctx, payTx.ID)
	require.NoError(t, err)
	assert.Equal(t, TxPaid, tx.Status)

	// already Paid: a replayed MarkPaid must fail the adjacency check
	err = r.MarkPaid(ctx, o.ID, payTx.ID, ev)
	var transErr *IllegalTransitionError
	assert.ErrorAs(t, err, &transErr)
}

func TestGetMissingOrder(t *testing.T) {
	r := testRepo(t)
	_, err := r.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}
