package payment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoestopper/checkout/internal/orders"
)

type memCodeStore struct {
	mu    sync.Mutex
	codes map[string]string // orderID:txID -> code
}

func newMemCodeStore() *memCodeStore {
	return &memCodeStore{codes: map[string]string{}}
}

func (s *memCodeStore) Put(ctx context.Context, orderID, transactionID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[orderID+":"+transactionID] = code
	return nil
}

func (s *memCodeStore) Consume(ctx context.Context, orderID, transactionID, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := orderID + ":" + transactionID
	stored, ok := s.codes[k]
	if !ok || stored != code {
		return false, nil
	}
	delete(s.codes, k)
	return true, nil
}

type fakeStore struct {
	mu          sync.Mutex
	order       orders.Order
	txs         map[string]orders.Transaction
	paid        []string // transaction ids marked paid
	events      []orders.OutboxEvent
	markPaidErr error // one-shot failure injection
}

func newFakeStore(o orders.Order) *fakeStore {
	return &fakeStore{order: o, txs: map[string]orders.Transaction{}}
}

func (f *fakeStore) Get(ctx context.Context, orderID string) (orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if orderID != f.order.ID {
		return orders.Order{}, orders.ErrNotFound
	}
	return f.order, nil
}

func (f *fakeStore) GetTransaction(ctx context.Context, transactionID string) (orders.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txs[transactionID]
	if !ok {
		return orders.Transaction{}, orders.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) CreateTransaction(ctx context.Context, t orders.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[t.ID] = t
	return nil
}

func (f *fakeStore) MarkPaid(ctx context.Context, orderID, transactionID string, ev orders.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markPaidErr != nil {
		err := f.markPaidErr
		f.markPaidErr = nil
		return err
	}
	if !orders.CanTransition(f.order.Status, orders.StatusPaid) {
		return &orders.IllegalTransitionError{From: f.order.Status, To: orders.StatusPaid}
	}
	f.order.Status = orders.StatusPaid
	t := f.txs[transactionID]
	t.Status = orders.TxPaid
	f.txs[transactionID] = t
	f.paid = append(f.paid, transactionID)
	f.events = append(f.events, ev)
	return nil
}

type captureMailer struct {
	mu    sync.Mutex
	codes []string
}

func (m *captureMailer) SendPaymentCode(ctx context.Context, userID, orderID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, code)
	return nil
}

func (m *captureMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return ""
	}
	return m.codes[len(m.codes)-1]
}

func pendingOrder() orders.Order {
	return orders.Order{
		ID:         "o1",
		UserID:     "u1",
		Status:     orders.StatusPaymentPending,
		Method:     orders.MethodCard,
		TotalCents: 9998,
	}
}

func newGate(store *fakeStore, mail *captureMailer) *Gate {
	return &Gate{
		Log:     slog.Default(),
		Orders:  store,
		Codes:   newMemCodeStore(),
		Mailer:  mail,
		Service: "payment-test",
	}
}

func TestInitiateRejectsCOD(t *testing.T) {
	o := pendingOrder()
	o.Method = orders.MethodCOD
	o.Status = orders.StatusApproved
	gate := newGate(newFakeStore(o), &captureMailer{})

	_, err := gate.Initiate(context.Background(), "o1", orders.MethodCard)
	assert.ErrorIs(t, err, ErrNoPaymentRequired)
}

func TestInitiateIssuesCode(t *testing.T) {
	store := newFakeStore(pendingOrder())
	mail := &captureMailer{}
	gate := newGate(store, mail)

	txID, err := gate.Initiate(context.Background(), "o1", orders.MethodCard)
	require.NoError(t, err)
	require.NotEmpty(t, txID)

	tx, err := store.GetTransaction(context.Background(), txID)
	require.NoError(t, err)
	assert.Equal(t, orders.TxCreated, tx.Status)
	assert.Equal(t, int64(9998), tx.AmountCents)
	assert.Len(t, mail.lastCode(), 6)
}

func TestInitiateOnPaidOrderFails(t *testing.T) {
	o := pendingOrder()
	o.Status = orders.StatusPaid
	gate := newGate(newFakeStore(o), &captureMailer{})

	_, err := gate.Initiate(context.Background(), "o1", orders.MethodCard)
	var transErr *orders.IllegalTransitionError
	assert.ErrorAs(t, err, &transErr)
}

func TestConfirmHappyPath(t *testing.T) {
	store := newFakeStore(pendingOrder())
	mail := &captureMailer{}
	gate := newGate(store, mail)

	txID, err := gate.Initiate(context.Background(), "o1", orders.MethodCard)
	require.NoError(t, err)

	err = gate.Confirm(context.Background(), "o1", txID, mail.lastCode())
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPaid, store.order.Status)
	tx, _ := store.GetTransaction(context.Background(), txID)
	assert.Equal(t, orders.TxPaid, tx.Status)
	require.Len(t, store.events, 1)
	assert.Equal(t, orders.TopicOrderPaid, store.events[0].Topic)
}

func TestConfirmWrongCode(t *testing.T) {
	store := newFakeStore(pendingOrder())
	mail := &captureMailer{}
	gate := newGate(store, mail)

	txID, err := gate.Initiate(context.Background(), "o1", orders.MethodCard)
	require.NoError(t, err)

	err = gate.Confirm(context.Background(), "o1", txID, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Empty(t, store.paid)
}

func TestConfirmReplayFails(t *testing.T) {
	store := newFakeStore(pendingOrder())
	mail := &captureMailer{}
	gate := newGate(store, mail)

	txID, err := gate.Initiate(context.Background(), "o1", orders.MethodCard)
	require.NoError(t, err)
	code := mail.lastCode()

	require.NoError(t, gate.Confirm(context.Background(), "o1", txID, code))

	// the code was consumed; the identical call must not re-confirm
	err = gate.Confirm(context.Background(), "o1", txID, code)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Len(t, store.paid, 1)
}

func TestConfirmTransientFailureKeepsCode(t *testing.T) {
	store := newFakeStore(pendingOrder())
	mail := &captureMailer{}
	gate := newGate(store, mail)

	txID, err := gate.Initiate(context.Background(), "o1", orders.MethodCard)
	require.NoError(t, err)
	code := mail.lastCode()

	store.markPaidErr = errors.New("connection reset")
	err = gate.Confirm(context.Background(), "o1", txID, code)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCode)

	// the code was put back; the retry succeeds without a fresh Initiate
	require.NoError(t, gate.Confirm(context.Background(), "o1", txID, code))
	assert.Len(t, store.paid, 1)
	assert.Equal(t, orders.StatusPaid, store.order.Status)
}

func TestConfirmWrongOrder(t *testing.T) {
	store := newFakeStore(pendingOrder())
	mail := &captureMailer{}
	gate := newGate(store, mail)

	txID, err := gate.Initiate(context.Background(), "o1", orders.MethodCard)
	require.NoError(t, err)

	err = gate.Confirm(context.Background(), "o2", txID, mail.lastCode())
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestConcurrentConfirmSingleWinner(t *testing.T) {
	store := newFakeStore(pendingOrder())
	mail := &captureMailer{}
	gate := newGate(store, mail)

	txID, err := gate.Initiate(context.Background(), "o1", orders.MethodCard)
	require.NoError(t, err)
	code := mail.lastCode()

	const callers = 6
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- gate.Confirm(context.Background(), "o1", txID, code)
		}()
	}
	wg.Wait()
	close(errs)

	var wins int
	for err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrInvalidCode)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, store.paid, 1)
}

func TestNewCodeShape(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := newCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		assert.GreaterOrEqual(t, code, "100000")
		assert.LessOrEqual(t, code, "999999")
	}
}
