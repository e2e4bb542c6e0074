package payment

import (
	"context"
	"testing"
	"time"

	"agromarket/internal/apperr"
	"agromarket/internal/models"
	"agromarket/internal/order"
	"agromarket/internal/payment/gateway"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePayStore struct {
	orders       map[int64]*models.Order
	txs          map[int64]*models.Transaction
	txsByOrder   map[int64]*models.Transaction
	nextID       int64
	raceOnInsert bool
}

func newFakePayStore() *fakePayStore {
	return &fakePayStore{
		orders:     map[int64]*models.Order{},
		txs:        map[int64]*models.Transaction{},
		txsByOrder: map[int64]*models.Transaction{},
		nextID:     1,
	}
}

func (f *fakePayStore) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "order not found: %d", id)
	}
	cp := *o
	return &cp, nil
}

func (f *fakePayStore) GetTransaction(_ context.Context, id int64) (*models.Transaction, error) {
	tx, ok := f.txs[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "transaction not found: %d", id)
	}
	cp := *tx
	return &cp, nil
}

func (f *fakePayStore) GetTransactionByOrder(_ context.Context, orderID int64) (*models.Transaction, error) {
	tx, ok := f.txsByOrder[orderID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "transaction not found for order: %d", orderID)
	}
	cp := *tx
	return &cp, nil
}

func (f *fakePayStore) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	if f.raceOnInsert {
		// a concurrent writer won; surface the constraint violation once
		f.raceOnInsert = false
		winner := &models.Transaction{
			ID:             f.nextID,
			OrderID:        tx.OrderID,
			Amount:         tx.Amount,
			Commission:     tx.Commission,
			PaymentStatus:  models.PaymentStatusPending,
			PaymentGateway: "midtrans",
		}
		f.nextID++
		f.txs[winner.ID] = winner
		f.txsByOrder[winner.OrderID] = winner
		return &pq.Error{Code: "23505"}
	}
	tx.ID = f.nextID
	f.nextID++
	cp := *tx
	f.txs[tx.ID] = &cp
	f.txsByOrder[tx.OrderID] = &cp
	return nil
}

func (f *fakePayStore) MarkTransactionPaid(_ context.Context, id int64, gatewayTxID string, paidAt time.Time) (bool, error) {
	tx, ok := f.txs[id]
	if !ok || tx.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	tx.PaymentStatus = models.PaymentStatusPaid
	tx.GatewayTransactionID = gatewayTxID
	tx.PaidAt = &paidAt
	return true, nil
}

func (f *fakePayStore) MarkTransactionFailed(_ context.Context, id int64) (bool, error) {
	tx, ok := f.txs[id]
	if !ok || tx.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	tx.PaymentStatus = models.PaymentStatusFailed
	return true, nil
}

func (f *fakePayStore) UpdateTransactionGateway(_ context.Context, id int64, gatewayName string) (bool, error) {
	tx, ok := f.txs[id]
	if !ok || tx.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	tx.PaymentGateway = gatewayName
	return true, nil
}

type fakeOrderMachine struct {
	orders      map[int64]*models.Order
	transitions []string
	failApply   bool
}

func (f *fakeOrderMachine) Get(_ context.Context, orderID int64, _ order.Actor) (*models.Order, []models.OrderItem, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, nil, apperr.New(apperr.NotFound, "order not found: %d", orderID)
	}
	cp := *o
	return &cp, nil, nil
}

func (f *fakeOrderMachine) ApplyTransition(_ context.Context, orderID int64, newStatus string) (*models.Order, error) {
	if f.failApply {
		return nil, apperr.New(apperr.InvalidTransition, "cannot transition")
	}
	f.transitions = append(f.transitions, newStatus)
	o := f.orders[orderID]
	o.Status = newStatus
	cp := *o
	return &cp, nil
}

type paymentEvents struct {
	events []*models.PaymentEvent
}

func (p *paymentEvents) PublishPaymentEvent(_ context.Context, event *models.PaymentEvent) error {
	p.events = append(p.events, event)
	return nil
}

func newTestManager(fs *fakePayStore, om *fakeOrderMachine, sink *paymentEvents) *Manager {
	return NewManager(fs, om, gateway.NewRegistry(), sink, decimal.RequireFromString("0.05"))
}

func seedOrder(fs *fakePayStore, om *fakeOrderMachine, id int64, amount string) {
	o := &models.Order{
		ID:          id,
		RetailerID:  20,
		TotalAmount: decimal.RequireFromString(amount),
		Status:      models.OrderStatusPending,
	}
	fs.orders[id] = o
	om.orders[id] = o
}

func TestGetOrCreateComputesCommission(t *testing.T) {
	fs := newFakePayStore()
	om := &fakeOrderMachine{orders: map[int64]*models.Order{}}
	m := newTestManager(fs, om, &paymentEvents{})
	seedOrder(fs, om, 1, "123.45")

	tx, err := m.GetOrCreate(context.Background(), 1, decimal.RequireFromString("123.45"), "midtrans")
	require.NoError(t, err)
	assert.True(t, tx.Commission.Equal(decimal.RequireFromString("6.17")), "commission %s", tx.Commission)
	assert.Equal(t, models.PaymentStatusPending, tx.PaymentStatus)

	// second call returns the same row
	again, err := m.GetOrCreate(context.Background(), 1, decimal.RequireFromString("123.45"), "midtrans")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, again.ID)
}

func TestGetOrCreateLosesInsertRace(t *testing.T) {
	fs := newFakePayStore()
	fs.raceOnInsert = true
	om := &fakeOrderMachine{orders: map[int64]*models.Order{}}
	m := newTestManager(fs, om, &paymentEvents{})
	seedOrder(fs, om, 1, "100.00")

	tx, err := m.GetOrCreate(context.Background(), 1, decimal.RequireFromString("100.00"), "xendit")
	require.NoError(t, err)
	// the loser read back the winner's row
	assert.Equal(t, "midtrans", tx.PaymentGateway)
}

func TestMarkPaidConfirmsOrder(t *testing.T) {
	fs := newFakePayStore()
	om := &fakeOrderMachine{orders: map[int64]*models.Order{}}
	sink := &paymentEvents{}
	m := newTestManager(fs, om, sink)
	seedOrder(fs, om, 1, "100.00")

	tx, err := m.GetOrCreate(context.Background(), 1, decimal.RequireFromString("100.00"), "midtrans")
	require.NoError(t, err)

	paid, err := m.MarkPaid(context.Background(), tx.ID, "gw-123")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)
	assert.Equal(t, "gw-123", paid.GatewayTransactionID)
	assert.NotNil(t, paid.PaidAt)
	assert.Equal(t, []string{models.OrderStatusConfirmed}, om.transitions)

	require.Len(t, sink.events, 1)
	assert.Equal(t, models.EventTypePaymentPaid, sink.events[0].EventType)
	assert.Equal(t, int64(20), sink.events[0].RetailerID)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	fs := newFakePayStore()
	om := &fakeOrderMachine{orders: map[int64]*models.Order{}}
	sink := &paymentEvents{}
	m := newTestManager(fs, om, sink)
	seedOrder(fs, om, 1, "100.00")

	tx, err := m.GetOrCreate(context.Background(), 1, decimal.RequireFromString("100.00"), "midtrans")
	require.NoError(t, err)

	_, err = m.MarkPaid(context.Background(), tx.ID, "gw-123")
	require.NoError(t, err)

	// repeat delivery changes nothing and publishes nothing new
	again, err := m.MarkPaid(context.Background(), tx.ID, "gw-456")
	require.NoError(t, err)
	assert.Equal(t, "gw-123", again.GatewayTransactionID)
	assert.Len(t, om.transitions, 1)
	assert.Len(t, sink.events, 1)
}

func TestMarkPaidSurvivesReconciliationConflict(t *testing.T) {
	fs := newFakePayStore()
	om := &fakeOrderMachine{orders: map[int64]*models.Order{}, failApply: true}
	m := newTestManager(fs, om, &paymentEvents{})
	seedOrder(fs, om, 1, "100.00")

	tx, err := m.GetOrCreate(context.Background(), 1, decimal.RequireFromString("100.00"), "midtrans")
	require.NoError(t, err)

	// the order cannot be confirmed, but the payment is still recorded
	paid, err := m.MarkPaid(context.Background(), tx.ID, "gw-123")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)
}

func TestMarkFailedCancelsOrder(t *testing.T) {
	fs := newFakePayStore()
	om := &fakeOrderMachine{orders: map[int64]*models.Order{}}
	sink := &paymentEvents{}
	m := newTestManager(fs, om, sink)
	seedOrder(fs, om, 1, "100.00")

	tx, err := m.GetOrCreate(context.Background(), 1, decimal.RequireFromString("100.00"), "midtrans")
	require.NoError(t, err)

	failed, err := m.MarkFailed(context.Background(), tx.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, failed.PaymentStatus)
	assert.Equal(t, []string{models.OrderStatusCancelled}, om.transitions)

	require.Len(t, sink.events, 1)
	assert.Equal(t, models.EventTypePaymentFailed, sink.events[0].EventType)
}

func TestPayRejectsNonPendingOrder(t *testing.T) {
	fs := newFakePayStore()
	om := &fakeOrderMachine{orders: map[int64]*models.Order{}}
	m := newTestManager(fs, om, &paymentEvents{})
	seedOrder(fs, om, 1, "100.00")
	om.orders[1].Status = models.OrderStatusConfirmed
	fs.orders[1].Status = models.OrderStatusConfirmed

	_, err := m.Pay(context.Background(), 1, "midtrans", order.Actor{ID: 20, Role: models.RoleRetailer})
	assert.True(t, apperr.IsKind(err, apperr.InvalidTransition))
}

func TestPayRetryUpdatesStoredGateway(t *testing.T) {
	fs := newFakePayStore()
	om := &fakeOrderMachine{orders: map[int64]*models.Order{}}
	adapter := &stubAdapter{name: "xendit", session: &gateway.PaymentSession{
		PaymentURL: "https://checkout.xendit.co/web/abc",
		Token:      "abc",
	}}
	m := NewManager(fs, om, gateway.NewRegistry(adapter), &paymentEvents{},
		decimal.RequireFromString("0.05"))
	seedOrder(fs, om, 1, "100.00")

	// the first attempt recorded the transaction against midtrans
	tx, err := m.GetOrCreate(context.Background(), 1, decimal.RequireFromString("100.00"), "midtrans")
	require.NoError(t, err)

	resp, err := m.Pay(context.Background(), 1, "xendit", order.Actor{ID: 20, Role: models.RoleRetailer})
	require.NoError(t, err)
	assert.Equal(t, tx.ID, resp.TransactionID)

	stored, err := fs.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "xendit", stored.PaymentGateway)
}

func TestPayRejectsUnknownGateway(t *testing.T) {
	fs := newFakePayStore()
	om := &fakeOrderMachine{orders: map[int64]*models.Order{}}
	m := newTestManager(fs, om, &paymentEvents{})
	seedOrder(fs, om, 1, "100.00")

	_, err := m.Pay(context.Background(), 1, "paypal", order.Actor{ID: 20, Role: models.RoleRetailer})
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}
