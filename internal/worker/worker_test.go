package worker

import (
	"context"
	"testing"

	"agromarket/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notificationSink struct {
	rows []models.Notification
}

func (s *notificationSink) CreateNotification(_ context.Context, n *models.Notification) error {
	s.rows = append(s.rows, *n)
	return nil
}

func (s *notificationSink) forUser(userID int64) []models.Notification {
	var out []models.Notification
	for _, n := range s.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func orderEvent(eventType string, farmerIDs ...int64) *models.OrderEvent {
	return &models.OrderEvent{
		BaseEvent:   models.BaseEvent{EventType: eventType},
		OrderID:     7,
		RetailerID:  20,
		FarmerIDs:   farmerIDs,
		TotalAmount: decimal.RequireFromString("50.00"),
	}
}

func TestOrderCreatedNotifiesBothSides(t *testing.T) {
	sink := &notificationSink{}
	w := NewNotificationWorker(nil, sink)

	err := w.handleOrderEvent(context.Background(), orderEvent(models.EventTypeOrderCreated, 10, 11))
	require.NoError(t, err)

	assert.Len(t, sink.forUser(20), 1)
	assert.Len(t, sink.forUser(10), 1)
	assert.Len(t, sink.forUser(11), 1)
}

func TestOrderConfirmedNotifiesRetailerOnly(t *testing.T) {
	sink := &notificationSink{}
	w := NewNotificationWorker(nil, sink)

	err := w.handleOrderEvent(context.Background(), orderEvent(models.EventTypeOrderConfirmed, 10))
	require.NoError(t, err)

	assert.Len(t, sink.forUser(20), 1)
	assert.Empty(t, sink.forUser(10))
}

func TestOrderCancelledNotifiesBothSides(t *testing.T) {
	sink := &notificationSink{}
	w := NewNotificationWorker(nil, sink)

	err := w.handleOrderEvent(context.Background(), orderEvent(models.EventTypeOrderCancelled, 10))
	require.NoError(t, err)

	assert.Len(t, sink.forUser(20), 1)
	assert.Len(t, sink.forUser(10), 1)
}

func TestPaymentEventsNotifyRetailer(t *testing.T) {
	sink := &notificationSink{}
	w := NewNotificationWorker(nil, sink)

	paid := &models.PaymentEvent{
		BaseEvent:  models.BaseEvent{EventType: models.EventTypePaymentPaid},
		OrderID:    7,
		RetailerID: 20,
		Amount:     decimal.RequireFromString("50.00"),
	}
	require.NoError(t, w.handlePaymentEvent(context.Background(), paid))

	failed := &models.PaymentEvent{
		BaseEvent:  models.BaseEvent{EventType: models.EventTypePaymentFailed},
		OrderID:    7,
		RetailerID: 20,
	}
	require.NoError(t, w.handlePaymentEvent(context.Background(), failed))

	notifications := sink.forUser(20)
	require.Len(t, notifications, 2)
	assert.Equal(t, "payment", notifications[0].Type)
}

func TestUnknownEventTypesAreIgnored(t *testing.T) {
	sink := &notificationSink{}
	w := NewNotificationWorker(nil, sink)

	err := w.handleOrderEvent(context.Background(), orderEvent("SOMETHING_ELSE", 10))
	require.NoError(t, err)
	assert.Empty(t, sink.rows)
}
