// Package worker runs the background consumers that turn market events
// into user notifications.
package worker

import (
	"context"
	"fmt"

	"agromarket/internal/broker"
	"agromarket/internal/models"
	"agromarket/internal/util"

	"go.uber.org/zap"
)

// NotificationStore persists notification rows.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// NotificationWorker consumes market events and fans them out as
// notifications to the retailer and the farmers involved.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        NotificationStore
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, store NotificationStore) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		store:    store,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderEvent(w.handleOrderEvent)
	eventHandler.OnPaymentEvent(w.handlePaymentEvent)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	var retailerMsg, farmerMsg string

	switch event.EventType {
	case models.EventTypeOrderCreated:
		retailerMsg = fmt.Sprintf("Your order #%d has been placed. Waiting for payment.", event.OrderID)
		farmerMsg = fmt.Sprintf("You have a new order #%d.", event.OrderID)
	case models.EventTypeOrderConfirmed:
		retailerMsg = fmt.Sprintf("Order #%d has been confirmed by the farmer.", event.OrderID)
	case models.EventTypeOrderDelivered:
		retailerMsg = fmt.Sprintf("Order #%d is on its way.", event.OrderID)
	case models.EventTypeOrderCompleted:
		farmerMsg = fmt.Sprintf("Order #%d was marked as received by the buyer.", event.OrderID)
	case models.EventTypeOrderCancelled:
		retailerMsg = fmt.Sprintf("Order #%d has been cancelled.", event.OrderID)
		farmerMsg = fmt.Sprintf("Order #%d has been cancelled. Stock was restored.", event.OrderID)
	default:
		return nil
	}

	if retailerMsg != "" {
		if err := w.notify(ctx, event.RetailerID, "Order update", retailerMsg, "order"); err != nil {
			return err
		}
	}
	if farmerMsg != "" {
		for _, farmerID := range event.FarmerIDs {
			if err := w.notify(ctx, farmerID, "Order update", farmerMsg, "order"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *NotificationWorker) handlePaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	var msg string

	switch event.EventType {
	case models.EventTypePaymentPaid:
		msg = fmt.Sprintf("Payment of %s for order #%d was received.", event.Amount.StringFixed(2), event.OrderID)
	case models.EventTypePaymentFailed:
		msg = fmt.Sprintf("Payment for order #%d failed. Please try again.", event.OrderID)
	default:
		return nil
	}

	return w.notify(ctx, event.RetailerID, "Payment update", msg, "payment")
}

func (w *NotificationWorker) notify(ctx context.Context, userID int64, title, message, kind string) error {
	n := &models.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    kind,
	}
	if err := w.store.CreateNotification(ctx, n); err != nil {
		w.logger.Error("Failed to store notification",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return err
	}
	return nil
}
