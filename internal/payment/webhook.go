package payment

import (
	"context"
	"time"

	"agromarket/internal/apperr"
	"agromarket/internal/models"
	"agromarket/internal/payment/gateway"
	"agromarket/internal/util"

	"go.uber.org/zap"
)

// TransactionMarker applies terminal payment outcomes exactly once.
type TransactionMarker interface {
	MarkPaid(ctx context.Context, transactionID int64, gatewayTxID string) (*models.Transaction, error)
	MarkFailed(ctx context.Context, transactionID int64, cancelOrder bool) (*models.Transaction, error)
}

// TransactionLookup resolves the transaction a webhook refers to.
type TransactionLookup interface {
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
}

// Engine consumes raw provider webhooks and reconciles them with internal
// state. Providers retry delivery on any non-2xx, so Handle must be safe to
// run repeatedly with the same payload; the idempotency lives in the
// marker's guarded updates.
type Engine struct {
	gateways *gateway.Registry
	marker   TransactionMarker
	lookup   TransactionLookup
	logger   *zap.Logger
}

func NewEngine(gateways *gateway.Registry, marker TransactionMarker, lookup TransactionLookup) *Engine {
	return &Engine{
		gateways: gateways,
		marker:   marker,
		lookup:   lookup,
		logger:   util.GetLogger(),
	}
}

// Handle verifies, normalizes, and applies one webhook delivery.
func (e *Engine) Handle(ctx context.Context, gatewayName string, payload []byte, signatureHeader string) error {
	ctx, span := util.StartSpan(ctx, "WebhookEngine.Handle")
	defer span.End()

	adapter, ok := e.gateways.Get(gatewayName)
	if !ok {
		return apperr.New(apperr.NotFound, "unknown payment gateway: %s", gatewayName)
	}

	util.WebhooksReceivedTotal.WithLabelValues(gatewayName).Inc()

	if !adapter.VerifySignature(payload, signatureHeader) {
		util.WebhookSignatureFailures.WithLabelValues(gatewayName).Inc()
		return apperr.New(apperr.SignatureInvalid, "webhook signature verification failed")
	}

	event, err := adapter.ParseWebhook(payload)
	if err != nil {
		return apperr.Wrap(apperr.Validation, err, "webhook payload could not be parsed")
	}

	tx, err := e.lookup.GetTransaction(ctx, event.TransactionID)
	if err != nil {
		return err
	}

	if !event.Amount.IsZero() && !event.Amount.Equal(tx.Amount) {
		e.logger.Warn("Webhook amount differs from transaction amount",
			zap.Int64("transaction_id", tx.ID),
			zap.String("webhook_amount", event.Amount.String()),
			zap.String("transaction_amount", tx.Amount.String()))
	}

	start := time.Now()
	switch {
	case event.IsSuccess:
		_, err = e.marker.MarkPaid(ctx, tx.ID, event.GatewayTransactionID)
	case event.IsFailed:
		_, err = e.marker.MarkFailed(ctx, tx.ID, true)
	default:
		e.logger.Info("Ignoring intermediate webhook",
			zap.String("gateway", gatewayName),
			zap.Int64("transaction_id", tx.ID))
		return nil
	}
	if err != nil {
		return err
	}

	e.logger.Info("Webhook reconciled",
		zap.String("gateway", gatewayName),
		zap.Int64("transaction_id", tx.ID),
		zap.Bool("success", event.IsSuccess),
		zap.Duration("took", time.Since(start)))
	return nil
}
