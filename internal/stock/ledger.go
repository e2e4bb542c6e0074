// Package stock owns product quantity and status mutation in lockstep with
// order lifecycle events. All arbitration happens in the store's conditional
// updates; the ledger interprets their outcomes into typed errors.
package stock

import (
	"context"

	"agromarket/internal/apperr"
	"agromarket/internal/models"
	"agromarket/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the slice of persistence the ledger needs.
type Store interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ReserveProductStock(ctx context.Context, productID int64, qty decimal.Decimal) (bool, error)
	ConfirmProductSold(ctx context.Context, productID int64) error
	RestoreProductStock(ctx context.Context, productID int64, qty decimal.Decimal) (bool, error)
}

type Ledger struct {
	store  Store
	logger *zap.Logger
}

func NewLedger(store Store) *Ledger {
	return &Ledger{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Reserve provisionally decrements product stock before payment. The
// decrement is a single compare-and-set, so two concurrent reservations can
// never take more than is available. When it does not apply, a follow-up
// read names the violated rule.
func (l *Ledger) Reserve(ctx context.Context, productID int64, qty decimal.Decimal) error {
	ctx, span := util.StartSpan(ctx, "Ledger.Reserve")
	defer span.End()

	if qty.LessThanOrEqual(decimal.Zero) {
		return apperr.New(apperr.Validation, "quantity must be positive")
	}

	applied, err := l.store.ReserveProductStock(ctx, productID, qty)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	product, err := l.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product.Status != models.ProductStatusAvailable {
		util.StockReservationsFailed.WithLabelValues("unavailable").Inc()
		return apperr.New(apperr.Validation, "product is not available for ordering")
	}
	util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
	return apperr.New(apperr.Validation, "quantity exceeds available stock")
}

// Confirm finalizes a reservation on payment success. Only fully depleted
// products flip to sold; the quantity was already taken at reserve time.
func (l *Ledger) Confirm(ctx context.Context, productID int64) error {
	ctx, span := util.StartSpan(ctx, "Ledger.Confirm")
	defer span.End()

	return l.store.ConfirmProductSold(ctx, productID)
}

// Release returns reserved stock on cancellation and makes the product
// available again. A product deleted in the meantime is a silent no-op.
func (l *Ledger) Release(ctx context.Context, productID int64, qty decimal.Decimal) error {
	ctx, span := util.StartSpan(ctx, "Ledger.Release")
	defer span.End()

	found, err := l.store.RestoreProductStock(ctx, productID, qty)
	if err != nil {
		return err
	}
	if !found {
		l.logger.Info("Release skipped for deleted product",
			zap.Int64("product_id", productID))
	}
	return nil
}
