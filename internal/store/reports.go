package store

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketSummary is the admin reporting aggregate.
type MarketSummary struct {
	TotalUsers      int64           `db:"total_users" json:"total_users"`
	TotalProducts   int64           `db:"total_products" json:"total_products"`
	OrdersPending   int64           `db:"orders_pending" json:"orders_pending"`
	OrdersConfirmed int64           `db:"orders_confirmed" json:"orders_confirmed"`
	OrdersDelivered int64           `db:"orders_delivered" json:"orders_delivered"`
	OrdersCompleted int64           `db:"orders_completed" json:"orders_completed"`
	OrdersCancelled int64           `db:"orders_cancelled" json:"orders_cancelled"`
	RevenuePaid     decimal.Decimal `db:"revenue_paid" json:"revenue_paid"`
	CommissionPaid  decimal.Decimal `db:"commission_paid" json:"commission_paid"`
}

// GetMarketSummary aggregates the admin report in a single query.
func (s *Store) GetMarketSummary(ctx context.Context) (*MarketSummary, error) {
	var summary MarketSummary
	err := s.db.GetContext(ctx, &summary, `
		SELECT
			(SELECT COUNT(*) FROM users) AS total_users,
			(SELECT COUNT(*) FROM products) AS total_products,
			(SELECT COUNT(*) FROM orders WHERE status = 'pending') AS orders_pending,
			(SELECT COUNT(*) FROM orders WHERE status = 'confirmed') AS orders_confirmed,
			(SELECT COUNT(*) FROM orders WHERE status = 'delivered') AS orders_delivered,
			(SELECT COUNT(*) FROM orders WHERE status = 'completed') AS orders_completed,
			(SELECT COUNT(*) FROM orders WHERE status = 'cancelled') AS orders_cancelled,
			(SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE payment_status = 'paid') AS revenue_paid,
			(SELECT COALESCE(SUM(commission), 0) FROM transactions WHERE payment_status = 'paid') AS commission_paid`)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
