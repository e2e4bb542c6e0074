package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"agromarket/internal/apperr"
	"agromarket/internal/models"

	"github.com/shopspring/decimal"
)

// CreateOrderWithItems persists an order and its items in one transaction.
// The caller compensates the stock reservation when this fails.
func (s *Store) CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (retailer_id, total_amount, status, delivery_address, notes, ordered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	if err := tx.GetContext(ctx, order, query,
		order.RetailerID, order.TotalAmount, order.Status,
		order.DeliveryAddress, order.Notes, order.OrderedAt); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		itemQuery := `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`
		if err := tx.GetContext(ctx, &items[i], itemQuery,
			items[i].OrderID, items[i].ProductID, items[i].Quantity,
			items[i].UnitPrice, items[i].TotalPrice); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// UpdateOrderStatus performs a compare-and-set status transition, stamping
// the matching timestamp column. Returns false when the order was no longer
// in the expected source state.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error) {
	query := "UPDATE orders SET status = $1, updated_at = NOW()"
	switch to {
	case models.OrderStatusConfirmed:
		query += ", confirmed_at = NOW()"
	case models.OrderStatusDelivered:
		query += ", delivered_at = NOW()"
	case models.OrderStatusCompleted:
		query += ", completed_at = NOW()"
	}
	query += " WHERE id = $2 AND status = $3"

	res, err := s.db.ExecContext(ctx, query, to, orderID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateOrderItemQuantity rewrites an item's quantity/total and the parent
// order's total in one transaction so the sum invariant holds. The pending
// predicate on the order row is the arbiter against a concurrent
// confirmation: returns false when the order left pending, leaving both
// rows untouched.
func (s *Store) UpdateOrderItemQuantity(ctx context.Context, orderID, itemID int64, qty int, totalPrice, totalAmount decimal.Decimal) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET total_amount = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		totalAmount, orderID, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx,
		"UPDATE order_items SET quantity = $1, total_price = $2 WHERE id = $3 AND order_id = $4",
		qty, totalPrice, itemID, orderID)
	if err != nil {
		return false, err
	}
	if err := requireRow(res, fmt.Sprintf("order item not found: %d", itemID)); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	Status     string
	RetailerID int64
	FarmerID   int64
	Limit      int
	Offset     int
}

// ListOrders returns a page of orders and the unpaged total. The farmer
// filter matches orders containing at least one of the farmer's products.
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, int64, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0
	if f.Status != "" {
		n++
		where += fmt.Sprintf(" AND o.status = $%d", n)
		args = append(args, f.Status)
	}
	if f.RetailerID != 0 {
		n++
		where += fmt.Sprintf(" AND o.retailer_id = $%d", n)
		args = append(args, f.RetailerID)
	}
	if f.FarmerID != 0 {
		n++
		where += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM order_items oi
			JOIN products p ON p.id = oi.product_id
			WHERE oi.order_id = o.id AND p.farmer_id = $%d)`, n)
		args = append(args, f.FarmerID)
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM orders o"+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT o.* FROM orders o%s ORDER BY o.ordered_at DESC LIMIT $%d OFFSET $%d",
		where, n+1, n+2)
	args = append(args, f.Limit, f.Offset)

	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// OrderFarmerIDs returns the distinct owners of the products in an order.
func (s *Store) OrderFarmerIDs(ctx context.Context, orderID int64) ([]int64, error) {
	ids := []int64{}
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT p.farmer_id
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1`, orderID)
	return ids, err
}
