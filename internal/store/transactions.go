package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agromarket/internal/apperr"
	"agromarket/internal/models"
)

// CreateTransaction inserts a transaction. The unique constraint on
// order_id enforces the one-to-one invariant; losers of a concurrent
// create see IsUniqueViolation and re-read the winner.
func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (order_id, amount, commission, payment_status, payment_gateway, gateway_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, tx, query,
		tx.OrderID, tx.Amount, tx.Commission, tx.PaymentStatus,
		tx.PaymentGateway, tx.GatewayTransactionID)
}

// GetTransaction retrieves a transaction by ID
func (s *Store) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.GetContext(ctx, &tx, "SELECT * FROM transactions WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "transaction not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTransactionByOrder retrieves the transaction linked to an order.
func (s *Store) GetTransactionByOrder(ctx context.Context, orderID int64) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.GetContext(ctx, &tx, "SELECT * FROM transactions WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "transaction not found for order: %d", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// MarkTransactionPaid flips a pending transaction to paid. The pending
// predicate lives in the update itself so duplicate webhook deliveries
// settle to exactly one transition. Returns false when no row changed.
func (s *Store) MarkTransactionPaid(ctx context.Context, id int64, gatewayTxID string, paidAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET payment_status = 'paid', gateway_transaction_id = $2, paid_at = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'`,
		id, gatewayTxID, paidAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkTransactionFailed flips a pending transaction to failed, guarded the
// same way as MarkTransactionPaid.
func (s *Store) MarkTransactionFailed(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET payment_status = 'failed', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'`,
		id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateTransactionGateway repoints a pending transaction at another
// provider when the retailer retries payment through a different gateway.
// Guarded by the pending predicate so a settled row never changes.
func (s *Store) UpdateTransactionGateway(ctx context.Context, id int64, gatewayName string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET payment_gateway = $2, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'`,
		id, gatewayName)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	PaymentStatus string
	Limit         int
	Offset        int
}

// ListTransactions returns a page of transactions and the unpaged total.
func (s *Store) ListTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, int64, error) {
	where := ""
	args := []interface{}{}
	if f.PaymentStatus != "" {
		where = " WHERE payment_status = $1"
		args = append(args, f.PaymentStatus)
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM transactions"+where, args...); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf("SELECT * FROM transactions%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, n+1, n+2)
	args = append(args, f.Limit, f.Offset)

	txs := []models.Transaction{}
	if err := s.db.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}
