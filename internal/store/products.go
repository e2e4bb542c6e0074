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

// CreateProduct inserts a new product listing.
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (farmer_id, name, description, quantity, unit, price, status, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, product, query,
		product.FarmerID, product.Name, product.Description, product.Quantity,
		product.Unit, product.Price, product.Status, product.ImageURL)
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "product not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ProductFilter narrows a product listing.
type ProductFilter struct {
	FarmerID int64
	Status   string
	Limit    int
	Offset   int
}

// ListProducts returns a page of products and the unpaged total.
func (s *Store) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int64, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0
	if f.FarmerID != 0 {
		n++
		where += fmt.Sprintf(" AND farmer_id = $%d", n)
		args = append(args, f.FarmerID)
	}
	if f.Status != "" {
		n++
		where += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, f.Status)
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM products"+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT * FROM products%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, n+1, n+2)
	args = append(args, f.Limit, f.Offset)

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// UpdateProduct updates the mutable listing fields.
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1, description = $2, quantity = $3, unit = $4,
		    price = $5, status = $6, image_url = $7, updated_at = NOW()
		WHERE id = $8`,
		product.Name, product.Description, product.Quantity, product.Unit,
		product.Price, product.Status, product.ImageURL, product.ID)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("product not found: %d", product.ID))
}

// DeleteProduct removes a listing; blocked while order items reference it.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if IsForeignKeyViolation(err) {
		return apperr.Wrap(apperr.Conflict, err, "product is referenced by orders and cannot be deleted")
	}
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("product not found: %d", id))
}

// ReserveProductStock decrements available stock in a single conditional
// update so concurrent reservations can never oversell. When the decrement
// empties the stock the product flips to ordered. Returns false when the
// predicate did not match (missing, unavailable, or insufficient stock).
func (s *Store) ReserveProductStock(ctx context.Context, productID int64, qty decimal.Decimal) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $2,
		    status = CASE WHEN quantity - $2 <= 0 THEN 'ordered' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'available' AND quantity >= $2`,
		productID, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ConfirmProductSold marks a product sold when payment confirms the last of
// its stock. Products with stock remaining are left untouched.
func (s *Store) ConfirmProductSold(ctx context.Context, productID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET status = 'sold', updated_at = NOW() WHERE id = $1 AND quantity = 0",
		productID)
	return err
}

// RestoreProductStock returns reserved stock on cancellation and makes the
// product available again. Returns false when the product no longer exists.
func (s *Store) RestoreProductStock(ctx context.Context, productID int64, qty decimal.Decimal) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2, status = 'available', updated_at = NOW()
		WHERE id = $1`,
		productID, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
