package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"agromarket/internal/apperr"
	"agromarket/internal/models"
)

// CreateUser inserts a new user and fills in its generated fields.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (name, email, phone, password_hash, role, is_verified, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, user, query,
		user.Name, user.Email, user.Phone, user.PasswordHash,
		user.Role, user.IsVerified, user.IsActive)
	if IsUniqueViolation(err) {
		return apperr.Wrap(apperr.Conflict, err, "email or phone already registered")
	}
	return err
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "user not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = $1", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByPhone retrieves a user by phone number
func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE phone = $1", phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetUserVerified flips the verification flag (admin action).
func (s *Store) SetUserVerified(ctx context.Context, id int64, verified bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_verified = $1, updated_at = NOW() WHERE id = $2",
		verified, id)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("user not found: %d", id))
}

// SetUserActive flips the active flag (admin action).
func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2",
		active, id)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("user not found: %d", id))
}

// DeleteUser removes a user. Deletion is blocked while orders or products
// still reference the row.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if IsForeignKeyViolation(err) {
		return apperr.Wrap(apperr.Conflict, err, "user has orders or products and cannot be deleted")
	}
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("user not found: %d", id))
}

func requireRow(res sql.Result, notFoundMsg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.NotFound, "%s", notFoundMsg)
	}
	return nil
}
