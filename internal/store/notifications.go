package store

import (
	"context"
	"fmt"

	"agromarket/internal/models"
)

// CreateNotification inserts a notification row (fire-and-forget sink).
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, title, message, type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, n, query, n.UserID, n.Title, n.Message, n.Type)
}

// ListNotifications returns a page of a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID int64, limit, offset int) ([]models.Notification, int64, error) {
	var total int64
	if err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1", userID); err != nil {
		return nil, 0, err
	}

	notifications := []models.Notification{}
	err := s.db.SelectContext(ctx, &notifications,
		"SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

// MarkNotificationRead marks a user's notification read.
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2",
		id, userID)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("notification not found: %d", id))
}
