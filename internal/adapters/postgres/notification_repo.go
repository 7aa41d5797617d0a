package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/fenceline/internal/core/domain"
)

// NotificationRepo implements ports.NotificationRepository.
type NotificationRepo struct {
	db *DB
}

func NewNotificationRepo(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO notifications (event_id, user_id, code, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, n.EventID, n.UserID, n.Code, n.Status).Scan(&n.ID, &n.CreatedAt)
}

func (r *NotificationRepo) GetByCode(ctx context.Context, code string) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, event_id, user_id, code, status, created_at
		FROM notifications WHERE code = $1
	`, code).Scan(&n.ID, &n.EventID, &n.UserID, &n.Code, &n.Status, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepo) MarkSent(ctx context.Context, code string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE notifications SET status = 'sent' WHERE code = $1
	`, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *NotificationRepo) Delete(ctx context.Context, code string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM notifications WHERE code = $1`, code)
	return err
}
