package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/opsdesk/helpdesk/internal/domain"
)

// NotificationRepository stores per-recipient notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	ListByRecipient(ctx context.Context, recipientID int64, limit, offset int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipientID int64) (int64, error)
	MarkRead(ctx context.Context, id, recipientID int64) error
	DeleteByRelated(ctx context.Context, relatedType domain.TargetType, relatedID int64) error
}

type notificationRepository struct {
	pool Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	const query = `
        INSERT INTO notifications (recipient_user_id, message, type, related_id, related_type, is_read)
        VALUES ($1,$2,$3,$4,$5,FALSE)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		notification.RecipientID,
		notification.Message,
		notification.Type,
		notification.RelatedID,
		notification.RelatedType,
	).Scan(&notification.ID, &notification.CreatedAt)
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID int64, limit, offset int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, recipient_user_id, message, type, related_id, related_type, is_read, created_at
        FROM notifications WHERE recipient_user_id=$1
        ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Message,
			&n.Type,
			&n.RelatedID,
			&n.RelatedType,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_user_id=$1 AND is_read=FALSE`,
		recipientID).Scan(&count)
	return count, err
}

// MarkRead flips is_read for one notification. The recipient id is part
// of the predicate so a user can only touch their own rows.
func (r *notificationRepository) MarkRead(ctx context.Context, id, recipientID int64) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read=TRUE WHERE id=$1 AND recipient_user_id=$2`,
		id, recipientID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) DeleteByRelated(ctx context.Context, relatedType domain.TargetType, relatedID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM notifications WHERE related_type=$1 AND related_id=$2`,
		relatedType, relatedID)
	return err
}
