package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/opsdesk/helpdesk/internal/domain"
	"github.com/opsdesk/helpdesk/internal/repository"
	apperrors "github.com/opsdesk/helpdesk/pkg/util"
)

// NotificationService exposes the recipient-facing notification
// operations. Rows are only ever mutated by their recipient.
type NotificationService struct {
	notifications repository.NotificationRepository
}

// NewNotificationService constructs the service.
func NewNotificationService(notifications repository.NotificationRepository) *NotificationService {
	return &NotificationService{notifications: notifications}
}

// List returns the actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.Notification, error) {
	result, err := s.notifications.ListByRecipient(ctx, actor.ID, limit, offset)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return result, nil
}

// UnreadCount returns how many of the actor's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, actor domain.Actor) (int64, error) {
	count, err := s.notifications.CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, apperrors.NewInternalError(err)
	}
	return count, nil
}

// MarkRead marks one of the actor's notifications as read. A row that
// belongs to someone else is indistinguishable from a missing one.
func (s *NotificationService) MarkRead(ctx context.Context, actor domain.Actor, id int64) error {
	if err := s.notifications.MarkRead(ctx, id, actor.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("notification", map[string]any{"id": id})
		}
		return apperrors.NewInternalError(err)
	}
	return nil
}
