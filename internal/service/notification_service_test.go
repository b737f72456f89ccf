package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/helpdesk/internal/domain"
	"github.com/opsdesk/helpdesk/internal/service"
	apperrors "github.com/opsdesk/helpdesk/pkg/util"
)

func TestNotificationList(t *testing.T) {
	store := newFakeNotificationRepo()
	store.created = []domain.Notification{
		{ID: 1, RecipientID: 20, Message: "a"},
		{ID: 2, RecipientID: 21, Message: "b"},
		{ID: 3, RecipientID: 20, Message: "c", IsRead: true},
	}
	svc := service.NewNotificationService(store)

	mine, err := svc.List(context.Background(), carol(), 20, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	count, err := svc.UnreadCount(context.Background(), carol())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNotificationMarkRead(t *testing.T) {
	store := newFakeNotificationRepo()
	store.created = []domain.Notification{
		{ID: 1, RecipientID: 20},
		{ID: 2, RecipientID: 21},
	}
	svc := service.NewNotificationService(store)

	require.NoError(t, svc.MarkRead(context.Background(), carol(), 1))
	assert.True(t, store.created[0].IsRead)

	// Another recipient's row looks like a missing one.
	err := svc.MarkRead(context.Background(), carol(), 2)
	assert.True(t, apperrors.IsNotFound(err))
}
