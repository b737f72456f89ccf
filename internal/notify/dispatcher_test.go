package notify_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsdesk/helpdesk/internal/config"
	"github.com/opsdesk/helpdesk/internal/diff"
	"github.com/opsdesk/helpdesk/internal/domain"
	"github.com/opsdesk/helpdesk/internal/events"
	"github.com/opsdesk/helpdesk/internal/notify"
)

type notificationStore struct {
	created []domain.Notification
	// failFor makes writes to these recipients fail, to exercise
	// per-recipient isolation.
	failFor map[int64]bool
}

func (s *notificationStore) Create(_ context.Context, n *domain.Notification) error {
	if s.failFor[n.RecipientID] {
		return errors.New("write failed")
	}
	s.created = append(s.created, *n)
	return nil
}

func (s *notificationStore) ListByRecipient(context.Context, int64, int, int) ([]domain.Notification, error) {
	return nil, nil
}
func (s *notificationStore) CountUnread(context.Context, int64) (int64, error) { return 0, nil }
func (s *notificationStore) MarkRead(context.Context, int64, int64) error      { return nil }
func (s *notificationStore) DeleteByRelated(context.Context, domain.TargetType, int64) error {
	return nil
}

func (s *notificationStore) recipients() []int64 {
	ids := make([]int64, 0, len(s.created))
	for _, n := range s.created {
		ids = append(ids, n.RecipientID)
	}
	return ids
}

type userDirectory struct {
	admins []domain.User
	agents map[int64][]domain.User
}

func (d *userDirectory) Create(context.Context, *domain.User) error          { return nil }
func (d *userDirectory) Update(context.Context, *domain.User) error          { return nil }
func (d *userDirectory) Delete(context.Context, int64) error                 { return nil }
func (d *userDirectory) GetByID(context.Context, int64) (*domain.User, error) {
	return nil, errors.New("not implemented")
}
func (d *userDirectory) GetByUsername(context.Context, string) (*domain.User, error) {
	return nil, errors.New("not implemented")
}
func (d *userDirectory) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	if role == domain.RoleAdmin {
		return d.admins, nil
	}
	return nil, nil
}
func (d *userDirectory) ListAgentsByDepartment(_ context.Context, departmentID int64) ([]domain.User, error) {
	return d.agents[departmentID], nil
}

func newTestDispatcher(store *notificationStore, users *userDirectory, cfg config.NotificationConfig) *notify.Dispatcher {
	return notify.NewDispatcher(store, users, cfg, zap.NewNop())
}

func ticketEvent(kind events.Kind, actor domain.Actor, ticket *domain.Ticket) events.Event {
	return events.Event{ID: "evt-1", Kind: kind, Actor: actor, Ticket: ticket}
}

func TestTicketCreatedNotifiesAdminsAndDepartmentAgents(t *testing.T) {
	store := &notificationStore{}
	users := &userDirectory{
		admins: []domain.User{{ID: 1}, {ID: 2}},
		agents: map[int64][]domain.User{
			5: {{ID: 7}, {ID: 8}},
		},
	}
	d := newTestDispatcher(store, users, config.NotificationConfig{})

	actor := domain.Actor{ID: 20, Username: "carol", Role: domain.RoleClient}
	ticket := &domain.Ticket{ID: 10, Title: "laptop dead", Priority: domain.TicketPriorityHigh, DepartmentID: 5, UserID: 20}

	err := d.HandleTicketCreated(context.Background(), ticketEvent(events.KindTicketCreated, actor, ticket))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 7, 8}, store.recipients())
	for _, n := range store.created {
		assert.Equal(t, domain.NotificationTicketCreated, n.Type)
		assert.Equal(t, int64(10), n.RelatedID)
		assert.Equal(t, domain.TargetTicket, n.RelatedType)
		assert.Contains(t, n.Message, "carol opened ticket #10")
	}
}

func TestTicketCreatedExcludesActingAdmin(t *testing.T) {
	store := &notificationStore{}
	users := &userDirectory{admins: []domain.User{{ID: 1}, {ID: 2}}}
	d := newTestDispatcher(store, users, config.NotificationConfig{})

	actor := domain.Actor{ID: 1, Username: "root", Role: domain.RoleAdmin}
	ticket := &domain.Ticket{ID: 10, Title: "x", DepartmentID: 5, UserID: 30}

	require.NoError(t, d.HandleTicketCreated(context.Background(), ticketEvent(events.KindTicketCreated, actor, ticket)))
	assert.Equal(t, []int64{2}, store.recipients())
}

func TestTicketCreatedDeduplicatesAdminAgentOverlap(t *testing.T) {
	store := &notificationStore{}
	users := &userDirectory{
		admins: []domain.User{{ID: 1}},
		agents: map[int64][]domain.User{5: {{ID: 1}, {ID: 7}}},
	}
	d := newTestDispatcher(store, users, config.NotificationConfig{})

	actor := domain.Actor{ID: 20, Username: "carol", Role: domain.RoleClient}
	ticket := &domain.Ticket{ID: 10, Title: "x", DepartmentID: 5, UserID: 20}

	require.NoError(t, d.HandleTicketCreated(context.Background(), ticketEvent(events.KindTicketCreated, actor, ticket)))
	assert.Equal(t, []int64{1, 7}, store.recipients())
}

func TestTicketUpdatedStatusNotifiesOwnerAndAgent(t *testing.T) {
	store := &notificationStore{}
	d := newTestDispatcher(store, &userDirectory{}, config.NotificationConfig{})

	agentID := int64(7)
	actor := domain.Actor{ID: 7, Username: "marta", Role: domain.RoleAgent}
	ticket := &domain.Ticket{ID: 10, UserID: 20, AgentID: &agentID}

	event := ticketEvent(events.KindTicketUpdated, actor, ticket)
	event.Changes = []diff.Change{{Field: "status", Old: "open", New: "closed"}}

	require.NoError(t, d.HandleTicketUpdated(context.Background(), event))

	// The acting agent is excluded; only the owner remains.
	assert.Equal(t, []int64{20}, store.recipients())
	require.Len(t, store.created, 1)
	assert.Equal(t, domain.NotificationStatusChanged, store.created[0].Type)
	assert.Contains(t, store.created[0].Message, "status changed from open to closed")
}

func TestTicketUpdatedAssignmentNotifiesNewAgent(t *testing.T) {
	store := &notificationStore{}
	d := newTestDispatcher(store, &userDirectory{}, config.NotificationConfig{})

	newAgent := int64(8)
	prevAgent := int64(7)
	actor := domain.Actor{ID: 1, Username: "root", Role: domain.RoleAdmin}
	ticket := &domain.Ticket{ID: 10, UserID: 20, AgentID: &newAgent}

	event := ticketEvent(events.KindTicketUpdated, actor, ticket)
	event.PrevAgent = &prevAgent
	event.Changes = []diff.Change{{Field: "agent_id", Old: "marta", New: "sven"}}

	require.NoError(t, d.HandleTicketUpdated(context.Background(), event))

	assert.Equal(t, []int64{8}, store.recipients())
	assert.Equal(t, domain.NotificationTicketAssigned, store.created[0].Type)
}

func TestTicketUpdatedUnassignmentSilentByDefault(t *testing.T) {
	store := &notificationStore{}
	d := newTestDispatcher(store, &userDirectory{}, config.NotificationConfig{})

	prevAgent := int64(7)
	actor := domain.Actor{ID: 1, Username: "root", Role: domain.RoleAdmin}
	ticket := &domain.Ticket{ID: 10, UserID: 20, AgentID: nil}

	event := ticketEvent(events.KindTicketUpdated, actor, ticket)
	event.PrevAgent = &prevAgent
	event.Changes = []diff.Change{{Field: "agent_id", Old: "marta", New: diff.UnassignedLabel}}

	require.NoError(t, d.HandleTicketUpdated(context.Background(), event))
	assert.Empty(t, store.created)
}

func TestTicketUpdatedUnassignmentNotifiesPreviousAgentWhenEnabled(t *testing.T) {
	store := &notificationStore{}
	d := newTestDispatcher(store, &userDirectory{}, config.NotificationConfig{NotifyPreviousAgentOnUnassign: true})

	prevAgent := int64(7)
	actor := domain.Actor{ID: 1, Username: "root", Role: domain.RoleAdmin}
	ticket := &domain.Ticket{ID: 10, UserID: 20, AgentID: nil}

	event := ticketEvent(events.KindTicketUpdated, actor, ticket)
	event.PrevAgent = &prevAgent
	event.Changes = []diff.Change{{Field: "agent_id", Old: "marta", New: diff.UnassignedLabel}}

	require.NoError(t, d.HandleTicketUpdated(context.Background(), event))
	assert.Equal(t, []int64{7}, store.recipients())
}

func TestTicketUpdatedMultiFieldSingleRowPerRecipient(t *testing.T) {
	store := &notificationStore{}
	d := newTestDispatcher(store, &userDirectory{}, config.NotificationConfig{})

	actor := domain.Actor{ID: 1, Username: "root", Role: domain.RoleAdmin}
	ticket := &domain.Ticket{ID: 10, UserID: 20}

	event := ticketEvent(events.KindTicketUpdated, actor, ticket)
	event.Changes = []diff.Change{
		{Field: "status", Old: "open", New: "in-progress"},
		{Field: "priority", Old: "medium", New: "high"},
	}

	require.NoError(t, d.HandleTicketUpdated(context.Background(), event))

	// Owner matches both rules but gets exactly one row, typed after the
	// first matching change.
	require.Len(t, store.created, 1)
	n := store.created[0]
	assert.Equal(t, int64(20), n.RecipientID)
	assert.Equal(t, domain.NotificationStatusChanged, n.Type)
	assert.Contains(t, n.Message, "status changed from open to in-progress; priority changed from medium to high")
}

func TestCommentAddedNotifiesOwnerAndAgent(t *testing.T) {
	store := &notificationStore{}
	d := newTestDispatcher(store, &userDirectory{}, config.NotificationConfig{})

	agentID := int64(7)
	actor := domain.Actor{ID: 20, Username: "carol", Role: domain.RoleClient}
	ticket := &domain.Ticket{ID: 10, UserID: 20, AgentID: &agentID}

	event := ticketEvent(events.KindCommentAdded, actor, ticket)
	event.Comment = &domain.Comment{ID: 3, TicketID: 10, UserID: 20, Text: "any update?"}

	require.NoError(t, d.HandleCommentAdded(context.Background(), event))

	assert.Equal(t, []int64{7}, store.recipients())
	assert.Equal(t, domain.NotificationCommentAdded, store.created[0].Type)
	assert.Contains(t, store.created[0].Message, "any update?")
}

func TestCommentAddedFallsBackToAdminsWhenUnassigned(t *testing.T) {
	store := &notificationStore{}
	users := &userDirectory{admins: []domain.User{{ID: 1}, {ID: 2}}}
	d := newTestDispatcher(store, users, config.NotificationConfig{})

	agent := domain.Actor{ID: 7, Username: "marta", Role: domain.RoleAgent}
	ticket := &domain.Ticket{ID: 10, UserID: 20}

	event := ticketEvent(events.KindCommentAdded, agent, ticket)
	event.Comment = &domain.Comment{ID: 3, TicketID: 10, UserID: 7, Text: "escalating"}

	require.NoError(t, d.HandleCommentAdded(context.Background(), event))
	assert.Equal(t, []int64{20, 1, 2}, store.recipients())
}

func TestCommentPreviewTruncated(t *testing.T) {
	store := &notificationStore{}
	d := newTestDispatcher(store, &userDirectory{}, config.NotificationConfig{PreviewLength: 50})

	agentID := int64(7)
	actor := domain.Actor{ID: 20, Username: "carol", Role: domain.RoleClient}
	ticket := &domain.Ticket{ID: 10, UserID: 20, AgentID: &agentID}

	long := strings.Repeat("a", 80)
	event := ticketEvent(events.KindCommentAdded, actor, ticket)
	event.Comment = &domain.Comment{ID: 3, TicketID: 10, UserID: 20, Text: long}

	require.NoError(t, d.HandleCommentAdded(context.Background(), event))
	require.Len(t, store.created, 1)
	assert.Contains(t, store.created[0].Message, strings.Repeat("a", 47)+"...")
	assert.NotContains(t, store.created[0].Message, strings.Repeat("a", 48))
}

func TestDeliverIsolatesPerRecipientFailures(t *testing.T) {
	store := &notificationStore{failFor: map[int64]bool{1: true}}
	users := &userDirectory{admins: []domain.User{{ID: 1}, {ID: 2}, {ID: 3}}}
	d := newTestDispatcher(store, users, config.NotificationConfig{})

	actor := domain.Actor{ID: 20, Username: "carol", Role: domain.RoleClient}
	ticket := &domain.Ticket{ID: 10, Title: "x", DepartmentID: 5, UserID: 20}

	err := d.HandleTicketCreated(context.Background(), ticketEvent(events.KindTicketCreated, actor, ticket))
	require.NoError(t, err)

	// Recipient 1 failed; 2 and 3 still got theirs.
	assert.Equal(t, []int64{2, 3}, store.recipients())
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", notify.Preview("short", 50))
	assert.Equal(t, "trimmed", notify.Preview("  trimmed  ", 50))
	assert.Equal(t, "abcde", notify.Preview("abcde", 5))
	assert.Equal(t, "ab...", notify.Preview("abcdef", 5))
	assert.Equal(t, "abc", notify.Preview("abcdef", 3))

	// Multi-byte runes count as one character and never get split.
	assert.Equal(t, "üü...", notify.Preview(strings.Repeat("ü", 6), 5))
	assert.True(t, utf8.ValidString(notify.Preview(strings.Repeat("é", 60), 50)))
	assert.Equal(t, strings.Repeat("é", 47)+"...", notify.Preview(strings.Repeat("é", 60), 50))
}
