package service_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opsdesk/helpdesk/internal/domain"
	"github.com/opsdesk/helpdesk/internal/repository"
)

// opLog records store operations in call order, shared between fakes so
// cascade ordering can be asserted.
type opLog struct {
	ops []string
}

func (l *opLog) note(op string) {
	if l != nil {
		l.ops = append(l.ops, op)
	}
}

type fakeTicketRepo struct {
	tickets map[int64]domain.Ticket
	nextID  int64
	updates int
	log     *opLog
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[int64]domain.Ticket{}, nextID: 1}
}

func (r *fakeTicketRepo) put(ticket domain.Ticket) {
	if ticket.ID >= r.nextID {
		r.nextID = ticket.ID + 1
	}
	r.tickets[ticket.ID] = ticket
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	ticket.ID = r.nextID
	r.nextID++
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.updates++
	ticket.UpdatedAt = time.Now()
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *fakeTicketRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.tickets, id)
	r.log.note("delete ticket")
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &ticket, nil
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.UserID != nil && ticket.UserID != *filter.UserID {
			continue
		}
		if filter.DepartmentID != nil && ticket.DepartmentID != *filter.DepartmentID {
			continue
		}
		result = append(result, ticket)
	}
	return result, nil
}

func (r *fakeTicketRepo) CountByDepartment(_ context.Context, departmentID int64) (int64, error) {
	var count int64
	for _, ticket := range r.tickets {
		if ticket.DepartmentID == departmentID {
			count++
		}
	}
	return count, nil
}

type fakeCommentRepo struct {
	comments map[int64]domain.Comment
	nextID   int64
	log      *opLog
}

func newFakeCommentRepo() *fakeCommentRepo {
	return &fakeCommentRepo{comments: map[int64]domain.Comment{}, nextID: 1}
}

func (r *fakeCommentRepo) put(comment domain.Comment) {
	if comment.ID >= r.nextID {
		r.nextID = comment.ID + 1
	}
	r.comments[comment.ID] = comment
}

func (r *fakeCommentRepo) Create(_ context.Context, comment *domain.Comment) error {
	comment.ID = r.nextID
	r.nextID++
	comment.CreatedAt = time.Now()
	r.comments[comment.ID] = *comment
	return nil
}

func (r *fakeCommentRepo) GetByID(_ context.Context, id int64) (*domain.Comment, error) {
	comment, ok := r.comments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &comment, nil
}

func (r *fakeCommentRepo) ListByTicket(_ context.Context, ticketID int64) ([]domain.Comment, error) {
	var result []domain.Comment
	for _, comment := range r.comments {
		if comment.TicketID == ticketID {
			result = append(result, comment)
		}
	}
	return result, nil
}

func (r *fakeCommentRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.comments[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.comments, id)
	return nil
}

func (r *fakeCommentRepo) DeleteByTicket(_ context.Context, ticketID int64) error {
	for id, comment := range r.comments {
		if comment.TicketID == ticketID {
			delete(r.comments, id)
		}
	}
	r.log.note("delete comments")
	return nil
}

type fakeUserRepo struct {
	users  map[int64]domain.User
	nextID int64
}

func newFakeUserRepo(users ...domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[int64]domain.User{}, nextID: 1}
	for _, user := range users {
		if user.ID >= repo.nextID {
			repo.nextID = user.ID + 1
		}
		repo.users[user.ID] = user
	}
	return repo
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.users[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	var result []domain.User
	for _, user := range r.users {
		if user.Role == role {
			result = append(result, user)
		}
	}
	return result, nil
}

func (r *fakeUserRepo) ListAgentsByDepartment(_ context.Context, departmentID int64) ([]domain.User, error) {
	var result []domain.User
	for _, user := range r.users {
		if user.Role == domain.RoleAgent && user.DepartmentID != nil && *user.DepartmentID == departmentID {
			result = append(result, user)
		}
	}
	return result, nil
}

type fakeDepartmentRepo struct {
	departments map[int64]domain.Department
	nextID      int64
}

func newFakeDepartmentRepo(departments ...domain.Department) *fakeDepartmentRepo {
	repo := &fakeDepartmentRepo{departments: map[int64]domain.Department{}, nextID: 1}
	for _, dept := range departments {
		if dept.ID >= repo.nextID {
			repo.nextID = dept.ID + 1
		}
		repo.departments[dept.ID] = dept
	}
	return repo
}

func (r *fakeDepartmentRepo) Create(_ context.Context, dept *domain.Department) error {
	dept.ID = r.nextID
	r.nextID++
	dept.CreatedAt = time.Now()
	dept.UpdatedAt = dept.CreatedAt
	r.departments[dept.ID] = *dept
	return nil
}

func (r *fakeDepartmentRepo) Update(_ context.Context, dept *domain.Department) error {
	if _, ok := r.departments[dept.ID]; !ok {
		return pgx.ErrNoRows
	}
	dept.UpdatedAt = time.Now()
	r.departments[dept.ID] = *dept
	return nil
}

func (r *fakeDepartmentRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.departments[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.departments, id)
	return nil
}

func (r *fakeDepartmentRepo) GetByID(_ context.Context, id int64) (*domain.Department, error) {
	dept, ok := r.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &dept, nil
}

func (r *fakeDepartmentRepo) GetByName(_ context.Context, name string) (*domain.Department, error) {
	for _, dept := range r.departments {
		if dept.Name == name {
			d := dept
			return &d, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeDepartmentRepo) List(_ context.Context) ([]domain.Department, error) {
	var result []domain.Department
	for _, dept := range r.departments {
		result = append(result, dept)
	}
	return result, nil
}

type fakeActivityRepo struct {
	entries []domain.ActivityLogEntry
	nextID  int64
	log     *opLog
}

func newFakeActivityRepo() *fakeActivityRepo {
	return &fakeActivityRepo{nextID: 1}
}

func (r *fakeActivityRepo) Create(_ context.Context, entry *domain.ActivityLogEntry) error {
	entry.ID = r.nextID
	r.nextID++
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeActivityRepo) ListByTarget(_ context.Context, targetType domain.TargetType, targetID int64, _, _ int) ([]domain.ActivityLogEntry, error) {
	var result []domain.ActivityLogEntry
	for _, entry := range r.entries {
		if entry.TargetType == targetType && entry.TargetID == targetID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (r *fakeActivityRepo) DeleteByTarget(_ context.Context, targetType domain.TargetType, targetID int64) error {
	kept := r.entries[:0]
	for _, entry := range r.entries {
		if entry.TargetType != targetType || entry.TargetID != targetID {
			kept = append(kept, entry)
		}
	}
	r.entries = kept
	r.log.note("delete activity")
	return nil
}

// byAction filters recorded entries by action type.
func (r *fakeActivityRepo) byAction(action domain.ActionType) []domain.ActivityLogEntry {
	var result []domain.ActivityLogEntry
	for _, entry := range r.entries {
		if entry.ActionType == action {
			result = append(result, entry)
		}
	}
	return result
}

type fakeNotificationRepo struct {
	created []domain.Notification
	nextID  int64
	log     *opLog
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{nextID: 1}
}

func (r *fakeNotificationRepo) Create(_ context.Context, notification *domain.Notification) error {
	notification.ID = r.nextID
	r.nextID++
	notification.CreatedAt = time.Now()
	r.created = append(r.created, *notification)
	return nil
}

func (r *fakeNotificationRepo) ListByRecipient(_ context.Context, recipientID int64, _, _ int) ([]domain.Notification, error) {
	var result []domain.Notification
	for _, n := range r.created {
		if n.RecipientID == recipientID {
			result = append(result, n)
		}
	}
	return result, nil
}

func (r *fakeNotificationRepo) CountUnread(_ context.Context, recipientID int64) (int64, error) {
	var count int64
	for _, n := range r.created {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, id, recipientID int64) error {
	for i, n := range r.created {
		if n.ID == id && n.RecipientID == recipientID {
			r.created[i].IsRead = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeNotificationRepo) DeleteByRelated(_ context.Context, relatedType domain.TargetType, relatedID int64) error {
	kept := r.created[:0]
	for _, n := range r.created {
		if n.RelatedType != relatedType || n.RelatedID != relatedID {
			kept = append(kept, n)
		}
	}
	r.created = kept
	r.log.note("delete notifications")
	return nil
}

func (r *fakeNotificationRepo) recipients() []int64 {
	ids := make([]int64, 0, len(r.created))
	for _, n := range r.created {
		ids = append(ids, n.RecipientID)
	}
	return ids
}
