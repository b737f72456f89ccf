package policy

import (
	"github.com/opsdesk/helpdesk/internal/domain"
)

// Action enumerates the operations the evaluator rules on.
type Action string

const (
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionComment Action = "comment"
)

// Evaluator decides whether an actor may perform an action on a target
// entity. Evaluation is pure: no stores are consulted, every decision
// is a function of the actor and the target snapshot alone. All entry
// points share these rules.
type Evaluator struct{}

// NewEvaluator constructs the evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// CanAccessTicket rules on ticket reads, updates, comments and deletes.
func (e *Evaluator) CanAccessTicket(actor domain.Actor, ticket *domain.Ticket, action Action) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	switch action {
	case ActionRead, ActionUpdate, ActionComment:
		switch actor.Role {
		case domain.RoleClient:
			return actor.ID == ticket.UserID
		case domain.RoleAgent:
			// Unassigned tickets are visible and actionable by any agent.
			return ticket.AgentID == nil || *ticket.AgentID == actor.ID
		}
		return false
	case ActionDelete:
		// Only the original reporter besides admins.
		return actor.ID == ticket.UserID
	}
	return false
}

// CanAccessComment rules on comment visibility and deletion. Visibility
// follows the parent ticket; deletion is additionally open to the
// comment's own author regardless of ticket relationship.
func (e *Evaluator) CanAccessComment(actor domain.Actor, comment *domain.Comment, ticket *domain.Ticket, action Action) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	if action == ActionDelete {
		return comment.UserID == actor.ID
	}
	return e.CanAccessTicket(actor, ticket, ActionRead)
}

// CanAccessDepartment rules on department operations. Reads are open to
// every authenticated role; any mutation is admin-only.
func (e *Evaluator) CanAccessDepartment(actor domain.Actor, action Action) bool {
	if action == ActionRead {
		return domain.ValidRole(actor.Role)
	}
	return actor.Role == domain.RoleAdmin
}

// CanAccessUser rules on user record operations. Users may read their
// own record; everything else is admin-only.
func (e *Evaluator) CanAccessUser(actor domain.Actor, target *domain.User, action Action) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	return action == ActionRead && target != nil && target.ID == actor.ID
}
