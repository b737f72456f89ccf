package diff

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/opsdesk/helpdesk/internal/domain"
)

// UnassignedLabel is the sentinel rendered for a nil assignee.
const UnassignedLabel = "unassigned"

// Change is one field-level difference between two snapshots. For
// fields that reference other entities (agent_id, department_id) Old
// and New carry resolved display names, because every downstream
// consumer renders them for humans. Note annotates derived changes.
type Change struct {
	Field string
	Old   any
	New   any
	Note  string
}

// NameResolver turns entity ids into display names. Implementations
// may cache; a resolution failure falls back to a numeric label and
// never fails the diff.
type NameResolver interface {
	UserName(ctx context.Context, id int64) (string, error)
	DepartmentName(ctx context.Context, id int64) (string, error)
}

// Engine computes ordered field-level diffs between entity snapshots.
// The result of one Compute call is shared by the audit recorder and
// the notification dispatcher so their texts never disagree.
type Engine struct {
	names NameResolver
	now   func() time.Time
}

// NewEngine constructs the engine.
func NewEngine(names NameResolver) *Engine {
	return &Engine{names: names, now: time.Now}
}

// NewEngineWithClock constructs an engine with a fixed clock, for tests.
func NewEngineWithClock(names NameResolver, now func() time.Time) *Engine {
	return &Engine{names: names, now: now}
}

// Compute returns one Change per tracked field whose value actually
// differs between the snapshots, in tracked-field order. A field
// missing from newSnap means "no change requested", not a transition
// to empty. A status change additionally derives the implied closed_at
// change.
func (e *Engine) Compute(ctx context.Context, oldSnap, newSnap map[string]any, tracked []string) []Change {
	changes := make([]Change, 0, len(tracked))
	for _, field := range tracked {
		newVal, requested := newSnap[field]
		if !requested {
			continue
		}
		oldVal := normalize(oldSnap[field])
		newVal = normalize(newVal)
		if equal(oldVal, newVal) {
			continue
		}

		change := Change{Field: field, Old: oldVal, New: newVal}
		switch field {
		case "agent_id":
			change.Old = e.userLabel(ctx, oldVal)
			change.New = e.userLabel(ctx, newVal)
		case "department_id":
			change.Old = e.departmentLabel(ctx, oldVal)
			change.New = e.departmentLabel(ctx, newVal)
		}
		changes = append(changes, change)

		if field == "status" {
			if derived, ok := e.deriveClosedAt(oldVal, newVal, oldSnap["closed_at"]); ok {
				changes = append(changes, derived)
			}
		}
	}
	return changes
}

// deriveClosedAt emits the closed_at companion entry mandated by the
// closed_at-iff-closed invariant when a status change crosses the
// closed boundary in either direction.
func (e *Engine) deriveClosedAt(oldStatus, newStatus, oldClosedAt any) (Change, bool) {
	closed := string(domain.TicketStatusClosed)
	switch {
	case newStatus == closed && oldStatus != closed:
		return Change{
			Field: "closed_at",
			Old:   nil,
			New:   e.now(),
			Note:  "ticket closed",
		}, true
	case oldStatus == closed && newStatus != closed:
		return Change{
			Field: "closed_at",
			Old:   normalize(oldClosedAt),
			New:   nil,
			Note:  "ticket reopened",
		}, true
	}
	return Change{}, false
}

func (e *Engine) userLabel(ctx context.Context, val any) string {
	id, ok := asID(val)
	if !ok {
		return UnassignedLabel
	}
	if e.names != nil {
		if name, err := e.names.UserName(ctx, id); err == nil && name != "" {
			return name
		}
	}
	return fmt.Sprintf("user #%d", id)
}

func (e *Engine) departmentLabel(ctx context.Context, val any) string {
	id, ok := asID(val)
	if !ok {
		return "none"
	}
	if e.names != nil {
		if name, err := e.names.DepartmentName(ctx, id); err == nil && name != "" {
			return name
		}
	}
	return fmt.Sprintf("department #%d", id)
}

// normalize collapses typed nils and pointer values so snapshots built
// from structs compare cleanly against request field maps.
func normalize(val any) any {
	if val == nil {
		return nil
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	switch v := val.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case domain.TicketStatus:
		return string(v)
	case domain.TicketPriority:
		return string(v)
	case domain.Role:
		return string(v)
	}
	return val
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

func asID(val any) (int64, bool) {
	switch v := val.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}
