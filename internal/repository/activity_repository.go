package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/opsdesk/helpdesk/internal/domain"
)

// ActivityRepository stores immutable audit entries. Entries are never
// updated; deletion happens only when a ticket cascade removes them.
type ActivityRepository interface {
	Create(ctx context.Context, entry *domain.ActivityLogEntry) error
	ListByTarget(ctx context.Context, targetType domain.TargetType, targetID int64, limit, offset int) ([]domain.ActivityLogEntry, error)
	DeleteByTarget(ctx context.Context, targetType domain.TargetType, targetID int64) error
}

type activityRepository struct {
	pool Pool
}

// NewActivityRepository builds repository.
func NewActivityRepository(pool Pool) ActivityRepository {
	return &activityRepository{pool: pool}
}

func (r *activityRepository) Create(ctx context.Context, entry *domain.ActivityLogEntry) error {
	const query = `
        INSERT INTO activity_log (actor_id, actor_username, actor_role, action_type, description, target_type, target_id, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.ActorID,
		entry.ActorUsername,
		entry.ActorRole,
		entry.ActionType,
		entry.Description,
		entry.TargetType,
		entry.TargetID,
		entry.OldValue,
		entry.NewValue,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *activityRepository) ListByTarget(ctx context.Context, targetType domain.TargetType, targetID int64, limit, offset int) ([]domain.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, actor_id, actor_username, actor_role, action_type, description, target_type, target_id, old_value, new_value, created_at
        FROM activity_log WHERE target_type=$1 AND target_id=$2
        ORDER BY created_at ASC, id ASC LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, targetType, targetID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActivity(rows)
}

func (r *activityRepository) DeleteByTarget(ctx context.Context, targetType domain.TargetType, targetID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM activity_log WHERE target_type=$1 AND target_id=$2`, targetType, targetID)
	return err
}

func scanActivity(rows pgx.Rows) ([]domain.ActivityLogEntry, error) {
	var result []domain.ActivityLogEntry
	for rows.Next() {
		var entry domain.ActivityLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.ActorID,
			&entry.ActorUsername,
			&entry.ActorRole,
			&entry.ActionType,
			&entry.Description,
			&entry.TargetType,
			&entry.TargetID,
			&entry.OldValue,
			&entry.NewValue,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
