package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/opsdesk/helpdesk/internal/domain"
	"github.com/opsdesk/helpdesk/internal/repository"
)

// Recorder appends immutable activity log entries. Recording is
// best-effort relative to the primary mutation: a failed append is
// logged as a warning and never propagated, so the mutation that
// triggered it still succeeds.
type Recorder struct {
	activity repository.ActivityRepository
	logger   *zap.Logger
}

// NewRecorder constructs the recorder.
func NewRecorder(activity repository.ActivityRepository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{activity: activity, logger: logger}
}

// Record appends one audit entry. OldValue/newValue may be nil, a
// scalar, or a structured snapshot; they are serialized to a stable
// text encoding before persisting.
func (r *Recorder) Record(ctx context.Context, actor domain.Actor, actionType domain.ActionType, description string, targetType domain.TargetType, targetID int64, oldValue, newValue any) {
	entry := &domain.ActivityLogEntry{
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		ActionType:    actionType,
		Description:   description,
		TargetType:    targetType,
		TargetID:      targetID,
		OldValue:      encodeValue(oldValue),
		NewValue:      encodeValue(newValue),
	}
	if err := r.activity.Create(ctx, entry); err != nil {
		r.logger.Warn("audit entry lost",
			zap.Error(err),
			zap.String("action_type", string(actionType)),
			zap.String("target_type", string(targetType)),
			zap.Int64("target_id", targetID),
			zap.Int64("actor_id", actor.ID))
	}
}

// encodeValue serializes a value to its stored text form. JSON gives a
// stable encoding for scalars and structured snapshots alike; map keys
// are emitted in sorted order.
func encodeValue(value any) *string {
	if value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		fallback := fmt.Sprintf("%v", value)
		return &fallback
	}
	encoded := string(data)
	return &encoded
}
