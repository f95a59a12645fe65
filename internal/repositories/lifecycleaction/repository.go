// Package lifecycleaction persists the audit trail for lifecycle operations
// and their per-item outcomes.
package lifecycleaction

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// Repository handles lifecycle action persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) DB() database.DB {
	return r.db
}

// Begin records a new lifecycle action. When an action with the same
// fingerprint was already applied, the existing action is returned with
// replay=true so the caller can no-op.
func (r *Repository) Begin(ctx context.Context, action *models.LifecycleAction) (replay bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycleaction.Repository.Begin")
	defer span.End()

	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	action.Status = models.RunStatusRunning
	action.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO lifecycle_actions (id, action_type, entity_type, action_fingerprint, actor, payload, status, dry_run, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (action_fingerprint) DO NOTHING
	`
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		action.ID, action.ActionType, action.EntityType, action.ActionFingerprint,
		action.Actor, action.Payload, action.Status, action.DryRun, action.CreatedAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"action_type": action.ActionType, "fingerprint": action.ActionFingerprint}).Error("Failed to record lifecycle action")
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to record lifecycle action: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read affected rows: %v", err)
	}
	if affected == 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"action_type": action.ActionType, "fingerprint": action.ActionFingerprint}).Info("Lifecycle action already applied; treating as replay")
		return true, nil
	}
	return false, nil
}

// Finish finalizes the action's status.
func (r *Repository) Finish(ctx context.Context, actionID string, status models.RunStatus) error {
	ctx, span := tracing.StartSpan(ctx, "lifecycleaction.Repository.Finish")
	defer span.End()

	query := `UPDATE lifecycle_actions SET status = $2, finished_at = $3 WHERE id = $1`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, actionID, status, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"action_id": actionID}).Error("Failed to finish lifecycle action")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to finish lifecycle action: %v", err)
	}
	return nil
}

// RecordItem stores the outcome of one item within an action, with its
// before and after payloads.
func (r *Repository) RecordItem(ctx context.Context, actionID, itemKey string, outcome models.ItemOutcome, detail *string, before, after map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "lifecycleaction.Repository.RecordItem")
	defer span.End()

	query := `
		INSERT INTO lifecycle_action_items (id, action_id, item_key, outcome, detail, before, after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		uuid.New().String(), actionID, itemKey, outcome, detail,
		database.JSONB[map[string]any]{Data: before},
		database.JSONB[map[string]any]{Data: after},
		time.Now().UTC(),
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"action_id": actionID, "item_key": itemKey}).Error("Failed to record lifecycle action item")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to record lifecycle action item: %v", err)
	}
	return nil
}
