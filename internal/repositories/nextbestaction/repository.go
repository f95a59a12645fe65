// Package nextbestaction persists prioritized, deduplicated work items for
// candidates needing enrichment or manual review.
package nextbestaction

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// Repository handles next best action persistence
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

// OpenIfAbsent opens a work item unless an open or in-progress one already
// exists for (candidate, action_type, reason_code). Returns whether a new
// item was created.
func (r *Repository) OpenIfAbsent(ctx context.Context, item *models.NextBestAction) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "nextbestaction.Repository.OpenIfAbsent")
	defer span.End()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	// The partial unique index on open/in_progress items enforces the dedup.
	query := `
		INSERT INTO next_best_actions (id, entity_type, candidate_id, action_type, reason_code, priority, status, score_run_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (candidate_id, action_type, reason_code) WHERE status IN ('open', 'in_progress') DO NOTHING
	`
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		item.ID, item.EntityType, item.CandidateID, item.ActionType,
		item.ReasonCode, item.Priority, models.NBAStatusOpen, item.ScoreRunID, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": item.CandidateID, "reason_code": item.ReasonCode}).Error("Failed to open next best action")
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to open next best action: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read affected rows: %v", err)
	}
	return affected > 0, nil
}

// CloseStale dismisses open enrichment items for a candidate whose reason
// codes are not in keepReasons. Returns how many items were closed.
func (r *Repository) CloseStale(ctx context.Context, candidateID string, actionTypes, keepReasons []string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "nextbestaction.Repository.CloseStale")
	defer span.End()

	query := `
		UPDATE next_best_actions
		SET status = $4, updated_at = $5
		WHERE candidate_id = $1
		  AND action_type = ANY($2)
		  AND status IN ('open', 'in_progress')
		  AND NOT (reason_code = ANY($3))
	`
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		candidateID, pq.Array(actionTypes), pq.Array(keepReasons),
		models.NBAStatusDismissed, time.Now().UTC(),
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": candidateID}).Error("Failed to close stale next best actions")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to close stale next best actions: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read affected rows: %v", err)
	}
	return int(affected), nil
}

// DismissForCandidates dismisses every open item for the given candidates.
// Used when candidates are promoted or their canonical is merged away.
func (r *Repository) DismissForCandidates(ctx context.Context, candidateIDs []string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "nextbestaction.Repository.DismissForCandidates")
	defer span.End()

	if len(candidateIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE next_best_actions
		SET status = $2, updated_at = $3
		WHERE candidate_id = ANY($1)
		  AND status IN ('open', 'in_progress')
	`
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		pq.Array(candidateIDs), models.NBAStatusDismissed, time.Now().UTC(),
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to dismiss next best actions")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to dismiss next best actions: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read affected rows: %v", err)
	}
	return int(affected), nil
}
