// Package scorerun persists one row per scoring execution.
package scorerun

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

// Repository handles score run persistence
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

// Open inserts a running score run row and returns it.
func (r *Repository) Open(ctx context.Context, entityType models.EntityType, ruleSetID string, dryRun bool) (*models.ScoreRun, error) {
	ctx, span := tracing.StartSpan(ctx, "scorerun.Repository.Open")
	defer span.End()

	run := models.ScoreRun{
		ID:         uuid.New().String(),
		EntityType: entityType,
		RuleSetID:  ruleSetID,
		Status:     models.RunStatusRunning,
		DryRun:     dryRun,
		StartedAt:  time.Now().UTC(),
	}

	query := `
		INSERT INTO score_runs (id, entity_type, rule_set_id, status, counters, dry_run, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		run.ID, run.EntityType, run.RuleSetID, run.Status, run.Counters, run.DryRun, run.StartedAt,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to open score run")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to open score run: %v", err)
	}
	return &run, nil
}

// Close finalizes a score run with its status and counters.
func (r *Repository) Close(ctx context.Context, runID string, status models.RunStatus, counters models.ScoreCounters) error {
	ctx, span := tracing.StartSpan(ctx, "scorerun.Repository.Close")
	defer span.End()

	query := `UPDATE score_runs SET status = $2, counters = $3, finished_at = $4 WHERE id = $1`
	payload := database.JSONB[models.ScoreCounters]{Data: counters}
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, runID, status, payload, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID, "status": status}).Error("Failed to close score run")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to close score run: %v", err)
	}
	return nil
}
