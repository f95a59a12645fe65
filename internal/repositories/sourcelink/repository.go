// Package sourcelink persists the many-to-one edges from source rows to
// candidates.
package sourcelink

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// Repository handles source link persistence
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

// Insert writes a source link. Writing the same (entity_type, candidate,
// source_table, source_row_key) twice is a no-op; returns whether a new link
// was created.
func (r *Repository) Insert(ctx context.Context, link *models.SourceLink) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcelink.Repository.Insert")
	defer span.End()

	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO candidate_source_links (id, entity_type, candidate_id, source_system, source_table, source_row_key, row_hash, link_score, link_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (entity_type, candidate_id, source_table, source_row_key) DO NOTHING
	`
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		link.ID, link.EntityType, link.CandidateID, link.SourceSystem,
		link.SourceTable, link.SourceRowKey, link.RowHash, link.LinkScore,
		link.LinkReason, link.CreatedAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": link.CandidateID, "source_row_key": link.SourceRowKey}).Error("Failed to insert source link")
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert source link: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read affected rows: %v", err)
	}
	return affected > 0, nil
}

// ListByCandidate returns every source link supporting a candidate.
func (r *Repository) ListByCandidate(ctx context.Context, candidateID string) ([]models.SourceLink, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcelink.Repository.ListByCandidate")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "entity_type", "candidate_id", "source_system", "source_table", "source_row_key", "row_hash", "link_score", "link_reason", "created_at")
	sb.From("candidate_source_links")
	sb.Where(sb.Equal("candidate_id", candidateID))
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var out []models.SourceLink
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": candidateID}).Error("Failed to list source links")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list source links: %v", err)
	}
	return out, nil
}

// DistinctSourceSystems returns the distinct source systems linked to a
// candidate.
func (r *Repository) DistinctSourceSystems(ctx context.Context, candidateID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcelink.Repository.DistinctSourceSystems")
	defer span.End()

	query := `SELECT DISTINCT source_system FROM candidate_source_links WHERE candidate_id = $1 ORDER BY source_system`
	var out []string
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &out, query, candidateID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": candidateID}).Error("Failed to list distinct source systems")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list distinct source systems: %v", err)
	}
	return out, nil
}
