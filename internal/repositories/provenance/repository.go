// Package provenance persists which candidate and source won each canonical
// attribute. Exactly one active row per (entity_type, canonical, attribute).
package provenance

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

// Repository handles attribute provenance persistence
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

// Upsert replaces the active provenance row for the attribute. Re-promotion,
// merge, and split overwrite rather than append.
func (r *Repository) Upsert(ctx context.Context, row *models.AttributeProvenance) error {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.Upsert")
	defer span.End()

	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO attribute_provenance (id, entity_type, canonical_id, attribute, candidate_id, source_system, method, decided_by, rule_version, resolution_run_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (entity_type, canonical_id, attribute) DO UPDATE
		SET candidate_id = EXCLUDED.candidate_id,
		    source_system = EXCLUDED.source_system,
		    method = EXCLUDED.method,
		    decided_by = EXCLUDED.decided_by,
		    rule_version = EXCLUDED.rule_version,
		    resolution_run_id = EXCLUDED.resolution_run_id,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		row.ID, row.EntityType, row.CanonicalID, row.Attribute, row.CandidateID,
		row.SourceSystem, row.Method, row.DecidedBy, row.RuleVersion,
		row.ResolutionRunID, now,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_id": row.CanonicalID, "attribute": row.Attribute}).Error("Failed to upsert attribute provenance")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert attribute provenance: %v", err)
	}
	return nil
}

// ListByCanonical returns the active provenance rows for a canonical.
func (r *Repository) ListByCanonical(ctx context.Context, canonicalID string) ([]models.AttributeProvenance, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.ListByCanonical")
	defer span.End()

	query := `
		SELECT id, entity_type, canonical_id, attribute, candidate_id, source_system, method, decided_by, rule_version, resolution_run_id, created_at, updated_at
		FROM attribute_provenance
		WHERE canonical_id = $1
		ORDER BY attribute
	`
	var rows []models.AttributeProvenance
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &rows, query, canonicalID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_id": canonicalID}).Error("Failed to list attribute provenance")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list attribute provenance: %v", err)
	}
	return rows, nil
}

// DeleteForCanonicalAttrs removes provenance rows for attributes that no
// longer exist on the canonical after survivorship recomputation.
func (r *Repository) DeleteForCanonicalAttrs(ctx context.Context, canonicalID string, keepAttrs []string) error {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.DeleteForCanonicalAttrs")
	defer span.End()

	query := `DELETE FROM attribute_provenance WHERE canonical_id = $1 AND NOT (attribute = ANY($2))`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, canonicalID, pq.Array(keepAttrs)); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_id": canonicalID}).Error("Failed to prune attribute provenance")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to prune attribute provenance: %v", err)
	}
	return nil
}
