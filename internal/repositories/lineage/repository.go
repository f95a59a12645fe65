// Package lineage runs the read-only coverage queries behind the
// purge-readiness report and persists snapshots.
package lineage

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

// Repository handles lineage measurement and snapshot persistence
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

type candidateCounts struct {
	Total          int `db:"total"`
	WithSourceLink int `db:"with_source_link"`
	Promoted       int `db:"promoted"`
}

// CandidateCounts returns total, source-linked, and promoted candidate
// counts for a type.
func (r *Repository) CandidateCounts(ctx context.Context, entityType models.EntityType) (total, withSourceLink, promoted int, err error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Repository.CandidateCounts")
	defer span.End()

	query := `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE EXISTS (
		           SELECT 1 FROM candidate_source_links l WHERE l.candidate_id = c.id
		       )) AS with_source_link,
		       COUNT(*) FILTER (WHERE c.is_promoted) AS promoted
		FROM candidate_entities c
		WHERE c.entity_type = $1
	`
	var counts candidateCounts
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &counts, query, entityType); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to count candidates")
		return 0, 0, 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count candidates: %v", err)
	}
	return counts.Total, counts.WithSourceLink, counts.Promoted, nil
}

type stateCount struct {
	State string `db:"resolution_state"`
	Count int    `db:"count"`
}

// UnresolvedByState returns candidate counts per resolution state for
// unpromoted candidates.
func (r *Repository) UnresolvedByState(ctx context.Context, entityType models.EntityType) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Repository.UnresolvedByState")
	defer span.End()

	query := `
		SELECT resolution_state, COUNT(*) AS count
		FROM candidate_entities
		WHERE entity_type = $1 AND NOT is_promoted
		GROUP BY resolution_state
	`
	var rows []stateCount
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &rows, query, entityType); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to count unresolved candidates")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count unresolved candidates: %v", err)
	}

	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.State] = row.Count
	}
	return out, nil
}

// SourceLinkCount returns the number of source links for a type.
func (r *Repository) SourceLinkCount(ctx context.Context, entityType models.EntityType) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Repository.SourceLinkCount")
	defer span.End()

	var count int
	query := `SELECT COUNT(*) FROM candidate_source_links WHERE entity_type = $1`
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &count, query, entityType); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to count source links")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count source links: %v", err)
	}
	return count, nil
}

// PromotedMissingLink counts promoted candidates with no canonical link, a
// blocking issue for purge readiness.
func (r *Repository) PromotedMissingLink(ctx context.Context, entityType models.EntityType) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Repository.PromotedMissingLink")
	defer span.End()

	query := `
		SELECT COUNT(*)
		FROM candidate_entities c
		WHERE c.entity_type = $1
		  AND c.is_promoted
		  AND NOT EXISTS (
		      SELECT 1 FROM candidate_canonical_links l WHERE l.candidate_id = c.id
		  )
	`
	var count int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &count, query, entityType); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to count promoted candidates missing links")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count promoted candidates missing links: %v", err)
	}
	return count, nil
}

// CanonicalMissingProvenance counts active canonicals with no provenance
// rows at all.
func (r *Repository) CanonicalMissingProvenance(ctx context.Context, entityType models.EntityType) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Repository.CanonicalMissingProvenance")
	defer span.End()

	query := `
		SELECT COUNT(*)
		FROM canonical_entities ce
		WHERE ce.entity_type = $1
		  AND ce.status = 'active'
		  AND NOT EXISTS (
		      SELECT 1 FROM attribute_provenance p WHERE p.canonical_id = ce.id
		  )
	`
	var count int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &count, query, entityType); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to count canonicals missing provenance")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count canonicals missing provenance: %v", err)
	}
	return count, nil
}

// UnresolvedCriticalDeps counts promoted registrations whose event candidate
// is not promoted.
func (r *Repository) UnresolvedCriticalDeps(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Repository.UnresolvedCriticalDeps")
	defer span.End()

	query := `
		SELECT COUNT(*)
		FROM candidate_entities reg
		WHERE reg.entity_type = 'registration'
		  AND reg.is_promoted
		  AND EXISTS (
		      SELECT 1 FROM candidate_entities ev
		      WHERE ev.id = reg.attrs ->> 'event_candidate_id'
		        AND NOT ev.is_promoted
		  )
	`
	var count int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &count, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count unresolved critical dependencies")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count unresolved critical dependencies: %v", err)
	}
	return count, nil
}

// InsertSnapshot persists a coverage measurement.
func (r *Repository) InsertSnapshot(ctx context.Context, entityType models.EntityType, metrics models.LineageMetrics, passed bool) (*models.LineageSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Repository.InsertSnapshot")
	defer span.End()

	snapshot := models.LineageSnapshot{
		ID:               uuid.New().String(),
		EntityType:       entityType,
		Metrics:          database.JSONB[models.LineageMetrics]{Data: metrics},
		ThresholdsPassed: passed,
		CreatedAt:        time.Now().UTC(),
	}

	query := `
		INSERT INTO lineage_snapshots (id, entity_type, metrics, thresholds_passed, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		snapshot.ID, snapshot.EntityType, snapshot.Metrics, snapshot.ThresholdsPassed, snapshot.CreatedAt,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to insert lineage snapshot")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert lineage snapshot: %v", err)
	}
	return &snapshot, nil
}
