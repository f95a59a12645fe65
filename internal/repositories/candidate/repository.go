// Package candidate persists candidate entities. Every state-changing write
// goes through ApplyStateChange, which is the storage side of the transition
// guard.
package candidate

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/guard"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

var columns = []string{
	"id", "entity_type", "stable_fingerprint", "attrs", "quality_score",
	"resolution_state", "confidence_reasons", "is_promoted",
	"promoted_canonical_id", "rule_version", "score_run_id",
	"created_at", "updated_at",
}

// Repository handles candidate entity persistence
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

// GetByFingerprint returns the candidate for (entity_type, fingerprint), or
// nil when none exists.
func (r *Repository) GetByFingerprint(ctx context.Context, entityType models.EntityType, fp string) (*models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.GetByFingerprint")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("candidate_entities")
	sb.Where(
		sb.Equal("entity_type", string(entityType)),
		sb.Equal("stable_fingerprint", fp),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var c models.Candidate
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "fingerprint": fp}).Error("Failed to get candidate by fingerprint")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get candidate by fingerprint: %v", err)
	}
	return &c, nil
}

// GetByID returns the candidate, or a 404 when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("candidate_entities")
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	query, args := sb.Build()
	var c models.Candidate
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "candidate %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get candidate")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get candidate: %v", err)
	}
	return &c, nil
}

// Create inserts a new candidate in the review state.
func (r *Repository) Create(ctx context.Context, entityType models.EntityType, fp string, attrs map[string]any) (*models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	c := models.Candidate{
		ID:                uuid.New().String(),
		EntityType:        entityType,
		StableFingerprint: fp,
		Attrs:             database.JSONB[map[string]any]{Data: attrs},
		ResolutionState:   models.ResolutionStateReview,
		ConfidenceReasons: database.JSONB[[]string]{Data: []string{}},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	query := `
		INSERT INTO candidate_entities (id, entity_type, stable_fingerprint, attrs, resolution_state, confidence_reasons, is_promoted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, $7)
	`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, c.ID, c.EntityType, c.StableFingerprint, c.Attrs, c.ResolutionState, c.ConfidenceReasons, now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "fingerprint": fp}).Error("Failed to create candidate")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create candidate: %v", err)
	}
	return &c, nil
}

// UpdateAttrs replaces a candidate's attrs after a fill-nulls merge.
func (r *Repository) UpdateAttrs(ctx context.Context, id string, attrs map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.UpdateAttrs")
	defer span.End()

	query := `UPDATE candidate_entities SET attrs = $2, updated_at = $3 WHERE id = $1`
	payload := database.JSONB[map[string]any]{Data: attrs}
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, id, payload, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to update candidate attrs")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update candidate attrs: %v", err)
	}
	return nil
}

// ListBatch returns candidates of a type ordered by id, starting after
// afterID. Used for keyset iteration by the scoring engine.
func (r *Repository) ListBatch(ctx context.Context, entityType models.EntityType, afterID string, limit int) ([]models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.ListBatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("candidate_entities")
	where := []string{sb.Equal("entity_type", string(entityType))}
	if afterID != "" {
		where = append(where, sb.GreaterThan("id", afterID))
	}
	sb.Where(where...)
	sb.OrderBy("id")
	sb.Limit(limit)

	query, args := sb.Build()
	var out []models.Candidate
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "after_id": afterID}).Error("Failed to list candidates")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list candidates: %v", err)
	}
	return out, nil
}

// ListPromotable returns unpromoted candidates in auto_promote, ordered by id.
func (r *Repository) ListPromotable(ctx context.Context, entityType models.EntityType) ([]models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.ListPromotable")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("candidate_entities")
	sb.Where(
		sb.Equal("entity_type", string(entityType)),
		sb.Equal("resolution_state", string(models.ResolutionStateAutoPromote)),
		sb.Equal("is_promoted", false),
	)
	sb.OrderBy("id")

	query, args := sb.Build()
	var out []models.Candidate
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to list promotable candidates")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list promotable candidates: %v", err)
	}
	return out, nil
}

// ListByCanonical returns all candidates linked to a canonical.
func (r *Repository) ListByCanonical(ctx context.Context, canonicalID string) ([]models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.ListByCanonical")
	defer span.End()

	query := `
		SELECT c.id, c.entity_type, c.stable_fingerprint, c.attrs, c.quality_score,
		       c.resolution_state, c.confidence_reasons, c.is_promoted,
		       c.promoted_canonical_id, c.rule_version, c.score_run_id,
		       c.created_at, c.updated_at
		FROM candidate_entities c
		JOIN candidate_canonical_links l ON l.candidate_id = c.id
		WHERE l.canonical_id = $1
		ORDER BY c.id
	`
	var out []models.Candidate
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &out, query, canonicalID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_id": canonicalID}).Error("Failed to list candidates by canonical")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list candidates by canonical: %v", err)
	}
	return out, nil
}

// ApplyStateChange validates the requested mutation against the transition
// guard and applies it in a single optimistic UPDATE. The WHERE clause pins
// the pre-mutation guarded fields, so a concurrent writer that got there
// first causes a refusal, not a silent overwrite.
func (r *Repository) ApplyStateChange(ctx context.Context, current *models.Candidate, change models.StateChange) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.ApplyStateChange")
	defer span.End()

	old := current.Snapshot()
	next := models.StateSnapshot{
		ResolutionState:     change.ResolutionState,
		IsPromoted:          change.IsPromoted,
		PromotedCanonicalID: change.PromotedCanonicalID,
	}
	if err := guard.Check(current.EntityType, current.ID, old, next); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": current.EntityType,
			"id":          current.ID,
			"from_state":  old.ResolutionState,
			"to_state":    next.ResolutionState,
		}).Warn("Refused illegal candidate transition")
		return err
	}

	query := `
		UPDATE candidate_entities
		SET resolution_state = $2,
		    is_promoted = $3,
		    promoted_canonical_id = $4,
		    quality_score = COALESCE($5, quality_score),
		    confidence_reasons = COALESCE($6, confidence_reasons),
		    rule_version = COALESCE($7, rule_version),
		    score_run_id = COALESCE($8, score_run_id),
		    updated_at = $9
		WHERE id = $1
		  AND resolution_state = $10
		  AND is_promoted = $11
		  AND promoted_canonical_id IS NOT DISTINCT FROM $12
	`
	var reasons *database.JSONB[[]string]
	if change.ConfidenceReasons != nil {
		reasons = &database.JSONB[[]string]{Data: change.ConfidenceReasons}
	}

	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		current.ID,
		next.ResolutionState, next.IsPromoted, next.PromotedCanonicalID,
		change.QualityScore, reasons, change.RuleVersion, change.ScoreRunID,
		time.Now().UTC(),
		old.ResolutionState, old.IsPromoted, old.PromotedCanonicalID,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": current.ID}).Error("Failed to apply candidate state change")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to apply state change: %v", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read affected rows: %v", err)
	}
	if affected == 0 {
		// Another writer changed the guarded fields since we read them.
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": current.ID}).Warn("Candidate state changed concurrently; refusing update")
		return httperror.NewHTTPErrorf(http.StatusConflict, "candidate %s was modified concurrently", current.ID)
	}

	current.ResolutionState = next.ResolutionState
	current.IsPromoted = next.IsPromoted
	current.PromotedCanonicalID = next.PromotedCanonicalID
	if change.QualityScore != nil {
		current.QualityScore = change.QualityScore
	}
	if change.ConfidenceReasons != nil {
		current.ConfidenceReasons = database.JSONB[[]string]{Data: change.ConfidenceReasons}
	}
	return nil
}
