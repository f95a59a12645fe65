// Package canonical persists trusted, promoted records. Canonicals are
// retired by status changes (merged, inert), never deleted.
package canonical

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
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

var columns = []string{
	"id", "entity_type", "attrs", "confidence", "resolution_run_id",
	"status", "merged_into_id", "created_at", "updated_at",
}

// Repository handles canonical entity persistence
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

// Create inserts a new active canonical.
func (r *Repository) Create(ctx context.Context, entityType models.EntityType, attrs map[string]any, confidence *float64, runID string) (*models.Canonical, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	c := models.Canonical{
		ID:              uuid.New().String(),
		EntityType:      entityType,
		Attrs:           database.JSONB[map[string]any]{Data: attrs},
		Confidence:      confidence,
		ResolutionRunID: &runID,
		Status:          models.CanonicalStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	query := `
		INSERT INTO canonical_entities (id, entity_type, attrs, confidence, resolution_run_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		c.ID, c.EntityType, c.Attrs, c.Confidence, c.ResolutionRunID, c.Status, now,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to create canonical")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create canonical: %v", err)
	}
	return &c, nil
}

// GetByID returns the canonical, or a 404 when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Canonical, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("canonical_entities")
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	query, args := sb.Build()
	var c models.Canonical
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "canonical %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get canonical")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get canonical: %v", err)
	}
	return &c, nil
}

// ResolveLive follows merged_into_id back-references to the live terminus of
// a merge chain. Chains cannot cycle because each merge always targets the
// currently-live survivor.
func (r *Repository) ResolveLive(ctx context.Context, id string) (*models.Canonical, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.ResolveLive")
	defer span.End()

	const maxHops = 32
	current := id
	for i := 0; i < maxHops; i++ {
		c, err := r.GetByID(ctx, current)
		if err != nil {
			return nil, err
		}
		if c.Status != models.CanonicalStatusMerged || c.MergedIntoID == nil {
			return c, nil
		}
		current = *c.MergedIntoID
	}
	return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "merge chain from canonical %s exceeded %d hops", id, maxHops)
}

// UpdateAttrs replaces a canonical's attrs and confidence after survivorship
// recomputation.
func (r *Repository) UpdateAttrs(ctx context.Context, id string, attrs map[string]any, confidence *float64, runID string) error {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.UpdateAttrs")
	defer span.End()

	query := `
		UPDATE canonical_entities
		SET attrs = $2, confidence = $3, resolution_run_id = $4, updated_at = $5
		WHERE id = $1
	`
	payload := database.JSONB[map[string]any]{Data: attrs}
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, id, payload, confidence, runID, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to update canonical attrs")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update canonical attrs: %v", err)
	}
	return nil
}

// RewriteAttrRef repoints a jsonb attribute reference across every active
// canonical of the entity type. Used when a merge retires a canonical that
// other canonicals reference by id.
func (r *Repository) RewriteAttrRef(ctx context.Context, entityType models.EntityType, attr, fromID, toID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.RewriteAttrRef")
	defer span.End()

	query := `
		UPDATE canonical_entities
		SET attrs = jsonb_set(attrs, ARRAY[$2], to_jsonb($4::text)), updated_at = $5
		WHERE entity_type = $1 AND status = 'active' AND attrs ->> $2 = $3
	`
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, entityType, attr, fromID, toID, time.Now().UTC())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "attr": attr}).Error("Failed to rewrite canonical attr reference")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to rewrite canonical attr reference: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read affected rows: %v", err)
	}
	return int(affected), nil
}

// SetStatus marks a canonical merged or inert. mergedIntoID is required for
// merged and must be nil otherwise.
func (r *Repository) SetStatus(ctx context.Context, id string, status models.CanonicalStatus, mergedIntoID *string) error {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.SetStatus")
	defer span.End()

	if (status == models.CanonicalStatusMerged) != (mergedIntoID != nil) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "merged status requires a merged_into_id and other statuses forbid it")
	}

	query := `UPDATE canonical_entities SET status = $2, merged_into_id = $3, updated_at = $4 WHERE id = $1`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, id, status, mergedIntoID, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": status}).Error("Failed to set canonical status")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to set canonical status: %v", err)
	}
	return nil
}
