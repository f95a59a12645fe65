// Package canonicallink persists the candidate-to-canonical mapping. At most
// one active link per candidate; many candidates may share a canonical.
package canonicallink

import (
	"context"
	"database/sql"
	"errors"
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

// Repository handles canonical link persistence
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

// GetByCandidate returns the candidate's link, or nil when none exists.
func (r *Repository) GetByCandidate(ctx context.Context, candidateID string) (*models.CanonicalLink, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicallink.Repository.GetByCandidate")
	defer span.End()

	query := `
		SELECT id, entity_type, candidate_id, canonical_id, link_kind, created_at, updated_at
		FROM candidate_canonical_links
		WHERE candidate_id = $1
		LIMIT 1
	`
	var link models.CanonicalLink
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &link, query, candidateID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": candidateID}).Error("Failed to get canonical link")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get canonical link: %v", err)
	}
	return &link, nil
}

// ListByCanonical returns every link pointing at a canonical.
func (r *Repository) ListByCanonical(ctx context.Context, canonicalID string) ([]models.CanonicalLink, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicallink.Repository.ListByCanonical")
	defer span.End()

	query := `
		SELECT id, entity_type, candidate_id, canonical_id, link_kind, created_at, updated_at
		FROM candidate_canonical_links
		WHERE canonical_id = $1
		ORDER BY candidate_id
	`
	var links []models.CanonicalLink
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &links, query, canonicalID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_id": canonicalID}).Error("Failed to list canonical links")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list canonical links: %v", err)
	}
	return links, nil
}

// Upsert writes a candidate's canonical link. Auto links never overwrite an
// existing link; manual links re-point it.
func (r *Repository) Upsert(ctx context.Context, link *models.CanonicalLink) error {
	ctx, span := tracing.StartSpan(ctx, "canonicallink.Repository.Upsert")
	defer span.End()

	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	var query string
	if link.LinkKind == models.LinkKindManual {
		query = `
			INSERT INTO candidate_canonical_links (id, entity_type, candidate_id, canonical_id, link_kind, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (candidate_id) DO UPDATE
			SET canonical_id = EXCLUDED.canonical_id,
			    link_kind = EXCLUDED.link_kind,
			    updated_at = EXCLUDED.updated_at
		`
	} else {
		query = `
			INSERT INTO candidate_canonical_links (id, entity_type, candidate_id, canonical_id, link_kind, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (candidate_id) DO NOTHING
		`
	}

	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		link.ID, link.EntityType, link.CandidateID, link.CanonicalID, link.LinkKind, now,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": link.CandidateID, "canonical_id": link.CanonicalID}).Error("Failed to upsert canonical link")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to upsert canonical link: %v", err)
	}
	return nil
}

// Delete removes a candidate's link. Returns whether a link existed.
func (r *Repository) Delete(ctx context.Context, candidateID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicallink.Repository.Delete")
	defer span.End()

	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, `DELETE FROM candidate_canonical_links WHERE candidate_id = $1`, candidateID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": candidateID}).Error("Failed to delete canonical link")
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete canonical link: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read affected rows: %v", err)
	}
	return affected > 0, nil
}

// Repoint moves every link from one canonical to another. Used by merge.
func (r *Repository) Repoint(ctx context.Context, fromCanonicalID, toCanonicalID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicallink.Repository.Repoint")
	defer span.End()

	query := `
		UPDATE candidate_canonical_links
		SET canonical_id = $2, updated_at = $3
		WHERE canonical_id = $1
	`
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, fromCanonicalID, toCanonicalID, time.Now().UTC())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from": fromCanonicalID, "to": toCanonicalID}).Error("Failed to repoint canonical links")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to repoint canonical links: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read affected rows: %v", err)
	}
	return int(affected), nil
}

// RepointCandidates moves the given candidates onto a new canonical. Used by
// split.
func (r *Repository) RepointCandidates(ctx context.Context, candidateIDs []string, toCanonicalID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "canonicallink.Repository.RepointCandidates")
	defer span.End()

	if len(candidateIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE candidate_canonical_links
		SET canonical_id = $2, updated_at = $3
		WHERE candidate_id = ANY($1)
	`
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, pq.Array(candidateIDs), toCanonicalID, time.Now().UTC())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"to": toCanonicalID}).Error("Failed to repoint candidate links")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to repoint candidate links: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read affected rows: %v", err)
	}
	return int(affected), nil
}
