// Package ruleset persists registered rule documents with at-most-one-active
// semantics per (entity_type, source_scope).
package ruleset

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// Repository handles rule set persistence
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

// GetActive returns the active rule set for (entity_type, source_scope), or
// a 404 when none is registered.
func (r *Repository) GetActive(ctx context.Context, entityType models.EntityType, sourceScope string) (*models.RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.GetActive")
	defer span.End()

	query := `
		SELECT id, entity_type, source_scope, version, yaml_hash, document, is_active, created_at, updated_at
		FROM rule_sets
		WHERE entity_type = $1 AND source_scope = $2 AND is_active
		LIMIT 1
	`
	var rs models.RuleSet
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &rs, query, entityType, sourceScope); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "no active rule set for %s/%s", entityType, sourceScope)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "source_scope": sourceScope}).Error("Failed to get active rule set")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get active rule set: %v", err)
	}
	return &rs, nil
}

// Register activates a rule document. When the active rule set already has
// the same content hash, it is reused unchanged. Otherwise any prior active
// row for the scope is deactivated and a new active row is inserted.
func (r *Repository) Register(ctx context.Context, doc models.RuleDocument, yamlHash string) (*models.RuleSet, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ruleset.Repository.Register")
	defer span.End()

	existing, err := r.GetActive(ctx, doc.EntityType, doc.SourceScope)
	if err != nil && !(httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound) {
		return nil, false, err
	}
	if existing != nil && existing.YamlHash == yamlHash {
		return existing, false, nil
	}

	q := database.FromContext(ctx, r.db)
	deactivate := `UPDATE rule_sets SET is_active = false, updated_at = $3 WHERE entity_type = $1 AND source_scope = $2 AND is_active`
	if _, err := q.ExecContext(ctx, deactivate, doc.EntityType, doc.SourceScope, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": doc.EntityType, "source_scope": doc.SourceScope}).Error("Failed to deactivate prior rule set")
		return nil, false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to deactivate prior rule set: %v", err)
	}

	now := time.Now().UTC()
	rs := models.RuleSet{
		ID:          uuid.New().String(),
		EntityType:  doc.EntityType,
		SourceScope: doc.SourceScope,
		Version:     doc.Version,
		YamlHash:    yamlHash,
		Document:    database.JSONB[models.RuleDocument]{Data: doc},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	insert := `
		INSERT INTO rule_sets (id, entity_type, source_scope, version, yaml_hash, document, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7, $7)
	`
	if _, err := q.ExecContext(ctx, insert, rs.ID, rs.EntityType, rs.SourceScope, rs.Version, rs.YamlHash, rs.Document, now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": doc.EntityType, "version": doc.Version}).Error("Failed to register rule set")
		return nil, false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to register rule set: %v", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"entity_type": doc.EntityType, "source_scope": doc.SourceScope, "version": doc.Version}).Info("Registered rule set")
	return &rs, true, nil
}
