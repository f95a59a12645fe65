// Package sourcerecord reads the normalized source rows produced by
// ingestion adapters and records rows the builder had to skip.
package sourcerecord

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

var columns = []string{
	"id", "entity_type", "source_system", "source_table", "source_row_key",
	"row_hash", "attrs", "created_at",
}

// Repository handles source record reads and skip bookkeeping
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

// Insert stores a normalized source row delivered by an adapter. Duplicate
// deliveries of the same (source_table, source_row_key, row_hash) are no-ops.
func (r *Repository) Insert(ctx context.Context, record *models.SourceRecord) error {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.Insert")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO source_records (id, entity_type, source_system, source_table, source_row_key, row_hash, attrs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (entity_type, source_table, source_row_key, row_hash) DO NOTHING
	`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		record.ID, record.EntityType, record.SourceSystem, record.SourceTable,
		record.SourceRowKey, record.RowHash, record.Attrs, record.CreatedAt,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_table": record.SourceTable, "source_row_key": record.SourceRowKey}).Error("Failed to insert source record")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert source record: %v", err)
	}
	return nil
}

// ListBatch returns source rows of a type ordered by id, starting after
// afterID.
func (r *Repository) ListBatch(ctx context.Context, entityType models.EntityType, afterID string, limit int) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.ListBatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("source_records")
	where := []string{sb.Equal("entity_type", string(entityType))}
	if afterID != "" {
		where = append(where, sb.GreaterThan("id", afterID))
	}
	sb.Where(where...)
	sb.OrderBy("id")
	sb.Limit(limit)

	query, args := sb.Build()
	var out []models.SourceRecord
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to list source records")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list source records: %v", err)
	}
	return out, nil
}

// RecordSkip stores the stable reason a source row could not be linked, so
// the row is never silently lost. Re-recording the same (row, reason) is a
// no-op.
func (r *Repository) RecordSkip(ctx context.Context, record *models.SourceRecord, reasonCode, runID string) error {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.RecordSkip")
	defer span.End()

	query := `
		INSERT INTO skipped_source_rows (id, entity_type, source_system, source_table, source_row_key, reason_code, run_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (entity_type, source_table, source_row_key, reason_code) DO NOTHING
	`
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		uuid.New().String(), record.EntityType, record.SourceSystem,
		record.SourceTable, record.SourceRowKey, reasonCode, runID, time.Now().UTC(),
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_row_key": record.SourceRowKey, "reason_code": reasonCode}).Error("Failed to record skipped row")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to record skipped row: %v", err)
	}
	return nil
}

// CountUnlinked returns how many source rows of a type have neither a source
// link nor a recorded skip.
func (r *Repository) CountUnlinked(ctx context.Context, entityType models.EntityType) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.CountUnlinked")
	defer span.End()

	query := `
		SELECT COUNT(*)
		FROM source_records sr
		WHERE sr.entity_type = $1
		  AND NOT EXISTS (
			SELECT 1 FROM candidate_source_links l
			WHERE l.entity_type = sr.entity_type
			  AND l.source_table = sr.source_table
			  AND l.source_row_key = sr.source_row_key
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM skipped_source_rows s
			WHERE s.entity_type = sr.entity_type
			  AND s.source_table = sr.source_table
			  AND s.source_row_key = sr.source_row_key
		  )
	`
	var count int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &count, query, entityType); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to count unlinked source rows")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count unlinked source rows: %v", err)
	}
	return count, nil
}
