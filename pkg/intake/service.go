package intake

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/reed/internal/repositories/sourcerecord"
	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/fingerprint"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// Envelope is the normalized source-row message published by upstream
// extractors.
type Envelope struct {
	EntityType   models.EntityType `json:"entity_type"`
	SourceSystem string            `json:"source_system"`
	SourceTable  string            `json:"source_table"`
	SourceRowKey string            `json:"source_row_key"`
	Attrs        map[string]any    `json:"attrs"`
}

// Service lands envelopes as source records.
type Service struct {
	logger     ectologger.Logger
	sourceRepo *sourcerecord.Repository
}

func NewService(logger ectologger.Logger, sourceRepo *sourcerecord.Repository) *Service {
	return &Service{
		logger:     logger,
		sourceRepo: sourceRepo,
	}
}

// Handle parses and persists one envelope. Re-deliveries of the same row
// content are absorbed by the source record's content-addressed uniqueness.
func (s *Service) Handle(ctx context.Context, key string, value []byte) error {
	ctx, span := tracing.StartSpan(ctx, "intake.Service.Handle")
	defer span.End()

	var envelope Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		// Malformed payloads are logged and dropped; retrying cannot fix them.
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"key": key}).Error("Dropping malformed intake envelope")
		return nil
	}

	if err := envelope.validate(); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"key": key}).Error("Dropping invalid intake envelope")
		return nil
	}

	record := &models.SourceRecord{
		EntityType:   envelope.EntityType,
		SourceSystem: envelope.SourceSystem,
		SourceTable:  envelope.SourceTable,
		SourceRowKey: envelope.SourceRowKey,
		RowHash:      fingerprint.Generate(envelope.Attrs),
		Attrs:        database.JSONB[map[string]any]{Data: envelope.Attrs},
	}
	return s.sourceRepo.Insert(ctx, record)
}

func (e *Envelope) validate() error {
	if !e.EntityType.Valid() {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown entity type %q", e.EntityType)
	}
	if e.SourceSystem == "" || e.SourceTable == "" || e.SourceRowKey == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "source_system, source_table, and source_row_key are required")
	}
	if len(e.Attrs) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "attrs must not be empty")
	}
	return nil
}
