// Package ingest turns normalized source rows into candidate entities plus
// traceable source links. It is the leaf data-producing stage for everything
// above it.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/reed/internal/repositories/candidate"
	"github.com/Ramsey-B/reed/internal/repositories/sourcelink"
	"github.com/Ramsey-B/reed/internal/repositories/sourcerecord"
	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/fingerprint"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// Builder is the fingerprint and source-link building engine.
type Builder struct {
	logger        ectologger.Logger
	sourceRepo    *sourcerecord.Repository
	candidateRepo *candidate.Repository
	linkRepo      *sourcelink.Repository
	batchSize     int
}

func NewBuilder(
	logger ectologger.Logger,
	sourceRepo *sourcerecord.Repository,
	candidateRepo *candidate.Repository,
	linkRepo *sourcelink.Repository,
	batchSize int,
) *Builder {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Builder{
		logger:        logger,
		sourceRepo:    sourceRepo,
		candidateRepo: candidateRepo,
		linkRepo:      linkRepo,
		batchSize:     batchSize,
	}
}

// Run links every source row of the selected entity types. Types are
// processed in dependency order so registration rows can resolve their event
// and yacht candidates. One bad row records a skip or error and the run
// continues; a dry run executes the full path and rolls everything back.
func (b *Builder) Run(ctx context.Context, entityTypes []models.EntityType, dryRun bool) (*models.RunReport, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Builder.Run")
	defer span.End()

	report := models.NewRunReport(uuid.New().String(), "link", dryRun)
	log := b.logger.WithContext(ctx).WithFields(map[string]any{"run_id": report.RunID, "dry_run": dryRun})
	log.Info("Starting link-building run")

	ctxTx, tx, err := b.candidateRepo.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rowSeq := 0
	for _, entityType := range entityTypes {
		if err := ctx.Err(); err != nil {
			report.Warnf("run cancelled before %s rows were processed", entityType)
			break
		}
		if err := b.runEntityType(ctxTx, tx, entityType, report, &rowSeq); err != nil {
			return nil, err
		}
	}

	if dryRun {
		log.Info("Dry run complete; discarding writes")
		return report, tx.Rollback(ctx)
	}
	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{"counters": report.Counters}).Info("Link-building run complete")
	return report, nil
}

func (b *Builder) runEntityType(ctx context.Context, tx database.Tx, entityType models.EntityType, report *models.RunReport, rowSeq *int) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Builder.runEntityType")
	defer span.End()

	afterID := ""
	for {
		records, err := b.sourceRepo.ListBatch(ctx, entityType, afterID, b.batchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		for i := range records {
			record := &records[i]
			*rowSeq++
			name := fmt.Sprintf("link_row_%d", *rowSeq)

			err := database.WithSavepoint(ctx, tx, name, func(ctx context.Context) error {
				return b.processRow(ctx, record, report)
			})
			if err != nil {
				b.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"run_id":         report.RunID,
					"entity_type":    entityType,
					"source_table":   record.SourceTable,
					"source_row_key": record.SourceRowKey,
				}).Error("Failed to link source row")
				report.Add(entityType, func(c *models.LinkCounters) { c.Errors++ })
			}
		}

		afterID = records[len(records)-1].ID
	}
}

// processRow links one source row: fingerprint, create-or-enrich the
// candidate, then write the idempotent source link.
func (b *Builder) processRow(ctx context.Context, record *models.SourceRecord, report *models.RunReport) error {
	report.Add(record.EntityType, func(c *models.LinkCounters) { c.RowsSeen++ })

	attrs := record.Attrs.GetValue()
	if attrs == nil {
		attrs = map[string]any{}
	}

	deps, reason, err := b.resolveDependencies(ctx, record.EntityType, attrs)
	if err != nil {
		return err
	}
	if reason != "" {
		return b.skip(ctx, record, reason, report)
	}

	fp, err := fingerprint.IdentityKey(record.EntityType, attrs, deps)
	if err != nil {
		var missing *fingerprint.MissingIdentityError
		if errors.As(err, &missing) {
			return b.skip(ctx, record, missing.ReasonCode(), report)
		}
		return err
	}

	cand, err := b.candidateRepo.GetByFingerprint(ctx, record.EntityType, fp)
	if err != nil {
		return err
	}

	if cand == nil {
		incoming := copyAttrs(attrs)
		if deps != nil {
			incoming["event_candidate_id"] = deps.EventCandidateID
			incoming["yacht_candidate_id"] = deps.YachtCandidateID
		}
		cand, err = b.candidateRepo.Create(ctx, record.EntityType, fp, incoming)
		if err != nil {
			return err
		}
		report.Add(record.EntityType, func(c *models.LinkCounters) { c.Created++ })
	} else {
		merged, changed := FillNulls(cand.Attrs.GetValue(), attrs)
		if changed {
			if err := b.candidateRepo.UpdateAttrs(ctx, cand.ID, merged); err != nil {
				return err
			}
			report.Add(record.EntityType, func(c *models.LinkCounters) { c.Enriched++ })
		}
	}

	inserted, err := b.linkRepo.Insert(ctx, &models.SourceLink{
		EntityType:   record.EntityType,
		CandidateID:  cand.ID,
		SourceSystem: record.SourceSystem,
		SourceTable:  record.SourceTable,
		SourceRowKey: record.SourceRowKey,
		RowHash:      record.RowHash,
		LinkReason:   strPtr("fingerprint_match"),
	})
	if err != nil {
		return err
	}
	if inserted {
		report.Add(record.EntityType, func(c *models.LinkCounters) { c.Linked++ })
	}
	return nil
}

// resolveDependencies finds the event and yacht candidates a registration
// row depends on. A missing dependency is a skip, not an error, because the
// row may link successfully on a later run once its dependencies exist.
func (b *Builder) resolveDependencies(ctx context.Context, entityType models.EntityType, attrs map[string]any) (*fingerprint.Dependencies, string, error) {
	if entityType != models.EntityTypeRegistration {
		return nil, "", nil
	}

	eventAttrs := map[string]any{
		"name":        attrs["event_name"],
		"season":      attrs["season"],
		"external_id": attrs["event_external_id"],
	}
	eventFP, err := fingerprint.IdentityKey(models.EntityTypeEvent, eventAttrs, nil)
	if err != nil {
		var missing *fingerprint.MissingIdentityError
		if errors.As(err, &missing) {
			return nil, "missing_dependency:event", nil
		}
		return nil, "", err
	}
	event, err := b.candidateRepo.GetByFingerprint(ctx, models.EntityTypeEvent, eventFP)
	if err != nil {
		return nil, "", err
	}
	if event == nil {
		return nil, "missing_dependency:event", nil
	}

	yachtAttrs := map[string]any{
		"name":        attrs["yacht_name"],
		"sail_number": attrs["sail_number"],
	}
	yachtFP, err := fingerprint.IdentityKey(models.EntityTypeYacht, yachtAttrs, nil)
	if err != nil {
		var missing *fingerprint.MissingIdentityError
		if errors.As(err, &missing) {
			return nil, "missing_dependency:yacht", nil
		}
		return nil, "", err
	}
	yacht, err := b.candidateRepo.GetByFingerprint(ctx, models.EntityTypeYacht, yachtFP)
	if err != nil {
		return nil, "", err
	}
	if yacht == nil {
		return nil, "missing_dependency:yacht", nil
	}

	return &fingerprint.Dependencies{
		EventCandidateID: event.ID,
		YachtCandidateID: yacht.ID,
	}, "", nil
}

func (b *Builder) skip(ctx context.Context, record *models.SourceRecord, reasonCode string, report *models.RunReport) error {
	if err := b.sourceRepo.RecordSkip(ctx, record, reasonCode, report.RunID); err != nil {
		return err
	}
	report.Add(record.EntityType, func(c *models.LinkCounters) {
		c.Skipped++
		if c.SkippedReasons == nil {
			c.SkippedReasons = map[string]int{}
		}
		c.SkippedReasons[reasonCode]++
	})
	return nil
}

// FillNulls merges incoming attrs into existing ones without ever
// overwriting a non-null value. Conflicting non-null scalars are recorded as
// hard-block tags under "hard_blocks"; which tags matter is decided by the
// rule document at scoring time.
func FillNulls(existing, incoming map[string]any) (map[string]any, bool) {
	merged := copyAttrs(existing)
	changed := false

	var conflicts []string
	for key, value := range incoming {
		if emptyValue(value) {
			continue
		}
		current, ok := merged[key]
		if !ok || emptyValue(current) {
			merged[key] = value
			changed = true
			continue
		}
		if scalarConflict(current, value) {
			conflicts = append(conflicts, "conflict:"+key)
		}
	}

	if len(conflicts) > 0 {
		tags := existingTags(merged["hard_blocks"])
		added := false
		for _, tag := range conflicts {
			if !tags[tag] {
				tags[tag] = true
				added = true
			}
		}
		if added {
			merged["hard_blocks"] = sortedTags(tags)
			changed = true
		}
	}

	return merged, changed
}

func copyAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func emptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

func scalarConflict(current, incoming any) bool {
	cs, cok := current.(string)
	is, iok := incoming.(string)
	if cok && iok {
		return cs != is
	}
	// Non-string scalars compare directly; structured values never conflict.
	switch current.(type) {
	case float64, int, int64, bool:
		return current != incoming
	}
	return false
}

func existingTags(raw any) map[string]bool {
	tags := map[string]bool{}
	switch list := raw.(type) {
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok {
				tags[s] = true
			}
		}
	case []string:
		for _, s := range list {
			tags[s] = true
		}
	}
	return tags
}

func sortedTags(tags map[string]bool) []any {
	keys := make([]string, 0, len(tags))
	for tag := range tags {
		keys = append(keys, tag)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, tag := range keys {
		out[i] = tag
	}
	return out
}

func strPtr(s string) *string {
	return &s
}
