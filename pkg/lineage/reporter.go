// Package lineage assembles coverage reports proving that every trusted
// record can be traced back to its sources, and renders the purge-readiness
// verdict.
package lineage

import (
	"context"
	"fmt"
	"math"

	"github.com/Gobusters/ectologger"

	lineagerepo "github.com/Ramsey-B/reed/internal/repositories/lineage"
	"github.com/Ramsey-B/reed/internal/repositories/sourcerecord"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/tracing"
)

// TypeReport is one entity type's coverage measurement and verdict.
type TypeReport struct {
	EntityType     models.EntityType     `json:"entity_type"`
	Metrics        models.LineageMetrics `json:"metrics"`
	BlockingIssues []string              `json:"blocking_issues"`
	Passed         bool                  `json:"passed"`
	SnapshotID     string                `json:"snapshot_id,omitempty"`
}

// Report is the full purge-readiness report. Passed is the conjunction of
// every type's verdict.
type Report struct {
	Types  []TypeReport `json:"types"`
	Passed bool         `json:"passed"`
}

// Reporter runs the lineage coverage queries and applies thresholds.
type Reporter struct {
	logger      ectologger.Logger
	lineageRepo *lineagerepo.Repository
	sourceRepo  *sourcerecord.Repository
	thresholds  models.LineageThresholds
}

func NewReporter(
	logger ectologger.Logger,
	lineageRepo *lineagerepo.Repository,
	sourceRepo *sourcerecord.Repository,
	thresholds models.LineageThresholds,
) *Reporter {
	return &Reporter{
		logger:      logger,
		lineageRepo: lineageRepo,
		sourceRepo:  sourceRepo,
		thresholds:  thresholds,
	}
}

// Report measures coverage for the selected entity types and, when snapshot
// is set, persists one snapshot row per type.
func (r *Reporter) Report(ctx context.Context, entityTypes []models.EntityType, snapshot bool) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Reporter.Report")
	defer span.End()

	report := &Report{Passed: true}
	for _, entityType := range entityTypes {
		typeReport, err := r.reportType(ctx, entityType, snapshot)
		if err != nil {
			return nil, err
		}
		if !typeReport.Passed {
			report.Passed = false
		}
		report.Types = append(report.Types, *typeReport)
	}
	return report, nil
}

func (r *Reporter) reportType(ctx context.Context, entityType models.EntityType, snapshot bool) (*TypeReport, error) {
	ctx, span := tracing.StartSpan(ctx, "lineage.Reporter.reportType")
	defer span.End()

	var m models.LineageMetrics
	var err error

	m.CandidatesTotal, m.CandidatesWithSourceLink, m.CandidatesPromoted, err = r.lineageRepo.CandidateCounts(ctx, entityType)
	if err != nil {
		return nil, err
	}
	m.PctCandidateWithSource = pct(m.CandidatesWithSourceLink, m.CandidatesTotal)
	m.PctCandidateToCanonical = pct(m.CandidatesPromoted, m.CandidatesTotal)

	m.UnresolvedByState, err = r.lineageRepo.UnresolvedByState(ctx, entityType)
	if err != nil {
		return nil, err
	}
	m.SourceLinksTotal, err = r.lineageRepo.SourceLinkCount(ctx, entityType)
	if err != nil {
		return nil, err
	}
	m.UnlinkedSourceRows, err = r.sourceRepo.CountUnlinked(ctx, entityType)
	if err != nil {
		return nil, err
	}
	m.PromotedMissingLink, err = r.lineageRepo.PromotedMissingLink(ctx, entityType)
	if err != nil {
		return nil, err
	}
	m.CanonicalMissingProvenance, err = r.lineageRepo.CanonicalMissingProvenance(ctx, entityType)
	if err != nil {
		return nil, err
	}
	if entityType == models.EntityTypeRegistration {
		m.UnresolvedCriticalDeps, err = r.lineageRepo.UnresolvedCriticalDeps(ctx)
		if err != nil {
			return nil, err
		}
	}

	typeReport := &TypeReport{
		EntityType:     entityType,
		Metrics:        m,
		BlockingIssues: blockingIssues(m),
		Passed:         r.verdict(m),
	}

	if snapshot {
		row, err := r.lineageRepo.InsertSnapshot(ctx, entityType, m, typeReport.Passed)
		if err != nil {
			return nil, err
		}
		typeReport.SnapshotID = row.ID
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": entityType,
		"passed":      typeReport.Passed,
		"issues":      len(typeReport.BlockingIssues),
	}).Info("Measured lineage coverage")
	return typeReport, nil
}

// verdict applies the thresholds to a measurement. An empty type (no
// candidates yet) passes vacuously.
func (r *Reporter) verdict(m models.LineageMetrics) bool {
	if m.PctCandidateWithSource != nil && *m.PctCandidateWithSource < r.thresholds.MinPctCandidateWithSource {
		return false
	}
	if m.PctCandidateToCanonical != nil && *m.PctCandidateToCanonical < r.thresholds.MinPctCandidateToCanonical {
		return false
	}
	if !r.thresholds.AllowBlockingIssues && len(blockingIssues(m)) > 0 {
		return false
	}
	return true
}

func blockingIssues(m models.LineageMetrics) []string {
	var issues []string
	if m.UnlinkedSourceRows > 0 {
		issues = append(issues, fmt.Sprintf("unlinked_source_rows:%d", m.UnlinkedSourceRows))
	}
	if m.PromotedMissingLink > 0 {
		issues = append(issues, fmt.Sprintf("promoted_missing_link:%d", m.PromotedMissingLink))
	}
	if m.CanonicalMissingProvenance > 0 {
		issues = append(issues, fmt.Sprintf("canonical_missing_provenance:%d", m.CanonicalMissingProvenance))
	}
	if m.UnresolvedCriticalDeps > 0 {
		issues = append(issues, fmt.Sprintf("unresolved_critical_deps:%d", m.UnresolvedCriticalDeps))
	}
	return issues
}

func pct(part, total int) *float64 {
	if total == 0 {
		return nil
	}
	v := math.Round(float64(part)/float64(total)*10000) / 100
	return &v
}
