package models

import "fmt"

// LinkCounters accumulate per-entity-type outcomes of a link-building run.
type LinkCounters struct {
	RowsSeen       int            `json:"rows_seen"`
	Created        int            `json:"created"`
	Enriched       int            `json:"enriched"`
	Linked         int            `json:"linked"`
	Skipped        int            `json:"skipped"`
	SkippedReasons map[string]int `json:"skipped_reasons,omitempty"`
	Errors         int            `json:"errors"`
}

// RunReport is the structured result of a batch command. Err() is non-nil
// when any unresolved error occurred, which callers turn into a non-zero
// exit.
type RunReport struct {
	RunID    string                      `json:"run_id"`
	Mode     string                      `json:"mode"`
	DryRun   bool                        `json:"dry_run"`
	Counters map[EntityType]LinkCounters `json:"counters"`
	Warnings []string                    `json:"warnings,omitempty"`
}

func NewRunReport(runID, mode string, dryRun bool) *RunReport {
	return &RunReport{
		RunID:    runID,
		Mode:     mode,
		DryRun:   dryRun,
		Counters: make(map[EntityType]LinkCounters),
	}
}

func (r *RunReport) Add(entityType EntityType, update func(c *LinkCounters)) {
	c := r.Counters[entityType]
	update(&c)
	r.Counters[entityType] = c
}

func (r *RunReport) Warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Err returns a terminal error when the run recorded unresolved errors.
func (r *RunReport) Err() error {
	total := 0
	for _, c := range r.Counters {
		total += c.Errors
	}
	if total > 0 {
		return fmt.Errorf("%s run %s finished with %d unresolved errors", r.Mode, r.RunID, total)
	}
	return nil
}
