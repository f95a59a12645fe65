package models

import (
	"fmt"
	"time"

	"github.com/Ramsey-B/reed/pkg/database"
)

// RunStatus is the lifecycle of a batch run row.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusOK      RunStatus = "ok"
	RunStatusFailed  RunStatus = "failed"
)

// ScoreCounters accumulate per-run scoring outcomes.
type ScoreCounters struct {
	Scored       int `json:"scored"`
	AutoPromote  int `json:"auto_promote"`
	Review       int `json:"review"`
	Hold         int `json:"hold"`
	Reject       int `json:"reject"`
	HardBlocked  int `json:"hard_blocked"`
	TrustCapped  int `json:"trust_capped"`
	NBAsOpened   int `json:"nbas_opened"`
	NBAsClosed   int `json:"nbas_closed"`
	Errors       int `json:"errors"`
	SkippedRows  int `json:"skipped_rows"`
}

// ScoreRun is one row per scoring execution.
type ScoreRun struct {
	ID         string                        `json:"id" db:"id"`
	EntityType EntityType                    `json:"entity_type" db:"entity_type"`
	RuleSetID  string                        `json:"rule_set_id" db:"rule_set_id"`
	Status     RunStatus                     `json:"status" db:"status"`
	Counters   database.JSONB[ScoreCounters] `json:"counters" db:"counters"`
	DryRun     bool                          `json:"dry_run" db:"dry_run"`
	StartedAt  time.Time                     `json:"started_at" db:"started_at"`
	FinishedAt *time.Time                    `json:"finished_at" db:"finished_at"`
}

// Err returns a terminal error when the run recorded unresolved errors.
func (r *ScoreRun) Err() error {
	if c := r.Counters.Data; c.Errors > 0 {
		return fmt.Errorf("score run %s finished with %d unresolved errors", r.ID, c.Errors)
	}
	return nil
}
