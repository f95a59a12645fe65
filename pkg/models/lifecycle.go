package models

import (
	"time"

	"github.com/Ramsey-B/reed/pkg/database"
)

// LifecycleActionType enumerates the audited canonical mutations.
type LifecycleActionType string

const (
	LifecycleActionPromote LifecycleActionType = "promote"
	LifecycleActionMerge   LifecycleActionType = "merge"
	LifecycleActionSplit   LifecycleActionType = "split"
	LifecycleActionDemote  LifecycleActionType = "demote"
	LifecycleActionUnlink  LifecycleActionType = "unlink"
	LifecycleActionManual  LifecycleActionType = "manual"
)

// ItemOutcome is the per-item result of a lifecycle batch.
type ItemOutcome string

const (
	ItemOutcomeApplied ItemOutcome = "applied"
	ItemOutcomeSkipped ItemOutcome = "skipped"
	ItemOutcomeError   ItemOutcome = "error"
)

// LifecycleAction is the audit record for one merge/split/demote/unlink or
// manual edit. ActionFingerprint makes replays of identical input no-ops.
type LifecycleAction struct {
	ID                string                         `json:"id" db:"id"`
	ActionType        LifecycleActionType            `json:"action_type" db:"action_type"`
	EntityType        EntityType                     `json:"entity_type" db:"entity_type"`
	ActionFingerprint string                         `json:"action_fingerprint" db:"action_fingerprint"`
	Actor             string                         `json:"actor" db:"actor"`
	Payload           database.JSONB[map[string]any] `json:"payload" db:"payload"`
	Status            RunStatus                      `json:"status" db:"status"`
	DryRun            bool                           `json:"dry_run" db:"dry_run"`
	CreatedAt         time.Time                      `json:"created_at" db:"created_at"`
	FinishedAt        *time.Time                     `json:"finished_at" db:"finished_at"`
}

// LifecycleActionItem records the outcome of a single item within an action.
type LifecycleActionItem struct {
	ID       string                         `json:"id" db:"id"`
	ActionID string                         `json:"action_id" db:"action_id"`
	ItemKey  string                         `json:"item_key" db:"item_key"`
	Outcome  ItemOutcome                    `json:"outcome" db:"outcome"`
	Detail   *string                        `json:"detail" db:"detail"`
	Before   database.JSONB[map[string]any] `json:"before" db:"before"`
	After    database.JSONB[map[string]any] `json:"after" db:"after"`
	CreatedAt time.Time                     `json:"created_at" db:"created_at"`
}
