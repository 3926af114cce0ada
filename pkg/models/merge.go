package models

import (
	"time"

	"github.com/lib/pq"
)

// FieldSource tags where a resolved merge value came from
type FieldSource string

const (
	FieldSourceSurvivor FieldSource = "survivor"
	FieldSourceRetiree  FieldSource = "retiree"
	FieldSourceExternal FieldSource = "external"
)

// FieldResolution is the chosen value for one field in a merge plan
type FieldResolution struct {
	Source FieldSource `json:"source"`
	// SourceID is the retiree the value came from. Empty for survivor and
	// external sources.
	SourceID string `json:"source_id,omitempty"`
	Value    any    `json:"value"`
}

// MergePlan is a resolved, not-yet-applied merge. The retiree order is the
// precedence order used for field resolution.
type MergePlan struct {
	SurvivorID string                     `json:"survivor_id"`
	RetireeIDs []string                   `json:"retiree_ids"`
	Fields     map[string]FieldResolution `json:"fields"`
	Categories []string                   `json:"categories"`
}

// MergeOverride pins a field to an explicit source or value when building
// a plan
type MergeOverride struct {
	Source FieldSource `json:"source" validate:"required,oneof=survivor retiree external"`
	// SourceID selects the retiree when Source is retiree
	SourceID string `json:"source_id,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// BuildPlanRequest is the request for building a merge plan
type BuildPlanRequest struct {
	SurvivorID string                   `json:"survivor_id" validate:"required,uuid"`
	RetireeIDs []string                 `json:"retiree_ids" validate:"required,min=1,dive,uuid"`
	External   map[string]any           `json:"external,omitempty"`
	Overrides  map[string]MergeOverride `json:"overrides,omitempty"`
}

// ExecuteMergeRequest executes a previously built (or inline) plan
type ExecuteMergeRequest struct {
	Plan MergePlan `json:"plan" validate:"required"`
}

// RetireeFailure reports one retiree that could not be retired
type RetireeFailure struct {
	RetireeID string `json:"retiree_id"`
	Reason    string `json:"reason"`
}

// ExecuteResult is the outcome of applying a merge plan
type ExecuteResult struct {
	SurvivorID     string           `json:"survivor_id"`
	AppliedFields  []string         `json:"applied_fields"`
	RetiredIDs     []string         `json:"retired_ids"`
	FailedRetirees []RetireeFailure `json:"failed_retirees,omitempty"`
	AuditEntryID   string           `json:"audit_entry_id,omitempty"`
}

// AuditAction is the kind of catalog mutation being recorded
type AuditAction string

const (
	AuditActionMerge   AuditAction = "merge"
	AuditActionUnmerge AuditAction = "unmerge"
)

// FieldDiff records one field's value before and after a merge
type FieldDiff struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// AuditChanges is the payload stored in an audit entry's changes column
type AuditChanges struct {
	Fields   map[string]FieldDiff `json:"fields,omitempty"`
	Retired  []string             `json:"retired,omitempty"`
	Restored string               `json:"restored,omitempty"`
}

// AuditEntry is one append-only row in the program audit log
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     AuditAction    `json:"action"`
	ActorID    string         `json:"actor_id"`
	SurvivorID string         `json:"survivor_id"`
	ProgramIDs pq.StringArray `json:"program_ids"`
	Changes    AuditChanges   `json:"changes"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AuditListResponse is the response for listing audit entries
type AuditListResponse struct {
	Items      []AuditEntry `json:"items"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}

// BatchAction is what to do with one batch review item
type BatchAction string

const (
	BatchActionMerge BatchAction = "merge"
	BatchActionSkip  BatchAction = "skip"
)

// BatchDecision is one reviewed item in a batch merge run
type BatchDecision struct {
	Action     BatchAction              `json:"action" validate:"required,oneof=merge skip"`
	SurvivorID string                   `json:"survivor_id,omitempty"`
	RetireeIDs []string                 `json:"retiree_ids,omitempty"`
	External   map[string]any           `json:"external,omitempty"`
	Overrides  map[string]MergeOverride `json:"overrides,omitempty"`
	// CandidateID links the decision back to a match candidate row
	CandidateID string `json:"candidate_id,omitempty"`
}

// BatchFailure reports one batch item that failed
type BatchFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult summarizes a batch merge run. The run never aborts early, so
// Succeeded + Skipped + Failed always equals the number of decisions.
type BatchResult struct {
	Succeeded int            `json:"succeeded"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Failures  []BatchFailure `json:"failures,omitempty"`
}

// RunBatchRequest is the request for a batch merge run
type RunBatchRequest struct {
	Decisions []BatchDecision `json:"decisions" validate:"required,min=1,dive"`
}

// UnmergeResponse is the result of reversing a merge
type UnmergeResponse struct {
	Program      Program `json:"program"`
	AuditEntryID string  `json:"audit_entry_id,omitempty"`
}
