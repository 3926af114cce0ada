package models

import (
	"time"

	"github.com/lib/pq"
)

// Reason codes attached to a candidate pair, in signal order
const (
	ReasonNameSimilarity  = "name_similarity"
	ReasonSameProvider    = "same_provider"
	ReasonCategoryOverlap = "category_overlap"
	ReasonNameContainment = "name_containment"
	ReasonCommonPrefix    = "common_prefix"
	// ReasonMultiLocation flags pairs whose addresses diverge. It is a
	// caveat for the reviewer, never a disqualifier.
	ReasonMultiLocation = "possible_multi_location"
)

// CandidatePair is one scored pairing from a duplicate scan. Pairs are
// unordered: (A, B) and (B, A) are the same pair.
type CandidatePair struct {
	ProgramAID string   `json:"program_a_id"`
	ProgramBID string   `json:"program_b_id"`
	Score      float64  `json:"score"`
	Reasons    []string `json:"reasons"`
}

// CandidateStatus is the review state of a persisted match candidate
type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "pending"
	CandidateStatusApproved CandidateStatus = "approved"
	CandidateStatusRejected CandidateStatus = "rejected"
	CandidateStatusDeferred CandidateStatus = "deferred"
	CandidateStatusMerged   CandidateStatus = "merged"
)

// MatchCandidate is a persisted candidate pair awaiting operator review
type MatchCandidate struct {
	ID         string          `json:"id" db:"id"`
	ProgramAID string          `json:"program_a_id" db:"program_a_id"`
	ProgramBID string          `json:"program_b_id" db:"program_b_id"`
	Score      float64         `json:"score" db:"score"`
	Reasons    pq.StringArray  `json:"reasons" db:"reasons"`
	Status     CandidateStatus `json:"status" db:"status"`
	ReviewedBy *string         `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt *time.Time      `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// ReviewCandidateRequest updates a candidate's review status
type ReviewCandidateRequest struct {
	Status CandidateStatus `json:"status" validate:"required,oneof=approved rejected deferred"`
}

// MatchCandidateListResponse is the response for listing match candidates
type MatchCandidateListResponse struct {
	Items      []MatchCandidate `json:"items"`
	TotalCount int              `json:"total_count"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
}

// ScanRequest triggers a duplicate scan
type ScanRequest struct {
	// Threshold overrides the configured scan threshold when set
	Threshold *float64 `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	// Persist stores results in the match candidate review table
	Persist bool `json:"persist"`
}

// ScanResponse is the result of a duplicate scan
type ScanResponse struct {
	Threshold  float64         `json:"threshold"`
	Scanned    int             `json:"scanned"`
	Candidates []CandidatePair `json:"candidates"`
}
