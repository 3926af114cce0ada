// Package merging builds, validates, applies, and reverses program merges.
package merging

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ProgramStore is the program persistence surface the merge engine needs
type ProgramStore interface {
	Get(ctx context.Context, id string) (*models.Program, error)
	Update(ctx context.Context, program *models.Program) error
	// Retire marks a program inactive with merged_into pointing at the
	// survivor. No other fields are touched.
	Retire(ctx context.Context, id, survivorID string) error
	// Restore reverses Retire: status active, merged_into cleared.
	Restore(ctx context.Context, id string) error
	// ReassignMergedInto repoints programs merged into `from` at `to`, so
	// retiring a former survivor never creates a merge chain.
	ReassignMergedInto(ctx context.Context, from, to string) error
}

// AuditStore appends to the program audit log
type AuditStore interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
}

// CandidateStore resolves match candidate rows once their pair is merged
type CandidateStore interface {
	MarkMerged(ctx context.Context, programAID, programBID string) error
}

// EventEmitter publishes catalog change events
type EventEmitter interface {
	ProgramMerged(ctx context.Context, survivorID string, retiredIDs []string)
	ProgramUnmerged(ctx context.Context, programID string)
}

// Engine coordinates merge plans, execution, reversal, and batch review.
// The candidate store and event emitter are optional.
type Engine struct {
	programs   ProgramStore
	audits     AuditStore
	candidates CandidateStore
	emitter    EventEmitter
	logger     ectologger.Logger
}

func NewEngine(programs ProgramStore, audits AuditStore, candidates CandidateStore, emitter EventEmitter, logger ectologger.Logger) *Engine {
	return &Engine{
		programs:   programs,
		audits:     audits,
		candidates: candidates,
		emitter:    emitter,
		logger:     logger,
	}
}
