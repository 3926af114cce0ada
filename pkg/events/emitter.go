// Package events emits catalog lifecycle events.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes catalog change events. Event failures are logged and
// swallowed: the catalog write has already happened and events are
// advisory downstream signals.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// ProgramMerged emits a program.merged event keyed by the survivor
func (e *Emitter) ProgramMerged(ctx context.Context, survivorID string, retiredIDs []string) {
	if e.producer == nil {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.ProgramMerged")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"survivor_id":    survivorID,
		"retired_ids":    retiredIDs,
		"actor_id":       appctx.GetActorID(ctx),
	})

	event := &kafka.ProgramEvent{
		EventType: "program.merged",
		ProgramID: survivorID,
		Data:      data,
	}

	if err := e.producer.PublishProgramEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit program.merged event")
	}
}

// ProgramUnmerged emits a program.unmerged event for a restored program
func (e *Emitter) ProgramUnmerged(ctx context.Context, programID string) {
	if e.producer == nil {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.ProgramUnmerged")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"program_id":     programID,
		"actor_id":       appctx.GetActorID(ctx),
	})

	event := &kafka.ProgramEvent{
		EventType: "program.unmerged",
		ProgramID: programID,
		Data:      data,
	}

	if err := e.producer.PublishProgramEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit program.unmerged event")
	}
}

// CandidatesFound emits one candidate.found event per stored scan result
func (e *Emitter) CandidatesFound(ctx context.Context, pairs []models.CandidatePair) {
	if e.producer == nil || len(pairs) == 0 {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.CandidatesFound")
	defer span.End()

	events := make([]*kafka.ProgramEvent, 0, len(pairs))
	for _, pair := range pairs {
		data, _ := json.Marshal(map[string]any{
			"schema_version": SchemaVersion,
			"program_a_id":   pair.ProgramAID,
			"program_b_id":   pair.ProgramBID,
			"score":          pair.Score,
			"reasons":        pair.Reasons,
		})
		events = append(events, &kafka.ProgramEvent{
			EventType: "candidate.found",
			ProgramID: pair.ProgramAID,
			Data:      data,
		})
	}

	if err := e.producer.PublishProgramEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit candidate.found events")
	}
}
