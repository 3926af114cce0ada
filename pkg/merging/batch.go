package merging

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// RunBatch processes reviewed merge decisions sequentially. A failed item
// is recorded with its reason and the batch moves on; the batch itself
// never aborts.
func (e *Engine) RunBatch(ctx context.Context, decisions []models.BatchDecision) models.BatchResult {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.RunBatch")
	defer span.End()

	result := models.BatchResult{}
	for i, decision := range decisions {
		if decision.Action == models.BatchActionSkip {
			result.Skipped++
			continue
		}

		if err := e.runBatchItem(ctx, decision); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warnf("Batch item %d failed", i)
			result.Failed++
			result.Failures = append(result.Failures, models.BatchFailure{
				Index:  i,
				Reason: err.Error(),
			})
			continue
		}
		result.Succeeded++
	}

	return result
}

func (e *Engine) runBatchItem(ctx context.Context, decision models.BatchDecision) error {
	plan, err := e.BuildPlan(ctx, decision.SurvivorID, decision.RetireeIDs, decision.External, decision.Overrides)
	if err != nil {
		return err
	}
	if _, err := e.Execute(ctx, plan); err != nil {
		return err
	}
	return nil
}
