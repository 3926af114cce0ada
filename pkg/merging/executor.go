package merging

import (
	"context"
	"time"

	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Execute applies a merge plan. Participants are re-validated first since
// the plan may be stale. Survivor fields that already hold the resolved
// value are skipped. Retiree writes are independent: a failed retiree is
// reported in the result while the rest of the merge stands.
func (e *Engine) Execute(ctx context.Context, plan *models.MergePlan) (*models.ExecuteResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Execute")
	defer span.End()

	survivor, _, err := e.loadParticipants(ctx, plan.SurvivorID, plan.RetireeIDs)
	if err != nil {
		return nil, err
	}

	result := &models.ExecuteResult{
		SurvivorID:    plan.SurvivorID,
		AppliedFields: make([]string, 0),
		RetiredIDs:    make([]string, 0),
	}
	diffs := make(map[string]models.FieldDiff)

	for _, field := range mergeableFields {
		resolution, ok := plan.Fields[field]
		if !ok {
			continue
		}
		before := fieldValue(survivor, field)
		if equalValues(before, resolution.Value) {
			continue
		}
		setFieldValue(survivor, field, resolution.Value)
		diffs[field] = models.FieldDiff{Before: before, After: resolution.Value}
		result.AppliedFields = append(result.AppliedFields, field)
	}

	if len(plan.Categories) > 0 && !equalStringSlices(survivor.Categories, plan.Categories) {
		diffs["categories"] = models.FieldDiff{Before: []string(survivor.Categories), After: plan.Categories}
		survivor.Categories = plan.Categories
		result.AppliedFields = append(result.AppliedFields, "categories")
	}

	if len(result.AppliedFields) > 0 {
		if err := e.programs.Update(ctx, survivor); err != nil {
			e.logger.WithContext(ctx).WithError(err).Error("Failed to update survivor during merge")
			return nil, err
		}
	}

	for _, retireeID := range plan.RetireeIDs {
		if err := e.programs.Retire(ctx, retireeID, survivor.ID); err != nil {
			e.logger.WithContext(ctx).WithError(err).Errorf("Failed to retire program %s", retireeID)
			result.FailedRetirees = append(result.FailedRetirees, models.RetireeFailure{
				RetireeID: retireeID,
				Reason:    err.Error(),
			})
			continue
		}
		// Repoint anything previously merged into this retiree so the
		// back-references stay one hop deep
		if err := e.programs.ReassignMergedInto(ctx, retireeID, survivor.ID); err != nil {
			e.logger.WithContext(ctx).WithError(err).Errorf("Failed to repoint merges from %s", retireeID)
			result.FailedRetirees = append(result.FailedRetirees, models.RetireeFailure{
				RetireeID: retireeID,
				Reason:    "retired, but repointing prior merges failed: " + err.Error(),
			})
			continue
		}
		result.RetiredIDs = append(result.RetiredIDs, retireeID)
	}

	if len(result.AppliedFields) > 0 || len(result.RetiredIDs) > 0 {
		entry, err := e.appendAudit(ctx, models.AuditActionMerge, survivor.ID, result.RetiredIDs, models.AuditChanges{
			Fields:  diffs,
			Retired: result.RetiredIDs,
		})
		if err != nil {
			// the catalog writes already landed; the result tells the
			// caller what succeeded before the audit append failed
			return result, err
		}
		result.AuditEntryID = entry.ID
	}

	if len(result.RetiredIDs) > 0 {
		if e.emitter != nil {
			e.emitter.ProgramMerged(ctx, survivor.ID, result.RetiredIDs)
		}
		if e.candidates != nil {
			for _, retiredID := range result.RetiredIDs {
				if err := e.candidates.MarkMerged(ctx, survivor.ID, retiredID); err != nil {
					e.logger.WithContext(ctx).WithError(err).Warnf("Failed to resolve match candidates for %s", retiredID)
				}
			}
		}
	}

	if len(result.FailedRetirees) > 0 {
		return result, &PartialExecutionError{Result: result}
	}
	return result, nil
}

func (e *Engine) appendAudit(ctx context.Context, action models.AuditAction, survivorID string, affectedIDs []string, changes models.AuditChanges) (*models.AuditEntry, error) {
	programIDs := append([]string{survivorID}, affectedIDs...)
	entry := &models.AuditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		ActorID:    appctx.GetActorID(ctx),
		SurvivorID: survivorID,
		ProgramIDs: programIDs,
		Changes:    changes,
		CreatedAt:  time.Now().UTC(),
	}

	if err := e.audits.Append(ctx, entry); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to append audit entry")
		return nil, err
	}
	return entry, nil
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
