package merging

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Unmerge restores a retired program: status back to active, merged_into
// cleared. Survivor fields are left exactly as the merge wrote them; only
// the retirement itself is reversed. The survivor's current state is
// irrelevant.
func (e *Engine) Unmerge(ctx context.Context, programID string) (*models.Program, string, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Unmerge")
	defer span.End()

	program, err := e.programs.Get(ctx, programID)
	if err != nil {
		return nil, "", err
	}
	if !program.IsRetired() {
		return nil, "", newValidationError("program %s is not retired", programID)
	}
	formerSurvivorID := *program.MergedInto

	if err := e.programs.Restore(ctx, programID); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to restore program %s", programID)
		return nil, "", err
	}

	program.Status = models.ProgramStatusActive
	program.MergedInto = nil

	entry, err := e.appendAudit(ctx, models.AuditActionUnmerge, formerSurvivorID, []string{programID}, models.AuditChanges{
		Fields: map[string]models.FieldDiff{
			"status":      {Before: models.ProgramStatusInactive, After: models.ProgramStatusActive},
			"merged_into": {Before: formerSurvivorID, After: nil},
		},
		Restored: programID,
	})
	if err != nil {
		return nil, "", err
	}

	if e.emitter != nil {
		e.emitter.ProgramUnmerged(ctx, programID)
	}

	return program, entry.ID, nil
}
