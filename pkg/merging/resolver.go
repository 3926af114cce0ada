package merging

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// BuildPlan resolves a merge into a per-field plan without writing
// anything. The survivor's non-empty values win by default; empty survivor
// fields fall back to the retirees in the order given, then to external
// values. Overrides pin a field explicitly and are the only way a
// non-empty survivor value gets replaced.
func (e *Engine) BuildPlan(ctx context.Context, survivorID string, retireeIDs []string, external map[string]any, overrides map[string]models.MergeOverride) (*models.MergePlan, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.BuildPlan")
	defer span.End()

	survivor, retirees, err := e.loadParticipants(ctx, survivorID, retireeIDs)
	if err != nil {
		return nil, err
	}

	plan := &models.MergePlan{
		SurvivorID: survivorID,
		RetireeIDs: retireeIDs,
		Fields:     make(map[string]models.FieldResolution),
	}

	for _, field := range mergeableFields {
		if override, ok := overrides[field]; ok {
			resolution, err := e.resolveOverride(field, override, survivor, retirees)
			if err != nil {
				return nil, err
			}
			plan.Fields[field] = resolution
			continue
		}

		if value := fieldValue(survivor, field); !isEmpty(value) {
			plan.Fields[field] = models.FieldResolution{Source: models.FieldSourceSurvivor, Value: value}
			continue
		}

		resolved := false
		for _, retiree := range retirees {
			if value := fieldValue(retiree, field); !isEmpty(value) {
				plan.Fields[field] = models.FieldResolution{
					Source:   models.FieldSourceRetiree,
					SourceID: retiree.ID,
					Value:    value,
				}
				resolved = true
				break
			}
		}
		if resolved {
			continue
		}

		if value, ok := external[field]; ok && !isEmpty(value) {
			plan.Fields[field] = models.FieldResolution{Source: models.FieldSourceExternal, Value: value}
		}
	}

	// Categories are never resolved to a single source
	categorySets := [][]string{survivor.Categories}
	for _, retiree := range retirees {
		categorySets = append(categorySets, retiree.Categories)
	}
	if extCategories, ok := external["categories"]; ok {
		categorySets = append(categorySets, toStringSlice(extCategories))
	}
	plan.Categories = unionCategories(categorySets...)

	return plan, nil
}

// loadParticipants fetches and validates every program involved in a merge
func (e *Engine) loadParticipants(ctx context.Context, survivorID string, retireeIDs []string) (*models.Program, []*models.Program, error) {
	if len(retireeIDs) == 0 {
		return nil, nil, newValidationError("at least one retiree is required")
	}

	seen := make(map[string]bool, len(retireeIDs))
	for _, id := range retireeIDs {
		if id == survivorID {
			return nil, nil, newValidationError("survivor %s cannot also be a retiree", survivorID)
		}
		if seen[id] {
			return nil, nil, newValidationError("retiree %s listed more than once", id)
		}
		seen[id] = true
	}

	survivor, err := e.programs.Get(ctx, survivorID)
	if err != nil {
		return nil, nil, err
	}
	if survivor.IsRetired() {
		return nil, nil, newValidationError("survivor %s has been merged into %s", survivorID, *survivor.MergedInto)
	}

	retirees := make([]*models.Program, 0, len(retireeIDs))
	for _, id := range retireeIDs {
		retiree, err := e.programs.Get(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return nil, nil, newValidationError("retiree %s does not exist", id)
			}
			return nil, nil, err
		}
		if retiree.IsRetired() {
			return nil, nil, newValidationError("retiree %s is already merged into %s", id, *retiree.MergedInto)
		}
		retirees = append(retirees, retiree)
	}

	return survivor, retirees, nil
}

func (e *Engine) resolveOverride(field string, override models.MergeOverride, survivor *models.Program, retirees []*models.Program) (models.FieldResolution, error) {
	switch override.Source {
	case models.FieldSourceSurvivor:
		return models.FieldResolution{Source: models.FieldSourceSurvivor, Value: fieldValue(survivor, field)}, nil
	case models.FieldSourceRetiree:
		for _, retiree := range retirees {
			if retiree.ID == override.SourceID {
				return models.FieldResolution{
					Source:   models.FieldSourceRetiree,
					SourceID: retiree.ID,
					Value:    fieldValue(retiree, field),
				}, nil
			}
		}
		return models.FieldResolution{}, newValidationError("override for %s references %s, which is not a retiree in this merge", field, override.SourceID)
	case models.FieldSourceExternal:
		return models.FieldResolution{Source: models.FieldSourceExternal, Value: override.Value}, nil
	}
	return models.FieldResolution{}, newValidationError("override for %s has unknown source %q", field, override.Source)
}

func toStringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
