package merging

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeProgramStore struct {
	programs   map[string]*models.Program
	retireErr  map[string]error
	updateErr  error
	reassigned [][2]string
}

func newFakeProgramStore(programs ...*models.Program) *fakeProgramStore {
	store := &fakeProgramStore{
		programs:  make(map[string]*models.Program),
		retireErr: make(map[string]error),
	}
	for _, p := range programs {
		store.programs[p.ID] = p
	}
	return store
}

func (f *fakeProgramStore) Get(ctx context.Context, id string) (*models.Program, error) {
	p, ok := f.programs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *p
	clone.Categories = append([]string(nil), p.Categories...)
	if p.Location != nil {
		loc := *p.Location
		clone.Location = &loc
	}
	return &clone, nil
}

func (f *fakeProgramStore) Update(ctx context.Context, program *models.Program) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.programs[program.ID] = program
	return nil
}

func (f *fakeProgramStore) Retire(ctx context.Context, id, survivorID string) error {
	if err := f.retireErr[id]; err != nil {
		return err
	}
	p, ok := f.programs[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = models.ProgramStatusInactive
	mergedInto := survivorID
	p.MergedInto = &mergedInto
	return nil
}

func (f *fakeProgramStore) Restore(ctx context.Context, id string) error {
	p, ok := f.programs[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = models.ProgramStatusActive
	p.MergedInto = nil
	return nil
}

func (f *fakeProgramStore) ReassignMergedInto(ctx context.Context, from, to string) error {
	f.reassigned = append(f.reassigned, [2]string{from, to})
	for _, p := range f.programs {
		if p.MergedInto != nil && *p.MergedInto == from {
			target := to
			p.MergedInto = &target
		}
	}
	return nil
}

type fakeAuditStore struct {
	entries []*models.AuditEntry
	err     error
}

func (f *fakeAuditStore) Append(ctx context.Context, entry *models.AuditEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

type fakeCandidateStore struct {
	merged [][2]string
}

func (f *fakeCandidateStore) MarkMerged(ctx context.Context, programAID, programBID string) error {
	f.merged = append(f.merged, [2]string{programAID, programBID})
	return nil
}

type fakeEmitter struct {
	merged   []string
	unmerged []string
}

func (f *fakeEmitter) ProgramMerged(ctx context.Context, survivorID string, retiredIDs []string) {
	f.merged = append(f.merged, survivorID)
}

func (f *fakeEmitter) ProgramUnmerged(ctx context.Context, programID string) {
	f.unmerged = append(f.unmerged, programID)
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestEngine(store *fakeProgramStore) (*Engine, *fakeAuditStore, *fakeCandidateStore, *fakeEmitter) {
	audits := &fakeAuditStore{}
	candidates := &fakeCandidateStore{}
	emitter := &fakeEmitter{}
	return NewEngine(store, audits, candidates, emitter, noopLogger()), audits, candidates, emitter
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }

func testProgram(id string) *models.Program {
	return &models.Program{
		ID:     id,
		Status: models.ProgramStatusActive,
	}
}

func TestBuildPlan(t *testing.T) {
	ctx := context.Background()

	t.Run("SurvivorNonEmptyWins", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		survivor.Description = "Weekly chess for kids"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"
		retiree.Description = "A different description"

		engine, _, _, _ := newTestEngine(newFakeProgramStore(survivor, retiree))
		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)
		require.NoError(t, err)

		assert.Equal(t, models.FieldSourceSurvivor, plan.Fields["description"].Source)
		assert.Equal(t, "Weekly chess for kids", plan.Fields["description"].Value)
	})

	t.Run("EmptySurvivorFallsToRetireesInOrder", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		r1 := testProgram("r1")
		r1.Name = "Chess Club SF"
		r2 := testProgram("r2")
		r2.Name = "SF Chess"
		r2.ContactEmail = "chess@example.com"
		r2.Website = "https://r2.example.com"
		r1.Website = "https://r1.example.com"

		engine, _, _, _ := newTestEngine(newFakeProgramStore(survivor, r1, r2))
		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1", "r2"}, nil, nil)
		require.NoError(t, err)

		website := plan.Fields["website"]
		assert.Equal(t, models.FieldSourceRetiree, website.Source)
		assert.Equal(t, "r1", website.SourceID)
		assert.Equal(t, "https://r1.example.com", website.Value)

		email := plan.Fields["contact_email"]
		assert.Equal(t, "r2", email.SourceID)
		assert.Equal(t, "chess@example.com", email.Value)
	})

	t.Run("ExternalIsLastResort", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"

		engine, _, _, _ := newTestEngine(newFakeProgramStore(survivor, retiree))
		external := map[string]any{"contact_phone": "415-555-0100"}
		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, external, nil)
		require.NoError(t, err)

		phone := plan.Fields["contact_phone"]
		assert.Equal(t, models.FieldSourceExternal, phone.Source)
		assert.Equal(t, "415-555-0100", phone.Value)
	})

	t.Run("AllEmptyFieldLeftUnresolved", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"

		engine, _, _, _ := newTestEngine(newFakeProgramStore(survivor, retiree))
		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)
		require.NoError(t, err)

		_, ok := plan.Fields["contact_phone"]
		assert.False(t, ok)
	})

	t.Run("CategoriesAlwaysUnion", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		survivor.Categories = []string{"Chess", "Games"}
		r1 := testProgram("r1")
		r1.Name = "Chess Club SF"
		r1.Categories = []string{"chess", "Camps"}

		engine, _, _, _ := newTestEngine(newFakeProgramStore(survivor, r1))
		external := map[string]any{"categories": []string{"STEM"}}
		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, external, nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"Chess", "Games", "Camps", "STEM"}, plan.Categories)
	})

	t.Run("RatingFallsToRetireeWhenSurvivorUnrated", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"
		retiree.Rating = floatPtr(4.8)
		retiree.RatingCount = intPtr(120)

		engine, _, _, _ := newTestEngine(newFakeProgramStore(survivor, retiree))
		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)
		require.NoError(t, err)

		rating := plan.Fields["rating"]
		assert.Equal(t, models.FieldSourceRetiree, rating.Source)
		assert.Equal(t, "r1", rating.SourceID)
		assert.Equal(t, 4.8, rating.Value)

		count := plan.Fields["rating_count"]
		assert.Equal(t, "r1", count.SourceID)
		assert.Equal(t, 120, count.Value)
	})

	t.Run("CoordinatesFollowRetireeLocation", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"
		retiree.Location = &models.ProgramLocation{
			ProgramID: "r1",
			Address:   "123 Main St",
			Latitude:  floatPtr(37.7749),
			Longitude: floatPtr(-122.4194),
		}

		engine, _, _, _ := newTestEngine(newFakeProgramStore(survivor, retiree))
		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)
		require.NoError(t, err)

		assert.Equal(t, "123 Main St", plan.Fields["address"].Value)
		assert.Equal(t, 37.7749, plan.Fields["latitude"].Value)
		assert.Equal(t, -122.4194, plan.Fields["longitude"].Value)
	})

	t.Run("RetireeOverride", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		survivor.Description = "Survivor description"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"
		retiree.Description = "Retiree description"

		engine, _, _, _ := newTestEngine(newFakeProgramStore(survivor, retiree))
		overrides := map[string]models.MergeOverride{
			"description": {Source: models.FieldSourceRetiree, SourceID: "r1"},
		}
		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, overrides)
		require.NoError(t, err)

		assert.Equal(t, "Retiree description", plan.Fields["description"].Value)
	})

	t.Run("OverrideUnknownRetireeRejected", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"

		engine, _, _, _ := newTestEngine(newFakeProgramStore(survivor, retiree))
		overrides := map[string]models.MergeOverride{
			"description": {Source: models.FieldSourceRetiree, SourceID: "r9"},
		}
		_, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, overrides)

		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("SurvivorAmongRetireesRejected", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(newFakeProgramStore(testProgram("s1")))
		_, err := engine.BuildPlan(ctx, "s1", []string{"s1"}, nil, nil)

		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("DuplicateRetireesRejected", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(newFakeProgramStore(testProgram("s1"), testProgram("r1")))
		_, err := engine.BuildPlan(ctx, "s1", []string{"r1", "r1"}, nil, nil)

		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("UnknownRetireeRejected", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(newFakeProgramStore(testProgram("s1")))
		_, err := engine.BuildPlan(ctx, "s1", []string{"ghost"}, nil, nil)

		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("AlreadyMergedRetireeRejected", func(t *testing.T) {
		retiree := testProgram("r1")
		retiree.Status = models.ProgramStatusInactive
		retiree.MergedInto = strPtr("elsewhere")

		engine, _, _, _ := newTestEngine(newFakeProgramStore(testProgram("s1"), retiree, testProgram("elsewhere")))
		_, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)

		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("RetiredSurvivorRejected", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Status = models.ProgramStatusInactive
		survivor.MergedInto = strPtr("other")

		engine, _, _, _ := newTestEngine(newFakeProgramStore(survivor, testProgram("r1")))
		_, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)

		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	})
}

func TestExecute(t *testing.T) {
	ctx := appctx.SetActorID(context.Background(), "reviewer-7")

	t.Run("AppliesFieldsAndRetires", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"
		retiree.ContactEmail = "chess@example.com"

		store := newFakeProgramStore(survivor, retiree)
		engine, audits, _, emitter := newTestEngine(store)

		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)
		require.NoError(t, err)
		result, err := engine.Execute(ctx, plan)
		require.NoError(t, err)

		assert.Contains(t, result.AppliedFields, "contact_email")
		assert.Equal(t, []string{"r1"}, result.RetiredIDs)
		assert.Empty(t, result.FailedRetirees)

		updated := store.programs["s1"]
		assert.Equal(t, "chess@example.com", updated.ContactEmail)

		retired := store.programs["r1"]
		assert.Equal(t, models.ProgramStatusInactive, retired.Status)
		require.NotNil(t, retired.MergedInto)
		assert.Equal(t, "s1", *retired.MergedInto)

		require.Len(t, audits.entries, 1)
		assert.Equal(t, models.AuditActionMerge, audits.entries[0].Action)
		assert.Equal(t, "reviewer-7", audits.entries[0].ActorID)
		assert.Equal(t, result.AuditEntryID, audits.entries[0].ID)

		assert.Equal(t, []string{"s1"}, emitter.merged)
	})

	t.Run("AppliesRatingAndCoordinates", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"
		retiree.Rating = floatPtr(4.8)
		retiree.RatingCount = intPtr(120)
		retiree.Location = &models.ProgramLocation{
			ProgramID: "r1",
			Address:   "123 Main St",
			Latitude:  floatPtr(37.7749),
			Longitude: floatPtr(-122.4194),
		}

		store := newFakeProgramStore(survivor, retiree)
		engine, _, _, _ := newTestEngine(store)

		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)
		require.NoError(t, err)
		_, err = engine.Execute(ctx, plan)
		require.NoError(t, err)

		updated := store.programs["s1"]
		require.NotNil(t, updated.Rating)
		assert.Equal(t, 4.8, *updated.Rating)
		require.NotNil(t, updated.RatingCount)
		assert.Equal(t, 120, *updated.RatingCount)
		require.NotNil(t, updated.Location)
		assert.Equal(t, "123 Main St", updated.Location.Address)
		require.NotNil(t, updated.Location.Latitude)
		assert.Equal(t, 37.7749, *updated.Location.Latitude)
		require.NotNil(t, updated.Location.Longitude)
		assert.Equal(t, -122.4194, *updated.Location.Longitude)
	})

	t.Run("AuditFailureStillReportsWrites", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"
		retiree.ContactEmail = "chess@example.com"

		store := newFakeProgramStore(survivor, retiree)
		engine, audits, _, _ := newTestEngine(store)
		audits.err = errors.New("audit log unavailable")

		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)
		require.NoError(t, err)
		result, err := engine.Execute(ctx, plan)
		require.Error(t, err)

		// the writes landed before the audit append failed and the
		// result still reports them
		require.NotNil(t, result)
		assert.Contains(t, result.AppliedFields, "contact_email")
		assert.Equal(t, []string{"r1"}, result.RetiredIDs)
		assert.Empty(t, result.AuditEntryID)

		retired := store.programs["r1"]
		assert.Equal(t, models.ProgramStatusInactive, retired.Status)
	})

	t.Run("AuditDiffExcludesNoOpFields", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		survivor.Description = "Same description"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"
		retiree.ContactEmail = "chess@example.com"

		store := newFakeProgramStore(survivor, retiree)
		engine, audits, _, _ := newTestEngine(store)

		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)
		require.NoError(t, err)
		_, err = engine.Execute(ctx, plan)
		require.NoError(t, err)

		changes := audits.entries[0].Changes
		assert.Contains(t, changes.Fields, "contact_email")
		assert.NotContains(t, changes.Fields, "description")
		assert.NotContains(t, changes.Fields, "name")
		assert.Equal(t, []string{"r1"}, changes.Retired)
	})

	t.Run("NoFieldChangesStillRetires", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club"

		store := newFakeProgramStore(survivor, retiree)
		engine, audits, _, _ := newTestEngine(store)

		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)
		require.NoError(t, err)
		result, err := engine.Execute(ctx, plan)
		require.NoError(t, err)

		assert.Empty(t, result.AppliedFields)
		assert.Equal(t, []string{"r1"}, result.RetiredIDs)
		assert.Len(t, audits.entries, 1)
	})

	t.Run("PartialFailureIsolatesRetiree", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		r1 := testProgram("r1")
		r1.Name = "Chess Club SF"
		r2 := testProgram("r2")
		r2.Name = "SF Chess Club"

		store := newFakeProgramStore(survivor, r1, r2)
		store.retireErr["r1"] = errors.New("row locked")
		engine, audits, _, _ := newTestEngine(store)

		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1", "r2"}, nil, nil)
		require.NoError(t, err)
		result, err := engine.Execute(ctx, plan)

		var partialErr *PartialExecutionError
		require.ErrorAs(t, err, &partialErr)
		assert.Equal(t, []string{"r2"}, result.RetiredIDs)
		require.Len(t, result.FailedRetirees, 1)
		assert.Equal(t, "r1", result.FailedRetirees[0].RetireeID)
		assert.Contains(t, result.FailedRetirees[0].Reason, "row locked")

		// r2's retirement stands
		assert.Equal(t, models.ProgramStatusInactive, store.programs["r2"].Status)
		// r1 untouched
		assert.Equal(t, models.ProgramStatusActive, store.programs["r1"].Status)
		require.Len(t, audits.entries, 1)
	})

	t.Run("StalePlanRevalidated", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"

		store := newFakeProgramStore(survivor, retiree)
		engine, _, _, _ := newTestEngine(store)

		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)
		require.NoError(t, err)

		// Someone merges r1 elsewhere between planning and execution
		require.NoError(t, store.Retire(ctx, "r1", "other"))

		_, err = engine.Execute(ctx, plan)
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("RetiringFormerSurvivorRepointsChildren", func(t *testing.T) {
		grandRetiree := testProgram("g1")
		grandRetiree.Name = "Old Chess Club"
		grandRetiree.Status = models.ProgramStatusInactive
		grandRetiree.MergedInto = strPtr("r1")
		r1 := testProgram("r1")
		r1.Name = "Chess Club SF"
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"

		store := newFakeProgramStore(survivor, r1, grandRetiree)
		engine, _, _, _ := newTestEngine(store)

		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)
		require.NoError(t, err)
		_, err = engine.Execute(ctx, plan)
		require.NoError(t, err)

		require.NotNil(t, store.programs["g1"].MergedInto)
		assert.Equal(t, "s1", *store.programs["g1"].MergedInto)
	})

	t.Run("ResolvesMatchCandidates", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		retiree := testProgram("r1")
		retiree.Name = "Chess Club SF"

		store := newFakeProgramStore(survivor, retiree)
		engine, _, candidates, _ := newTestEngine(store)

		plan, err := engine.BuildPlan(ctx, "s1", []string{"r1"}, nil, nil)
		require.NoError(t, err)
		_, err = engine.Execute(ctx, plan)
		require.NoError(t, err)

		assert.Equal(t, [][2]string{{"s1", "r1"}}, candidates.merged)
	})
}

func TestUnmerge(t *testing.T) {
	ctx := appctx.SetActorID(context.Background(), "reviewer-7")

	t.Run("RestoresRetiredProgram", func(t *testing.T) {
		retired := testProgram("r1")
		retired.Name = "Chess Club SF"
		retired.Status = models.ProgramStatusInactive
		retired.MergedInto = strPtr("s1")

		store := newFakeProgramStore(retired, testProgram("s1"))
		engine, audits, _, emitter := newTestEngine(store)

		program, auditID, err := engine.Unmerge(ctx, "r1")
		require.NoError(t, err)

		assert.Equal(t, models.ProgramStatusActive, program.Status)
		assert.Nil(t, program.MergedInto)
		assert.Equal(t, models.ProgramStatusActive, store.programs["r1"].Status)
		assert.Nil(t, store.programs["r1"].MergedInto)

		require.Len(t, audits.entries, 1)
		assert.Equal(t, models.AuditActionUnmerge, audits.entries[0].Action)
		assert.Equal(t, auditID, audits.entries[0].ID)
		assert.Equal(t, []string{"r1"}, emitter.unmerged)
	})

	t.Run("NotRetiredRejected", func(t *testing.T) {
		engine, audits, _, _ := newTestEngine(newFakeProgramStore(testProgram("p1")))

		_, _, err := engine.Unmerge(ctx, "p1")
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
		assert.Empty(t, audits.entries)
	})

	t.Run("UnknownProgram", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(newFakeProgramStore())

		_, _, err := engine.Unmerge(ctx, "ghost")
		require.Error(t, err)
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	t.Run("DoesNotReconstructSurvivor", func(t *testing.T) {
		survivor := testProgram("s1")
		survivor.Name = "Chess Club"
		survivor.ContactEmail = "merged@example.com"
		retired := testProgram("r1")
		retired.Name = "Chess Club SF"
		retired.Status = models.ProgramStatusInactive
		retired.MergedInto = strPtr("s1")

		store := newFakeProgramStore(survivor, retired)
		engine, _, _, _ := newTestEngine(store)

		_, _, err := engine.Unmerge(ctx, "r1")
		require.NoError(t, err)

		// Survivor keeps the merged value
		assert.Equal(t, "merged@example.com", store.programs["s1"].ContactEmail)
	})
}

func TestRunBatch(t *testing.T) {
	ctx := appctx.SetActorID(context.Background(), "reviewer-7")

	t.Run("MixedResultsNeverAbort", func(t *testing.T) {
		s1 := testProgram("s1")
		s1.Name = "Chess Club"
		r1 := testProgram("r1")
		r1.Name = "Chess Club SF"
		s2 := testProgram("s2")
		s2.Name = "Swim School"
		r2 := testProgram("r2")
		r2.Name = "Swim School Mission"

		store := newFakeProgramStore(s1, r1, s2, r2)
		engine, _, _, _ := newTestEngine(store)

		decisions := []models.BatchDecision{
			{Action: models.BatchActionMerge, SurvivorID: "s1", RetireeIDs: []string{"r1"}},
			{Action: models.BatchActionSkip},
			{Action: models.BatchActionMerge, SurvivorID: "s2", RetireeIDs: []string{"ghost"}},
			{Action: models.BatchActionMerge, SurvivorID: "s2", RetireeIDs: []string{"r2"}},
		}

		result := engine.RunBatch(ctx, decisions)

		assert.Equal(t, 2, result.Succeeded)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, 1, result.Failed)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, 2, result.Failures[0].Index)
		assert.Contains(t, result.Failures[0].Reason, "ghost")

		// Both merges landed despite the failure in between
		assert.Equal(t, models.ProgramStatusInactive, store.programs["r1"].Status)
		assert.Equal(t, models.ProgramStatusInactive, store.programs["r2"].Status)
	})

	t.Run("AlreadyMergedItemFailsAlone", func(t *testing.T) {
		s1 := testProgram("s1")
		s1.Name = "Chess Club"
		r1 := testProgram("r1")
		r1.Name = "Chess Club SF"

		store := newFakeProgramStore(s1, r1)
		engine, _, _, _ := newTestEngine(store)

		decisions := []models.BatchDecision{
			{Action: models.BatchActionMerge, SurvivorID: "s1", RetireeIDs: []string{"r1"}},
			// Second decision repeats the merge; r1 is retired by then
			{Action: models.BatchActionMerge, SurvivorID: "s1", RetireeIDs: []string{"r1"}},
		}

		result := engine.RunBatch(ctx, decisions)
		assert.Equal(t, 1, result.Succeeded)
		assert.Equal(t, 1, result.Failed)
	})
}
