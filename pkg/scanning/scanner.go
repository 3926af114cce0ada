// Package scanning finds likely duplicate pairs across the active program
// catalog.
package scanning

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ProgramSource lists the programs eligible for duplicate detection
type ProgramSource interface {
	ListActivePrograms(ctx context.Context) ([]models.Program, error)
}

// ScanError reports a scan that aborted before producing results. A failed
// scan never returns partial candidates.
type ScanError struct {
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("duplicate scan aborted: %v", e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Scanner runs pairwise duplicate detection over the catalog
type Scanner struct {
	programs      ProgramSource
	scorer        *scoring.Scorer
	logger        ectologger.Logger
	maxCandidates int
}

func NewScanner(programs ProgramSource, logger ectologger.Logger, maxCandidates int) *Scanner {
	return &Scanner{
		programs:      programs,
		scorer:        scoring.NewScorer(),
		logger:        logger,
		maxCandidates: maxCandidates,
	}
}

// Scan compares every active program against every other and returns pairs
// classified as duplicates with composite score at or above threshold,
// highest first. The scan is read-only.
func (s *Scanner) Scan(ctx context.Context, threshold float64) ([]models.CandidatePair, int, error) {
	ctx, span := tracing.StartSpan(ctx, "scanning.Scanner.Scan")
	defer span.End()

	programs, err := s.programs.ListActivePrograms(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to load programs for duplicate scan")
		return nil, 0, &ScanError{Err: err}
	}

	candidates := make([]models.CandidatePair, 0)
	for i := 0; i < len(programs); i++ {
		for j := i + 1; j < len(programs); j++ {
			eval := s.scorer.Evaluate(&programs[i], &programs[j])
			if !eval.IsDuplicate || eval.Composite < threshold {
				continue
			}
			candidates = append(candidates, newPair(programs[i].ID, programs[j].ID, eval))
		}
	}

	sortCandidates(candidates)

	if s.maxCandidates > 0 && len(candidates) > s.maxCandidates {
		s.logger.WithContext(ctx).Warnf("Duplicate scan capped at %d of %d candidates", s.maxCandidates, len(candidates))
		candidates = candidates[:s.maxCandidates]
	}

	return candidates, len(programs), nil
}

// CheckProgram scores one program, typically a new intake submission,
// against the active catalog and returns duplicate warnings above
// threshold, highest first.
func (s *Scanner) CheckProgram(ctx context.Context, candidate *models.Program, threshold float64) ([]models.DuplicateWarning, error) {
	ctx, span := tracing.StartSpan(ctx, "scanning.Scanner.CheckProgram")
	defer span.End()

	programs, err := s.programs.ListActivePrograms(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to load programs for intake duplicate check")
		return nil, &ScanError{Err: err}
	}

	warnings := make([]models.DuplicateWarning, 0)
	for i := range programs {
		if programs[i].ID == candidate.ID {
			continue
		}
		eval := s.scorer.Evaluate(candidate, &programs[i])
		if !eval.IsDuplicate || eval.Composite < threshold {
			continue
		}
		warnings = append(warnings, models.DuplicateWarning{
			ProgramID: programs[i].ID,
			Name:      programs[i].Name,
			Score:     eval.Composite,
			Reasons:   eval.Reasons,
		})
	}

	sort.SliceStable(warnings, func(i, j int) bool {
		if warnings[i].Score != warnings[j].Score {
			return warnings[i].Score > warnings[j].Score
		}
		return warnings[i].ProgramID < warnings[j].ProgramID
	})

	return warnings, nil
}

// newPair orders the pair ids so the same two programs always produce the
// same pair regardless of scan order
func newPair(a, b string, eval scoring.Evaluation) models.CandidatePair {
	if b < a {
		a, b = b, a
	}
	return models.CandidatePair{
		ProgramAID: a,
		ProgramBID: b,
		Score:      eval.Composite,
		Reasons:    eval.Reasons,
	}
}

func sortCandidates(candidates []models.CandidatePair) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].ProgramAID != candidates[j].ProgramAID {
			return candidates[i].ProgramAID < candidates[j].ProgramAID
		}
		return candidates[i].ProgramBID < candidates[j].ProgramBID
	})
}
