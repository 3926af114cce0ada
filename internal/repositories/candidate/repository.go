// Package candidate persists duplicate match candidates for review.
package candidate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var candidateColumns = []string{
	"id", "program_a_id", "program_b_id", "score", "reasons", "status",
	"reviewed_by", "reviewed_at", "created_at", "updated_at",
}

// Repository handles match candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertBatch stores scan results. Re-scanned pairs keep their best score
// and their existing review status.
func (r *Repository) UpsertBatch(ctx context.Context, pairs []models.CandidatePair) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.UpsertBatch")
	defer span.End()

	if len(pairs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_candidates")
	sb.Cols("id", "program_a_id", "program_b_id", "score", "reasons", "status", "created_at", "updated_at")
	for _, pair := range pairs {
		sb.Values(uuid.New().String(), pair.ProgramAID, pair.ProgramBID, pair.Score,
			pq.StringArray(pair.Reasons), models.CandidateStatusPending, now, now)
	}

	query, args := sb.Build()
	query += " ON CONFLICT (program_a_id, program_b_id) DO UPDATE SET score = GREATEST(match_candidates.score, EXCLUDED.score), reasons = EXCLUDED.reasons, updated_at = EXCLUDED.updated_at"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to upsert match candidates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store match candidates")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(pairs)}).Debug("Stored match candidates")
	return nil
}

// Get retrieves a match candidate by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From("match_candidates")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var candidate models.MatchCandidate
	if err := r.db.GetContext(ctx, &candidate, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("match candidate %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match candidate")
	}

	return &candidate, nil
}

// List returns match candidates, optionally filtered by status, best score
// first
func (r *Repository) List(ctx context.Context, status models.CandidateStatus, page, pageSize int) ([]models.MatchCandidate, int, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From("match_candidates")
	if status != "" {
		sb.Where(sb.Equal("status", status))
	}
	sb.OrderBy("score DESC", "program_a_id", "program_b_id")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	candidates := make([]models.MatchCandidate, 0)
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list match candidates")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match candidates")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("match_candidates")
	if status != "" {
		cb.Where(cb.Equal("status", status))
	}
	countQuery, countArgs := cb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count match candidates")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count match candidates")
	}

	return candidates, totalCount, nil
}

// Review records an operator decision on a candidate
func (r *Repository) Review(ctx context.Context, id string, status models.CandidateStatus, reviewedBy string) (*models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Review")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("match_candidates")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("reviewed_by", reviewedBy),
		ub.Assign("reviewed_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id}).Error("Failed to review match candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to review match candidate")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("match candidate %s not found", id))
	}

	return r.Get(ctx, id)
}

// MarkMerged resolves every unreviewed candidate involving a merged pair,
// in either order
func (r *Repository) MarkMerged(ctx context.Context, programAID, programBID string) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.MarkMerged")
	defer span.End()

	query := `UPDATE match_candidates
		SET status = $1, updated_at = $2
		WHERE status IN ($3, $4, $5)
		AND ((program_a_id = $6 AND program_b_id = $7) OR (program_a_id = $7 AND program_b_id = $6))`

	_, err := r.db.ExecContext(ctx, query,
		models.CandidateStatusMerged, time.Now().UTC(),
		models.CandidateStatusPending, models.CandidateStatusApproved, models.CandidateStatusDeferred,
		programAID, programBID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark match candidates merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve match candidates")
	}

	return nil
}
