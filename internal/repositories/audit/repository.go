// Package audit persists the append-only program audit log.
package audit

import (
	"context"
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

// auditDAO maps an audit row; changes round-trips through jsonb
type auditDAO struct {
	ID         string                              `db:"id"`
	Action     models.AuditAction                  `db:"action"`
	ActorID    string                              `db:"actor_id"`
	SurvivorID string                              `db:"survivor_id"`
	ProgramIDs pq.StringArray                      `db:"program_ids"`
	Changes    database.JSONB[models.AuditChanges] `db:"changes"`
	CreatedAt  time.Time                           `db:"created_at"`
}

func (d auditDAO) toModel() models.AuditEntry {
	return models.AuditEntry{
		ID:         d.ID,
		Action:     d.Action,
		ActorID:    d.ActorID,
		SurvivorID: d.SurvivorID,
		ProgramIDs: d.ProgramIDs,
		Changes:    d.Changes.Data,
		CreatedAt:  d.CreatedAt,
	}
}

// Repository handles audit log persistence. The log is append-only: there
// are no update or delete paths.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new audit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Append writes one audit entry
func (r *Repository) Append(ctx context.Context, entry *models.AuditEntry) error {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.Append")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("program_audit_log")
	sb.Cols("id", "action", "actor_id", "survivor_id", "program_ids", "changes", "created_at")
	sb.Values(entry.ID, entry.Action, entry.ActorID, entry.SurvivorID, entry.ProgramIDs,
		database.JSONB[models.AuditChanges]{Data: entry.Changes}, entry.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"audit_id": entry.ID}).Error("Failed to append audit entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append audit entry")
	}

	return nil
}

// ListByProgram returns audit entries touching a program, newest first
func (r *Repository) ListByProgram(ctx context.Context, programID string, page, pageSize int) ([]models.AuditEntry, int, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.ListByProgram")
	defer span.End()

	// sqlbuilder has no ANY() condition helper, so the query is written
	// out directly
	query := `SELECT id, action, actor_id, survivor_id, program_ids, changes, created_at
		FROM program_audit_log
		WHERE $1 = ANY(program_ids)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows := make([]auditDAO, 0)
	if err := r.db.SelectContext(ctx, &rows, query, programID, pageSize, (page-1)*pageSize); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list audit entries")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list audit entries")
	}

	entries := make([]models.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toModel())
	}

	countQuery := `SELECT COUNT(*) FROM program_audit_log WHERE $1 = ANY(program_ids)`
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, programID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count audit entries")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count audit entries")
	}

	return entries, totalCount, nil
}
