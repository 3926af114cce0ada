// Package program persists catalog programs and their locations.
package program

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

var programColumns = []string{
	"id", "name", "provider", "categories", "description", "contact_email",
	"contact_phone", "website", "registration_url", "price_min", "price_max",
	"price_unit", "rating", "rating_count", "status", "merged_into",
	"created_at", "updated_at",
}

// Repository handles program persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new program repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database for transaction scoping
func (r *Repository) DB() database.DB {
	return r.db
}

// Create inserts a new program and its location
func (r *Repository) Create(ctx context.Context, program *models.Program) (*models.Program, error) {
	ctx, span := tracing.StartSpan(ctx, "program.Repository.Create")
	defer span.End()

	if program.ID == "" {
		program.ID = uuid.New().String()
	}
	if program.Status == "" {
		program.Status = models.ProgramStatusActive
	}
	program.CreatedAt = time.Now().UTC()
	program.UpdatedAt = program.CreatedAt

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create program")
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("programs")
	sb.Cols(programColumns...)
	sb.Values(program.ID, program.Name, program.Provider, pq.StringArray(program.Categories),
		program.Description, program.ContactEmail, program.ContactPhone, program.Website,
		program.RegistrationURL, program.PriceMin, program.PriceMax, program.PriceUnit,
		program.Rating, program.RatingCount, program.Status, program.MergedInto,
		program.CreatedAt, program.UpdatedAt)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"program_id": program.ID}).Error("Failed to create program")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create program")
	}

	if program.Location != nil {
		program.Location.ProgramID = program.ID
		if err := r.upsertLocation(ctx, tx, program.Location); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to commit transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create program")
	}

	return program, nil
}

// Get retrieves a program with its location
func (r *Repository) Get(ctx context.Context, id string) (*models.Program, error) {
	ctx, span := tracing.StartSpan(ctx, "program.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(programColumns...)
	sb.From("programs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("program %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get program")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get program")
	}

	location, err := r.getLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	program.Location = location

	return &program, nil
}

// List returns programs filtered by status, paginated
func (r *Repository) List(ctx context.Context, status models.ProgramStatus, page, pageSize int) ([]models.Program, int, error) {
	ctx, span := tracing.StartSpan(ctx, "program.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(programColumns...)
	sb.From("programs")
	if status != "" {
		sb.Where(sb.Equal("status", status))
	}
	sb.OrderBy("created_at DESC", "id")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	programs := make([]models.Program, 0)
	if err := r.db.SelectContext(ctx, &programs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list programs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list programs")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("programs")
	if status != "" {
		cb.Where(cb.Equal("status", status))
	}
	countQuery, countArgs := cb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count programs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count programs")
	}

	return programs, totalCount, nil
}

// ListActivePrograms returns every active, not-merged program with its
// location attached. This is the duplicate scan working set.
func (r *Repository) ListActivePrograms(ctx context.Context) ([]models.Program, error) {
	ctx, span := tracing.StartSpan(ctx, "program.Repository.ListActivePrograms")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(programColumns...)
	sb.From("programs")
	sb.Where(
		sb.Equal("status", models.ProgramStatusActive),
		sb.IsNull("merged_into"),
	)
	sb.OrderBy("id")

	query, args := sb.Build()
	programs := make([]models.Program, 0)
	if err := r.db.SelectContext(ctx, &programs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active programs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list active programs")
	}

	lb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	lb.Select("program_id", "address", "neighborhood", "latitude", "longitude", "updated_at")
	lb.From("program_locations")

	locQuery, locArgs := lb.Build()
	locations := make([]models.ProgramLocation, 0)
	if err := r.db.SelectContext(ctx, &locations, locQuery, locArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list program locations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list program locations")
	}

	byProgram := make(map[string]*models.ProgramLocation, len(locations))
	for i := range locations {
		byProgram[locations[i].ProgramID] = &locations[i]
	}
	for i := range programs {
		programs[i].Location = byProgram[programs[i].ID]
	}

	return programs, nil
}

// Update writes a program's mergeable fields and location
func (r *Repository) Update(ctx context.Context, program *models.Program) error {
	ctx, span := tracing.StartSpan(ctx, "program.Repository.Update")
	defer span.End()

	program.UpdatedAt = time.Now().UTC()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update program")
	}
	defer tx.Rollback(ctx)

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("programs")
	ub.Set(
		ub.Assign("name", program.Name),
		ub.Assign("provider", program.Provider),
		ub.Assign("categories", pq.StringArray(program.Categories)),
		ub.Assign("description", program.Description),
		ub.Assign("contact_email", program.ContactEmail),
		ub.Assign("contact_phone", program.ContactPhone),
		ub.Assign("website", program.Website),
		ub.Assign("registration_url", program.RegistrationURL),
		ub.Assign("price_min", program.PriceMin),
		ub.Assign("price_max", program.PriceMax),
		ub.Assign("price_unit", program.PriceUnit),
		ub.Assign("rating", program.Rating),
		ub.Assign("rating_count", program.RatingCount),
		ub.Assign("updated_at", program.UpdatedAt),
	)
	ub.Where(ub.Equal("id", program.ID))

	query, args := ub.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"program_id": program.ID}).Error("Failed to update program")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update program")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("program %s not found", program.ID))
	}

	if program.Location != nil {
		program.Location.ProgramID = program.ID
		if err := r.upsertLocation(ctx, tx, program.Location); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to commit transaction")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update program")
	}

	return nil
}

// Retire marks a program inactive with a back-reference to its survivor.
// No other columns change.
func (r *Repository) Retire(ctx context.Context, id, survivorID string) error {
	ctx, span := tracing.StartSpan(ctx, "program.Repository.Retire")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("programs")
	ub.Set(
		ub.Assign("status", models.ProgramStatusInactive),
		ub.Assign("merged_into", survivorID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"program_id": id}).Error("Failed to retire program")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to retire program")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("program %s not found", id))
	}

	return nil
}

// Restore reverses Retire
func (r *Repository) Restore(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "program.Repository.Restore")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("programs")
	ub.Set(
		ub.Assign("status", models.ProgramStatusActive),
		"merged_into = NULL",
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"program_id": id}).Error("Failed to restore program")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to restore program")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("program %s not found", id))
	}

	return nil
}

// ReassignMergedInto repoints back-references from one survivor to another
func (r *Repository) ReassignMergedInto(ctx context.Context, from, to string) error {
	ctx, span := tracing.StartSpan(ctx, "program.Repository.ReassignMergedInto")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("programs")
	ub.Set(
		ub.Assign("merged_into", to),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("merged_into", from))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to reassign merged_into references")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign merge references")
	}

	return nil
}

func (r *Repository) getLocation(ctx context.Context, programID string) (*models.ProgramLocation, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("program_id", "address", "neighborhood", "latitude", "longitude", "updated_at")
	sb.From("program_locations")
	sb.Where(sb.Equal("program_id", programID))

	query, args := sb.Build()
	var location models.ProgramLocation
	if err := r.db.GetContext(ctx, &location, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get program location")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get program location")
	}
	return &location, nil
}

func (r *Repository) upsertLocation(ctx context.Context, tx database.Tx, location *models.ProgramLocation) error {
	now := time.Now().UTC()
	location.UpdatedAt = &now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("program_locations")
	sb.Cols("program_id", "address", "neighborhood", "latitude", "longitude", "updated_at")
	sb.Values(location.ProgramID, location.Address, location.Neighborhood, location.Latitude, location.Longitude, location.UpdatedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (program_id) DO UPDATE SET address = EXCLUDED.address, neighborhood = EXCLUDED.neighborhood, latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude, updated_at = EXCLUDED.updated_at"

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"program_id": location.ProgramID}).Error("Failed to upsert program location")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save program location")
	}

	return nil
}
