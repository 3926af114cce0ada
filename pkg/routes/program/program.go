package program

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/audit"
	"github.com/Ramsey-B/clover/internal/repositories/program"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scanning"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// Register registers program routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", Create)
	g.GET("/:id", Get)
	g.PUT("/:id", Update)
	g.GET("/:id/audit", ListAudit)
}

// List returns programs, optionally filtered by status
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "program_handler.List")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	status := models.ProgramStatus(c.QueryParam("status"))

	ctx, repo, err := ectoinject.GetContext[*program.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, totalCount, err := repo.List(ctx, status, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ProgramListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Create creates a program and warns about likely duplicates already in
// the catalog
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "program_handler.Create")
	defer span.End()

	var req models.CreateProgramRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*program.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	newProgram := &models.Program{
		Name:            req.Name,
		Provider:        req.Provider,
		Categories:      req.Categories,
		Description:     req.Description,
		ContactEmail:    req.ContactEmail,
		ContactPhone:    req.ContactPhone,
		Website:         req.Website,
		RegistrationURL: req.RegistrationURL,
		PriceMin:        req.PriceMin,
		PriceMax:        req.PriceMax,
		PriceUnit:       req.PriceUnit,
		Status:          models.ProgramStatusActive,
	}
	if req.Address != "" || req.Neighborhood != "" {
		newProgram.Location = &models.ProgramLocation{
			Address:      req.Address,
			Neighborhood: req.Neighborhood,
			Latitude:     req.Latitude,
			Longitude:    req.Longitude,
		}
	}

	created, err := repo.Create(ctx, newProgram)
	if err != nil {
		return err
	}

	response := models.CreateProgramResponse{Program: *created}

	ctx, cfg, err := ectoinject.GetContext[*config.Config](ctx)
	if err == nil && cfg.IntakeCheckEnabled {
		ctx, scanner, scannerErr := ectoinject.GetContext[*scanning.Scanner](ctx)
		if scannerErr == nil {
			warnings, checkErr := scanner.CheckProgram(ctx, created, cfg.IntakeCheckThreshold)
			if checkErr == nil {
				response.Duplicates = warnings
			}
		}
	}

	return c.JSON(http.StatusCreated, response)
}

// Get retrieves a program by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "program_handler.Get")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*program.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	item, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, item)
}

// Update modifies a program's editable fields
func Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "program_handler.Update")
	defer span.End()

	id := c.Param("id")

	var req models.UpdateProgramRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*program.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	item, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.IsRetired() {
		return httperror.NewHTTPError(http.StatusConflict, "program has been merged and is read-only; unmerge it first")
	}

	applyUpdate(item, &req)

	if err := repo.Update(ctx, item); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, item)
}

// ListAudit returns the audit trail for a program
func ListAudit(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "program_handler.ListAudit")
	defer span.End()

	id := c.Param("id")
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	ctx, repo, err := ectoinject.GetContext[*audit.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, totalCount, err := repo.ListByProgram(ctx, id, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.AuditListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

func applyUpdate(item *models.Program, req *models.UpdateProgramRequest) {
	if req.Name != nil {
		item.Name = *req.Name
	}
	if req.Provider != nil {
		item.Provider = *req.Provider
	}
	if req.Categories != nil {
		item.Categories = req.Categories
	}
	if req.Description != nil {
		item.Description = *req.Description
	}
	if req.ContactEmail != nil {
		item.ContactEmail = *req.ContactEmail
	}
	if req.ContactPhone != nil {
		item.ContactPhone = *req.ContactPhone
	}
	if req.Website != nil {
		item.Website = *req.Website
	}
	if req.RegistrationURL != nil {
		item.RegistrationURL = *req.RegistrationURL
	}
	if req.PriceMin != nil {
		item.PriceMin = req.PriceMin
	}
	if req.PriceMax != nil {
		item.PriceMax = req.PriceMax
	}
	if req.PriceUnit != nil {
		item.PriceUnit = req.PriceUnit
	}
}
