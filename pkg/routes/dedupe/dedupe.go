// Package dedupe exposes duplicate scanning and merge operations.
package dedupe

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/candidate"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scanning"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// Register registers dedupe routes
func Register(g *echo.Group) {
	g.POST("/scan", Scan)
	g.POST("/merge/plan", BuildPlan)
	g.POST("/merge", Execute)
	g.POST("/unmerge/:id", Unmerge)
	g.POST("/batch", RunBatch)
}

// Scan runs a full-catalog duplicate scan
func Scan(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dedupe_handler.Scan")
	defer span.End()

	var req models.ScanRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, cfg, err := ectoinject.GetContext[*config.Config](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	threshold := cfg.ScanThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	ctx, scanner, err := ectoinject.GetContext[*scanning.Scanner](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidates, scanned, err := scanner.Scan(ctx, threshold)
	if err != nil {
		return err
	}

	if req.Persist && len(candidates) > 0 {
		ctx, repo, repoErr := ectoinject.GetContext[*candidate.Repository](ctx)
		if repoErr != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
		}
		if err := repo.UpsertBatch(ctx, candidates); err != nil {
			return err
		}
		if ctx, emitter, emitterErr := ectoinject.GetContext[*events.Emitter](ctx); emitterErr == nil && emitter != nil {
			emitter.CandidatesFound(ctx, candidates)
		}
	}

	return c.JSON(http.StatusOK, models.ScanResponse{
		Threshold:  threshold,
		Scanned:    scanned,
		Candidates: candidates,
	})
}

// BuildPlan resolves a merge into a reviewable plan without applying it
func BuildPlan(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dedupe_handler.BuildPlan")
	defer span.End()

	var req models.BuildPlanRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	plan, err := engine.BuildPlan(ctx, req.SurvivorID, req.RetireeIDs, req.External, req.Overrides)
	if err != nil {
		return mapMergeError(err)
	}

	return c.JSON(http.StatusOK, plan)
}

// Execute applies a merge plan
func Execute(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dedupe_handler.Execute")
	defer span.End()

	var req models.ExecuteMergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Plan.SurvivorID == "" || len(req.Plan.RetireeIDs) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "plan requires a survivor and at least one retiree")
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := engine.Execute(ctx, &req.Plan)
	if err != nil {
		var partialErr *merging.PartialExecutionError
		if errors.As(err, &partialErr) {
			// The merge stands for everything that succeeded; the
			// failures are itemized in the body
			return c.JSON(http.StatusMultiStatus, partialErr.Result)
		}
		return mapMergeError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// Unmerge reverses a merge for one retired program
func Unmerge(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dedupe_handler.Unmerge")
	defer span.End()

	id := c.Param("id")

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	restored, auditID, err := engine.Unmerge(ctx, id)
	if err != nil {
		return mapMergeError(err)
	}

	return c.JSON(http.StatusOK, models.UnmergeResponse{
		Program:      *restored,
		AuditEntryID: auditID,
	})
}

// RunBatch processes a list of reviewed merge decisions
func RunBatch(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dedupe_handler.RunBatch")
	defer span.End()

	var req models.RunBatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result := engine.RunBatch(ctx, req.Decisions)

	return c.JSON(http.StatusOK, result)
}

// mapMergeError translates engine errors to HTTP errors. Repository
// errors already carry their status.
func mapMergeError(err error) error {
	var vErr *merging.ValidationError
	if errors.As(err, &vErr) {
		return httperror.NewHTTPError(http.StatusBadRequest, vErr.Error())
	}
	return err
}
