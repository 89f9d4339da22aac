// Package issue exposes the issue HTTP API: reporting, listing, status
// transitions, notes, duplicate search, merging, and the audit trail.
package issue

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/hostelops/warden/internal/repositories/auditlog"
	issuerepo "github.com/hostelops/warden/internal/repositories/issue"
	appctx "github.com/hostelops/warden/pkg/context"
	"github.com/hostelops/warden/pkg/kafka"
	"github.com/hostelops/warden/pkg/matching"
	"github.com/hostelops/warden/pkg/merging"
	"github.com/hostelops/warden/pkg/metrics"
	"github.com/hostelops/warden/pkg/models"
	"github.com/hostelops/warden/pkg/tracing"
)

var validate = validator.New()

// Register registers issue routes
func Register(g *echo.Group) {
	g.POST("", CreateIssue)
	g.GET("", ListIssues)
	g.GET("/:id", GetIssue)
	g.PATCH("/:id/status", UpdateIssueStatus)
	g.POST("/:id/notes", AddIssueNote)
	g.GET("/:id/duplicates", GetDuplicates)
	g.POST("/merge", MergeIssues)
	g.GET("/:id/audit", GetIssueAudit)
}

// CreateIssue reports a new issue
func CreateIssue(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "issue_handler.CreateIssue")
	defer span.End()

	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	var req models.CreateIssueRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*issuerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := repo.Create(ctx, &req, userID)
	if err != nil {
		return err
	}

	metrics.RecordIssueCreated(string(created.Category), string(created.Priority))

	ctx, emitter, err := ectoinject.GetContext[*kafka.Emitter](ctx)
	if err == nil && emitter != nil {
		if err := emitter.EmitIssueCreated(ctx, created); err != nil {
			ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
			if logger != nil {
				logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": created.ID}).Error("Failed to emit issue created event")
			}
		}
	}

	return c.JSON(http.StatusCreated, created)
}

// ListIssues returns a page of issues, optionally filtered by category,
// status, or hostel
func ListIssues(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "issue_handler.ListIssues")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var filter models.IssueFilter
	if v := c.QueryParam("category"); v != "" {
		category := models.IssueCategory(v)
		filter.Category = &category
	}
	if v := c.QueryParam("status"); v != "" {
		status := models.IssueStatus(v)
		filter.Status = &status
	}
	if v := c.QueryParam("hostel_name"); v != "" {
		filter.HostelName = &v
	}

	ctx, repo, err := ectoinject.GetContext[*issuerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.List(ctx, filter, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// GetIssue gets an issue by ID
func GetIssue(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "issue_handler.GetIssue")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*issuerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	issue, err := repo.GetByID(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, issue)
}

// UpdateIssueStatus transitions an issue's status
func UpdateIssueStatus(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "issue_handler.UpdateIssueStatus")
	defer span.End()

	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	var req models.UpdateIssueStatusRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*issuerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	updated, err := repo.UpdateStatus(ctx, c.Param("id"), models.IssueStatus(req.Status), req.AssignedTo)
	if err != nil {
		return err
	}

	metrics.RecordStatusTransition(req.Status)

	ctx, emitter, err := ectoinject.GetContext[*kafka.Emitter](ctx)
	if err == nil && emitter != nil {
		if err := emitter.EmitIssueStatusChanged(ctx, updated, userID); err != nil {
			ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
			if logger != nil {
				logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": updated.ID}).Error("Failed to emit status change event")
			}
		}
	}

	return c.JSON(http.StatusOK, updated)
}

// AddIssueNote appends a note to an issue's note log
func AddIssueNote(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "issue_handler.AddIssueNote")
	defer span.End()

	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	var req models.AppendNoteRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*issuerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	note := fmt.Sprintf("[%s] %s: %s", time.Now().UTC().Format(time.RFC3339), userID, req.Note)
	updated, err := repo.AppendNote(ctx, c.Param("id"), note)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

// GetDuplicates returns ranked duplicate candidates for an issue
func GetDuplicates(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "issue_handler.GetDuplicates")
	defer span.End()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, finder, err := ectoinject.GetContext[*matching.Finder](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := finder.FindDuplicates(ctx, c.Param("id"), limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// MergeIssues merges duplicate issues into a master issue
func MergeIssues(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "issue_handler.MergeIssues")
	defer span.End()

	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	var req models.MergeIssuesRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, executor, err := ectoinject.GetContext[*merging.Executor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	meta := models.RequestMetadata{
		RequestID: appctx.GetRequestID(ctx),
		RemoteIP:  appctx.GetRemoteIP(ctx),
		UserAgent: appctx.GetUserAgent(ctx),
	}

	result, err := executor.Merge(ctx, &req, meta)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// GetIssueAudit returns the merge audit entries touching an issue
func GetIssueAudit(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "issue_handler.GetIssueAudit")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*auditlog.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entries, err := repo.ListByIssue(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}
