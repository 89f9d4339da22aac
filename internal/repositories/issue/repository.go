// Package issue persists hostel issues.
package issue

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/hostelops/warden/pkg/database"
	"github.com/hostelops/warden/pkg/models"
	"github.com/hostelops/warden/pkg/tracing"
)

var issueColumns = []string{
	"id", "title", "description", "category", "priority",
	"hostel_name", "room_number", "location", "status",
	"reported_by", "assigned_to", "notes", "resolved_at",
	"merged_into", "duplicate_of_notes", "created_at", "updated_at",
}

const issueColumnList = `id, title, description, category, priority,
	hostel_name, room_number, location, status,
	reported_by, assigned_to, notes, resolved_at,
	merged_into, duplicate_of_notes, created_at, updated_at`

// Repository handles issue persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new issue repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetTx begins a transaction, or joins the one already carried by ctx.
func (r *Repository) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return database.GetTx(ctx, r.logger, r.db, opts)
}

// Create inserts a new issue reported by the given user. Priority
// defaults to medium and status to pending.
func (r *Repository) Create(ctx context.Context, req *models.CreateIssueRequest, reportedBy string) (*models.Issue, error) {
	ctx, span := tracing.StartSpan(ctx, "issue.Repository.Create")
	defer span.End()

	priority := req.Priority
	if priority == "" {
		priority = string(models.PriorityMedium)
	}

	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		INSERT INTO issues (
			id, title, description, category, priority,
			hostel_name, room_number, location, status,
			reported_by, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + issueColumnList

	var issue models.Issue
	err := r.db.GetContext(ctx, &issue, query,
		id, req.Title, req.Description, req.Category, priority,
		req.HostelName, req.RoomNumber, req.Location, models.StatusPending,
		reportedBy, "", now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"category":    req.Category,
			"reported_by": reportedBy,
		}).Error("Failed to create issue")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create issue")
	}

	return &issue, nil
}

// GetByID retrieves an issue by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	ctx, span := tracing.StartSpan(ctx, "issue.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(issueColumns...)
	sb.From("issues")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var issue models.Issue
	if err := r.db.GetContext(ctx, &issue, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "issue not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get issue")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get issue")
	}
	return &issue, nil
}

// GetByIDs retrieves the issues matching the given IDs. Missing IDs are
// silently absent from the result; callers decide whether that matters.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]models.Issue, error) {
	ctx, span := tracing.StartSpan(ctx, "issue.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + issueColumnList + `
		FROM issues
		WHERE id = ANY($1)
		ORDER BY created_at
	`

	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query, pq.Array(ids)); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id_count": len(ids)}).Error("Failed to get issues by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get issues")
	}
	return issues, nil
}

// List returns a page of issues matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter models.IssueFilter, page, pageSize int) (*models.IssueListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "issue.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}

	countBuilder := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countBuilder.Select("COUNT(*)")
	countBuilder.From("issues")
	applyFilter(countBuilder, filter)

	query, args := countBuilder.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count issues")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list issues")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(issueColumns...)
	sb.From("issues")
	applyFilter(sb, filter)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list issues")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list issues")
	}

	return &models.IssueListResponse{
		Items:      issues,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func applyFilter(sb *sqlbuilder.SelectBuilder, filter models.IssueFilter) {
	var where []string
	if filter.Category != nil {
		where = append(where, sb.Equal("category", *filter.Category))
	}
	if filter.Status != nil {
		where = append(where, sb.Equal("status", *filter.Status))
	}
	if filter.HostelName != nil {
		where = append(where, sb.Equal("hostel_name", *filter.HostelName))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
}

// ListCandidates returns the duplicate-scoring pool for a target issue:
// unmerged issues in the same category, excluding the target. Closed
// issues stay in the pool; a resolved report can still be the older
// copy of a new duplicate.
func (r *Repository) ListCandidates(ctx context.Context, q models.CandidateQuery) ([]models.Issue, error) {
	ctx, span := tracing.StartSpan(ctx, "issue.Repository.ListCandidates")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(issueColumns...)
	sb.From("issues")
	where := []string{
		sb.Equal("category", q.Category),
		sb.NotEqual("id", q.ExcludeID),
		sb.IsNull("merged_into"),
	}
	if q.Since != nil {
		where = append(where, sb.GreaterEqualThan("created_at", *q.Since))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"category":   q.Category,
			"exclude_id": q.ExcludeID,
		}).Error("Failed to list duplicate candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list candidates")
	}
	return issues, nil
}

// UpdateStatus transitions an issue's status. Merged issues are
// immutable; a transition on one returns a conflict.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status models.IssueStatus, assignedTo *string) (*models.Issue, error) {
	ctx, span := tracing.StartSpan(ctx, "issue.Repository.UpdateStatus")
	defer span.End()

	now := time.Now().UTC()

	query := `
		UPDATE issues
		SET status = $2,
			assigned_to = COALESCE($3, assigned_to),
			resolved_at = CASE WHEN $2 IN ('resolved', 'closed') THEN COALESCE(resolved_at, $4) ELSE NULL END,
			updated_at = $4
		WHERE id = $1 AND merged_into IS NULL
		RETURNING ` + issueColumnList

	var issue models.Issue
	err := r.db.GetContext(ctx, &issue, query, id, status, assignedTo, now)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, r.immutableOrMissing(ctx, id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": status}).Error("Failed to update issue status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update issue status")
	}
	return &issue, nil
}

// AppendNote appends a line to an issue's note log. Notes are
// append-only; merged issues reject new notes.
func (r *Repository) AppendNote(ctx context.Context, id, note string) (*models.Issue, error) {
	ctx, span := tracing.StartSpan(ctx, "issue.Repository.AppendNote")
	defer span.End()

	query := `
		UPDATE issues
		SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
			updated_at = $3
		WHERE id = $1 AND merged_into IS NULL
		RETURNING ` + issueColumnList

	var issue models.Issue
	err := r.db.GetContext(ctx, &issue, query, id, note, time.Now().UTC())
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, r.immutableOrMissing(ctx, id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to append issue note")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to append note")
	}
	return &issue, nil
}

// CloseDuplicates closes the given issues into the master in one
// statement. The merge annotation is stored as the duplicate rationale
// and appended to each issue's note log; a resolution timestamp that is
// already set is preserved. The merged_into guard makes the write
// idempotent against concurrent merges: rows already claimed by another
// merge are skipped, and the affected count tells the caller.
func (r *Repository) CloseDuplicates(ctx context.Context, masterID string, duplicateIDs []string, annotation string, resolvedAt time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "issue.Repository.CloseDuplicates")
	defer span.End()

	query := `
		UPDATE issues
		SET status = $2,
			merged_into = $3,
			duplicate_of_notes = $4,
			notes = CASE WHEN notes = '' THEN $4 ELSE notes || E'\n' || $4 END,
			resolved_at = COALESCE(resolved_at, $5),
			updated_at = $5
		WHERE id = ANY($1) AND merged_into IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, pq.Array(duplicateIDs), models.StatusClosed, masterID, annotation, resolvedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"master_id":       masterID,
			"duplicate_count": len(duplicateIDs),
		}).Error("Failed to close duplicate issues")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to close duplicate issues")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to close duplicate issues")
	}
	return affected, nil
}

// immutableOrMissing distinguishes a guarded update that matched no
// rows: the issue either does not exist or has been merged.
func (r *Repository) immutableOrMissing(ctx context.Context, id string) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.IsMerged() {
		return httperror.NewHTTPError(http.StatusConflict, "issue has been merged and is read-only")
	}
	return httperror.NewHTTPError(http.StatusNotFound, "issue not found")
}
