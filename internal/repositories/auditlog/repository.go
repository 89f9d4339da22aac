// Package auditlog persists the merge audit trail.
package auditlog

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/hostelops/warden/pkg/database"
	"github.com/hostelops/warden/pkg/models"
	"github.com/hostelops/warden/pkg/tracing"
)

const auditColumnList = `id, action, actor_id, master_issue_id, duplicate_issue_ids,
	merge_notes, metadata, created_at`

// Repository handles audit entry persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new audit log repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Record inserts an audit entry, assigning its ID and timestamp.
func (r *Repository) Record(ctx context.Context, entry *models.AuditEntry) error {
	ctx, span := tracing.StartSpan(ctx, "auditlog.Repository.Record")
	defer span.End()

	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO audit_log (
			id, action, actor_id, master_issue_id, duplicate_issue_ids,
			merge_notes, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Action, entry.ActorID, entry.MasterIssueID,
		entry.DuplicateIssueIDs, entry.MergeNotes, entry.Metadata, entry.CreatedAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"action":          entry.Action,
			"master_issue_id": entry.MasterIssueID,
		}).Error("Failed to record audit entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record audit entry")
	}
	return nil
}

// ListByIssue returns the audit entries touching an issue, as master or
// as one of the merged duplicates, newest first.
func (r *Repository) ListByIssue(ctx context.Context, issueID string) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "auditlog.Repository.ListByIssue")
	defer span.End()

	query := `
		SELECT ` + auditColumnList + `
		FROM audit_log
		WHERE master_issue_id = $1 OR $1 = ANY(duplicate_issue_ids)
		ORDER BY created_at DESC
	`

	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, issueID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"issue_id": issueID}).Error("Failed to list audit entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list audit entries")
	}
	return entries, nil
}
