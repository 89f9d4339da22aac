// Package merging implements the transactional issue merge operation.
package merging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	appctx "github.com/hostelops/warden/pkg/context"
	"github.com/hostelops/warden/pkg/database"
	"github.com/hostelops/warden/pkg/models"
	"github.com/hostelops/warden/pkg/tracing"
)

// Store is the issue persistence surface the executor writes through.
// All reads and writes between GetTx and Commit run on the same
// transaction via the returned context.
type Store interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
	GetByID(ctx context.Context, id string) (*models.Issue, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Issue, error)
	CloseDuplicates(ctx context.Context, masterID string, duplicateIDs []string, annotation string, resolvedAt time.Time) (int64, error)
	AppendNote(ctx context.Context, issueID, note string) (*models.Issue, error)
}

// Auditor records committed merges in the audit trail.
type Auditor interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// Notifier delivers merge notifications to affected reporters.
type Notifier interface {
	NotifyMany(ctx context.Context, notifications []models.Notification) error
}

// Emitter publishes merge events for downstream consumers.
type Emitter interface {
	EmitIssuesMerged(ctx context.Context, masterID string, duplicateIDs []string, actorID string) error
}

// Invalidator drops cached duplicate results for issues changed by a merge.
type Invalidator interface {
	InvalidateDuplicates(ctx context.Context, issueIDs ...string)
}

// Metrics counts committed merges.
type Metrics interface {
	ObserveMerge(mergedCount int)
}

// Executor performs issue merges: duplicates are closed and pointed at
// the master atomically, then audit, notification, and event side
// effects run after commit. Side-effect failures are logged, never
// surfaced; the merge itself is the source of truth.
type Executor struct {
	store       Store
	auditor     Auditor
	notifier    Notifier
	emitter     Emitter
	invalidator Invalidator
	metrics     Metrics
	logger      ectologger.Logger
}

// NewExecutor creates an Executor. auditor, notifier, emitter,
// invalidator, and metrics may each be nil to disable that side effect.
func NewExecutor(
	store Store,
	auditor Auditor,
	notifier Notifier,
	emitter Emitter,
	invalidator Invalidator,
	metrics Metrics,
	logger ectologger.Logger,
) *Executor {
	return &Executor{
		store:       store,
		auditor:     auditor,
		notifier:    notifier,
		emitter:     emitter,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger,
	}
}

// Merge closes every duplicate issue into the master within a single
// transaction. Either all duplicates are merged or none are: any
// missing, already-merged, or concurrently-modified duplicate aborts
// the whole operation.
func (e *Executor) Merge(ctx context.Context, req *models.MergeIssuesRequest, meta models.RequestMetadata) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Executor.Merge")
	defer span.End()

	actorID := appctx.GetUserID(ctx)

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"master_issue_id": req.MasterIssueID,
		"duplicate_count": len(req.DuplicateIssueIDs),
		"actor_id":        actorID,
	})

	if len(req.DuplicateIssueIDs) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "at least one duplicate issue id is required")
	}

	seen := make(map[string]struct{}, len(req.DuplicateIssueIDs))
	for _, id := range req.DuplicateIssueIDs {
		if id == req.MasterIssueID {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "master issue cannot be merged into itself")
		}
		if _, dup := seen[id]; dup {
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "duplicate issue id repeated: %s", id)
		}
		seen[id] = struct{}{}
	}

	ctxTx, tx, err := e.store.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		log.WithError(err).Error("failed to begin merge transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctxTx)

	master, err := e.store.GetByID(ctxTx, req.MasterIssueID)
	if err != nil {
		return nil, err
	}
	if master.IsMerged() {
		return nil, httperror.NewHTTPError(http.StatusConflict, "master issue has already been merged")
	}

	duplicates, err := e.store.GetByIDs(ctxTx, req.DuplicateIssueIDs)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(req.DuplicateIssueIDs, duplicates); len(missing) > 0 {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "duplicate issues not found: %s", strings.Join(missing, ", "))
	}
	for i := range duplicates {
		if duplicates[i].IsMerged() {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict, "issue %s has already been merged", duplicates[i].ID)
		}
	}

	now := time.Now().UTC()
	annotation := mergeAnnotation(master.ID, actorID, req.MergeNotes, now)

	affected, err := e.store.CloseDuplicates(ctxTx, master.ID, req.DuplicateIssueIDs, annotation, now)
	if err != nil {
		return nil, err
	}
	if affected != int64(len(req.DuplicateIssueIDs)) {
		// Another merge won the race between our read and write.
		return nil, httperror.NewHTTPError(http.StatusConflict, "one or more issues were merged concurrently")
	}

	master, err = e.store.AppendNote(ctxTx, master.ID, masterNote(actorID, req, now))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		log.WithError(err).Error("failed to commit merge transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit merge")
	}

	log.Info("merged duplicate issues")

	e.runSideEffects(ctx, master, duplicates, req, actorID, meta)

	return &models.MergeResult{
		MergedCount:    len(req.DuplicateIssueIDs),
		MasterIssue:    master,
		MergedIssueIDs: req.DuplicateIssueIDs,
	}, nil
}

// runSideEffects executes the post-commit fan-out on the request
// context, outside the transaction.
func (e *Executor) runSideEffects(ctx context.Context, master *models.Issue, duplicates []models.Issue, req *models.MergeIssuesRequest, actorID string, meta models.RequestMetadata) {
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"master_issue_id": master.ID,
	})

	if e.auditor != nil {
		entry := &models.AuditEntry{
			Action:            models.AuditActionIssueMerge,
			ActorID:           actorID,
			MasterIssueID:     master.ID,
			DuplicateIssueIDs: req.DuplicateIssueIDs,
		}
		if req.MergeNotes != "" {
			entry.MergeNotes = &req.MergeNotes
		}
		if metadata, err := json.Marshal(meta); err == nil {
			entry.Metadata = metadata
		}
		if err := e.auditor.Record(ctx, entry); err != nil {
			log.WithError(err).Error("failed to record merge audit entry")
		}
	}

	if e.notifier != nil {
		if notifications := mergeNotifications(master, duplicates, actorID); len(notifications) > 0 {
			if err := e.notifier.NotifyMany(ctx, notifications); err != nil {
				log.WithError(err).Error("failed to store merge notifications")
			}
		}
	}

	if e.emitter != nil {
		if err := e.emitter.EmitIssuesMerged(ctx, master.ID, req.DuplicateIssueIDs, actorID); err != nil {
			log.WithError(err).Error("failed to emit merge event")
		}
	}

	if e.invalidator != nil {
		e.invalidator.InvalidateDuplicates(ctx, append([]string{master.ID}, req.DuplicateIssueIDs...)...)
	}

	if e.metrics != nil {
		e.metrics.ObserveMerge(len(req.DuplicateIssueIDs))
	}
}

// mergeNotifications builds one notification per distinct reporter of
// the merged duplicates, skipping the acting user.
func mergeNotifications(master *models.Issue, duplicates []models.Issue, actorID string) []models.Notification {
	seen := make(map[string]bool, len(duplicates))
	notifications := make([]models.Notification, 0, len(duplicates))
	for i := range duplicates {
		reporter := duplicates[i].ReportedBy
		if reporter == "" || reporter == actorID || seen[reporter] {
			continue
		}
		seen[reporter] = true
		masterID := master.ID
		notifications = append(notifications, models.Notification{
			UserID:        reporter,
			Type:          models.NotificationIssueMerged,
			Title:         "Your issue was merged",
			Message:       fmt.Sprintf("Your report %q was merged into %q, which tracks the same problem.", duplicates[i].Title, master.Title),
			ReferenceID:   &masterID,
			ReferenceType: "issue",
		})
	}
	return notifications
}

// mergeAnnotation is stamped on each closed duplicate.
func mergeAnnotation(masterID, actorID, notes string, at time.Time) string {
	annotation := fmt.Sprintf("Merged into issue %s by %s at %s", masterID, actorID, at.Format(time.RFC3339))
	if notes != "" {
		annotation += ": " + notes
	}
	return annotation
}

// masterNote is appended to the master issue's note log.
func masterNote(actorID string, req *models.MergeIssuesRequest, at time.Time) string {
	note := fmt.Sprintf("[%s] %s: Merged %d duplicate issue(s): %s",
		at.Format(time.RFC3339), actorID, len(req.DuplicateIssueIDs), strings.Join(req.DuplicateIssueIDs, ", "))
	if req.MergeNotes != "" {
		note += ". " + req.MergeNotes
	}
	return note
}

func missingIDs(requested []string, found []models.Issue) []string {
	present := make(map[string]bool, len(found))
	for i := range found {
		present[found[i].ID] = true
	}
	var missing []string
	for _, id := range requested {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
