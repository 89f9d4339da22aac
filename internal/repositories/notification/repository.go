// Package notification persists stored user notifications.
package notification

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/hostelops/warden/pkg/database"
	"github.com/hostelops/warden/pkg/metrics"
	"github.com/hostelops/warden/pkg/models"
	"github.com/hostelops/warden/pkg/tracing"
)

var notificationColumns = []string{
	"id", "user_id", "type", "title", "message",
	"reference_id", "reference_type", "read", "created_at",
}

// Repository handles notification persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new notification repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// NotifyMany stores a batch of notifications in one insert.
func (r *Repository) NotifyMany(ctx context.Context, notifications []models.Notification) error {
	ctx, span := tracing.StartSpan(ctx, "notification.Repository.NotifyMany")
	defer span.End()

	if len(notifications) == 0 {
		return nil
	}

	now := time.Now().UTC()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("notifications")
	ib.Cols(notificationColumns...)
	for i := range notifications {
		n := &notifications[i]
		n.ID = uuid.New().String()
		n.CreatedAt = now
		ib.Values(n.ID, n.UserID, n.Type, n.Title, n.Message, n.ReferenceID, n.ReferenceType, false, n.CreatedAt)
	}

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"notification_count": len(notifications),
		}).Error("Failed to store notifications")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store notifications")
	}

	for i := range notifications {
		metrics.RecordNotificationStored(string(notifications[i].Type))
	}
	return nil
}

// ListByUser returns a user's notifications, newest first. unreadOnly
// narrows the listing to unread entries.
func (r *Repository) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	ctx, span := tracing.StartSpan(ctx, "notification.Repository.ListByUser")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(notificationColumns...)
	sb.From("notifications")
	where := []string{sb.Equal("user_id", userID)}
	if unreadOnly {
		where = append(where, sb.Equal("read", false))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(100)

	query, args := sb.Build()
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to list notifications")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead marks a user's notification as read. The user scope keeps
// one user from acknowledging another's notifications.
func (r *Repository) MarkRead(ctx context.Context, userID, notificationID string) error {
	ctx, span := tracing.StartSpan(ctx, "notification.Repository.MarkRead")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("notifications")
	sb.Set(sb.Assign("read", true))
	sb.Where(sb.Equal("id", notificationID), sb.Equal("user_id", userID))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"notification_id": notificationID}).Error("Failed to mark notification read")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark notification read")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark notification read")
	}
	if affected == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	return nil
}
