// Package notification exposes the stored-notification HTTP API.
package notification

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	notificationrepo "github.com/hostelops/warden/internal/repositories/notification"
	appctx "github.com/hostelops/warden/pkg/context"
	"github.com/hostelops/warden/pkg/tracing"
)

// Register registers notification routes
func Register(g *echo.Group) {
	g.GET("", ListNotifications)
	g.POST("/:id/read", MarkNotificationRead)
}

// ListNotifications returns the calling user's notifications
func ListNotifications(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "notification_handler.ListNotifications")
	defer span.End()

	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	unreadOnly := c.QueryParam("unread") == "true"

	ctx, repo, err := ectoinject.GetContext[*notificationrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	notifications, err := repo.ListByUser(ctx, userID, unreadOnly)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, notifications)
}

// MarkNotificationRead acknowledges one of the calling user's notifications
func MarkNotificationRead(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "notification_handler.MarkNotificationRead")
	defer span.End()

	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*notificationrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.MarkRead(ctx, userID, c.Param("id")); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
