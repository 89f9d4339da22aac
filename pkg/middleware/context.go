package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/hostelops/warden/pkg/context"
)

// HeaderUserID carries the authenticated user ID, set by the auth layer
// in front of this service.
const HeaderUserID = "X-User-ID"

// Context seeds the request context with the identifiers the rest of
// the service reads through pkg/context: request id, acting user, and
// client metadata for audit trails. The request id is echoed back so
// callers can correlate.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = appctx.SetRequestID(ctx, requestID)
			ctx = appctx.SetUserID(ctx, req.Header.Get(HeaderUserID))
			ctx = appctx.SetMethod(ctx, req.Method)
			ctx = appctx.SetRoute(ctx, req.URL.Path)
			ctx = appctx.SetRemoteIP(ctx, c.RealIP())
			ctx = appctx.SetUserAgent(ctx, req.UserAgent())

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
