package middleware

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/hostelops/warden/pkg/context"
)

// Logger emits one structured access log line per request. Runs after
// Context so the request id and user id are already on the context.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			ctx := req.Context()

			fields := map[string]any{
				"request_id":    appctx.GetRequestID(ctx),
				"method":        req.Method,
				"route":         c.Path(),
				"uri":           req.RequestURI,
				"status":        res.Status,
				"remote_ip":     c.RealIP(),
				"user_agent":    req.UserAgent(),
				"duration_ms":   time.Since(start).Milliseconds(),
				"response_size": res.Size,
			}
			if userID := appctx.GetUserID(ctx); userID != "" {
				fields["user_id"] = userID
			}

			log := logger.WithContext(ctx).WithFields(fields)
			if res.Status >= http.StatusInternalServerError {
				log.Error("request failed")
				return nil
			}
			log.Info("request completed")
			return nil
		}
	}
}
