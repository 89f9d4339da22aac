package middleware

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/hostelops/warden/pkg/context"
	"github.com/hostelops/warden/pkg/tracing"
)

// ErrorResponse is the JSON shape every failed request returns.
type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Error renders httperrors with their status and message, echo errors
// with theirs, and everything else as an opaque 500. 5xx causes get
// logged, client errors do not.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		ctx := c.Request().Context()
		code, message, meta := resolveError(err)

		if code >= http.StatusInternalServerError {
			logger.WithContext(ctx).WithError(err).Error("request failed with server error")
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: appctx.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}

func resolveError(err error) (int, string, map[string]any) {
	if httperror.IsHTTPError(err) {
		httperr := httperror.ToHTTPError(err)
		return httperror.GetStatusCode(err), httperr.Error(), httperr.Meta
	}
	if he, ok := err.(*echo.HTTPError); ok {
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg, nil
		}
		return he.Code, http.StatusText(he.Code), nil
	}
	return http.StatusInternalServerError, "internal server error", nil
}
