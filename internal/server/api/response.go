package api

import (
	"errors"
	"log/slog"
	"net/http"

	"cloudprime/internal/server/service"

	"github.com/labstack/echo/v4"
)

// envelope is the shape of every JSON response. List responses carry the
// pagination fields next to data.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	*service.Pagination
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

func respondMessage(c echo.Context, status int, msg string, data any) error {
	return c.JSON(status, envelope{Success: true, Message: msg, Data: data})
}

func respondList[T any](c echo.Context, page *service.Paged[T]) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Data: page.Items, Pagination: &page.Pagination})
}

func respondFail(c echo.Context, status int, msg string) error {
	return c.JSON(status, envelope{Success: false, Error: msg})
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindLimit:
		return http.StatusBadRequest
	case service.KindAuthentication:
		return http.StatusUnauthorized
	case service.KindAuthorization:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case service.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError translates a service-layer error into the failure envelope.
// Untyped errors are logged and rendered generically.
func respondError(c echo.Context, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"request_id", requestID(c),
			"error", err,
		)
		return respondFail(c, http.StatusInternalServerError, "internal server error")
	}

	status := statusFor(se.Kind)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "request_id", requestID(c), "error", err)
	}
	// The wrapped text carries limits such as "(5)" for key and quota errors.
	msg := se.Msg
	if se.Kind == service.KindLimit {
		msg = err.Error()
	}
	return respondFail(c, status, msg)
}

// httpErrorHandler renders echo's own errors (404 routes, body limit,
// panics recovered by middleware) in the response envelope.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		if he.Code == http.StatusNotFound {
			msg = "route not found"
		}
		_ = respondFail(c, he.Code, msg)
		return
	}
	_ = respondError(c, err)
}
