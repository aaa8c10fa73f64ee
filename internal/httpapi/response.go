package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/forest6511/acctvault/pkg/auth"
	"github.com/forest6511/acctvault/pkg/backup"
	"github.com/forest6511/acctvault/pkg/totp"
	"github.com/forest6511/acctvault/pkg/vault"
)

// envelope is the body of every response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

const msgOK = "ok"

func ok(c echo.Context, data any, message string) error {
	if message == "" {
		message = msgOK
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: data, Message: message})
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	token, found := strings.CutPrefix(h, "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrBanned),
		errors.Is(err, auth.ErrInvalidSession), errors.Is(err, auth.ErrNotConfigured):
		return http.StatusUnauthorized
	case errors.Is(err, vault.ErrNotFound), errors.Is(err, vault.ErrNotDeleted),
		errors.Is(err, backup.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, vault.ErrInvalidInput), errors.Is(err, backup.ErrInvalidName),
		errors.Is(err, totp.ErrInvalidSecret), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, backup.ErrRemoteNotConfigured):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := statusFor(err)
	message := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(he.Code)
		}
	}
	var ae *auth.AuthError
	if errors.As(err, &ae) {
		message = ae.Message
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed",
			"method", c.Request().Method, "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, envelope{Success: false, Data: nil, Message: message})
}
