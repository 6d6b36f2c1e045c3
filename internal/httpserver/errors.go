package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/hospital_desk/internal/db"
	"github.com/Skotchmaster/hospital_desk/internal/logging"
	"github.com/Skotchmaster/hospital_desk/internal/service"
	"github.com/Skotchmaster/hospital_desk/internal/transport"
)

type errorMapping struct {
	err     error
	status  int
	message string
}

// Ordered from most to least specific; the first match wins.
var errorMappings = []errorMapping{
	{service.ErrMissingFields, http.StatusBadRequest, "Username and password are required"},
	{service.ErrUsernameTooShort, http.StatusBadRequest, "Username must be at least 3 characters"},
	{service.ErrPasswordTooShort, http.StatusBadRequest, "Password must be at least 6 characters"},
	{service.ErrPasswordTooLong, http.StatusBadRequest, "Password must be at most 72 bytes"},
	{service.ErrUsernameTaken, http.StatusBadRequest, "Username already exists"},
	{service.ErrInvalidRegistrationCode, http.StatusForbidden, "Invalid registration code"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid username or password"},
	{service.ErrFieldsRequired, http.StatusBadRequest, "All fields are required"},
	{service.ErrInvalidTCID, http.StatusBadRequest, "TC Kimlik No must be 11 digits"},
	{service.ErrQueryRequired, http.StatusBadRequest, "Search query is required"},
	{service.ErrValidation, http.StatusBadRequest, "Invalid request"},
	{service.ErrDuplicateTCID, http.StatusBadRequest, "A patient with this TC Kimlik No already exists"},
	{service.ErrConflict, http.StatusConflict, "Conflict"},
	{service.ErrViewForbidden, http.StatusForbidden, "You do not have permission to view this patient"},
	{service.ErrUpdateForbidden, http.StatusForbidden, "You do not have permission to update this patient"},
	{service.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{service.ErrPatientNotFound, http.StatusNotFound, "Patient not found"},
	{service.ErrJobNotFound, http.StatusNotFound, "Backup job not found"},
	{service.ErrLogFileNotFound, http.StatusNotFound, "Log file not found"},
	{service.ErrNotFound, http.StatusNotFound, "Not found"},
	{service.ErrInvalidFormat, http.StatusBadRequest, "Invalid file format. Only .log files are allowed."},
	{db.ErrPoolExhausted, http.StatusServiceUnavailable, "Service busy, try again later"},
	{service.ErrShuttingDown, http.StatusServiceUnavailable, "Server is shutting down"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "Service busy, try again later"},
}

// fail converts a service error into an HTTP error. Unknown errors are logged
// in full and reach the client only as fallback.
func fail(c echo.Context, err error, fallback string) error {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return echo.NewHTTPError(m.status, m.message).SetInternal(err)
		}
	}
	logging.FromContext(c.Request().Context()).Error("internal_error", "status", 500, "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, fallback).SetInternal(err)
}

// ErrorHandler renders every error as {success:false,message}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		he = fail(c, err, "Internal server error").(*echo.HTTPError)
	}

	msg := http.StatusText(he.Code)
	switch m := he.Message.(type) {
	case string:
		msg = m
	case error:
		msg = m.Error()
	case nil:
	default:
		msg = fmt.Sprint(m)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(he.Code)
		return
	}
	_ = c.JSON(he.Code, transport.MessageResponse{Success: false, Message: msg})
}
