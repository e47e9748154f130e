// errors.go - Structured error handling for API responses
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/doc-classifier/dashboard/internal/backend"
	"github.com/doc-classifier/dashboard/internal/classification"
	"github.com/doc-classifier/dashboard/internal/dashboard"
	"github.com/doc-classifier/dashboard/internal/recovery"
	"github.com/doc-classifier/dashboard/internal/session"
	"github.com/doc-classifier/dashboard/internal/upload"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error
func NewValidationError(message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: message,
	}
}

// NewFieldError creates a 400 validation error for a specific field
func NewFieldError(field string) *APIError {
	return NewValidationError(fmt.Sprintf("validation failed for field: %s", field))
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewBackendError creates a 502 error for a failed backend call
func NewBackendError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadGateway,
		Code:    "BACKEND_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// FromError maps domain errors onto API errors
func FromError(err error) *APIError {
	var (
		apiErr     *APIError
		conflict   *backend.ConflictError
		validation *backend.ValidationError
		transport  *backend.TransportError
	)

	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &conflict):
		e := NewConflictError(backend.UserMessage(conflict, ""))
		e.Details = conflict.Filename
		return e
	case errors.As(err, &validation):
		return NewValidationError(validation.Error())
	case errors.As(err, &transport):
		return NewBackendError(backend.UserMessage(transport, "backend request failed"), transport)
	case errors.Is(err, dashboard.ErrFileNotFound):
		return NewNotFoundError("file", subject(err, dashboard.ErrFileNotFound))
	case errors.Is(err, classification.ErrUnknownKey):
		return NewNotFoundError("classification key", subject(err, classification.ErrUnknownKey))
	case errors.Is(err, upload.ErrUploadInFlight), errors.Is(err, recovery.ErrDeleteInFlight):
		return NewConflictError(err.Error())
	case errors.Is(err, upload.ErrNoFile), errors.Is(err, upload.ErrNoConflict),
		errors.Is(err, recovery.ErrNotOpen), errors.Is(err, session.ErrInvalidJob):
		return NewBadRequestError(err.Error(), nil)
	case errors.Is(err, session.ErrClosed):
		return NewServiceUnavailableError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return &APIError{Status: http.StatusGatewayTimeout, Code: "TIMEOUT", Message: "request timed out"}
	default:
		return NewInternalError("An unexpected error occurred", err)
	}
}

// ErrorHandler returns the Echo error handler.
// Usage: e.HTTPErrorHandler = api.ErrorHandler(logger, showDetails)
func ErrorHandler(logger *zap.Logger, showDetails bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		} else {
			apiErr = FromError(err)
		}

		if apiErr.Status >= http.StatusInternalServerError && logger != nil {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err))
		}

		out := *apiErr
		if !showDetails && out.Status == http.StatusInternalServerError {
			out.Details = ""
		}
		c.JSON(out.Status, &out)
	}
}

// subject returns what follows sentinel in err's message ("<sentinel>: <subject>").
func subject(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.LastIndex(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return ""
}
