package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/doc-classifier/dashboard/internal/backend"
	"github.com/doc-classifier/dashboard/internal/classification"
	"github.com/doc-classifier/dashboard/internal/dashboard"
	"github.com/doc-classifier/dashboard/internal/recovery"
	"github.com/doc-classifier/dashboard/internal/session"
	"github.com/doc-classifier/dashboard/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"conflict", &backend.ConflictError{Filename: "a.txt"}, http.StatusConflict, "CONFLICT"},
		{"wrapped conflict", fmt.Errorf("upload: %w", &backend.ConflictError{Filename: "a.txt"}), http.StatusConflict, "CONFLICT"},
		{"validation", &backend.ValidationError{Message: "bad"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"transport", &backend.TransportError{Op: "list files", StatusCode: 500}, http.StatusBadGateway, "BACKEND_ERROR"},
		{"file not found", fmt.Errorf("%w: 3", dashboard.ErrFileNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"unknown key", classification.ErrUnknownKey, http.StatusNotFound, "NOT_FOUND"},
		{"upload in flight", upload.ErrUploadInFlight, http.StatusConflict, "CONFLICT"},
		{"no conflict", upload.ErrNoConflict, http.StatusBadRequest, "BAD_REQUEST"},
		{"recovery closed", recovery.ErrNotOpen, http.StatusBadRequest, "BAD_REQUEST"},
		{"controller closed", session.ErrClosed, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{"api error", NewFieldError("key"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromError(tt.err)
			assert.Equal(t, tt.wantStatus, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}

	assert.Nil(t, FromError(nil))
}

func TestFromError_NotFoundMessages(t *testing.T) {
	apiErr := FromError(fmt.Errorf("opening: %w", fmt.Errorf("%w: 42", dashboard.ErrFileNotFound)))
	assert.Equal(t, "file not found: 42", apiErr.Message)

	apiErr = FromError(fmt.Errorf("%w: bart-3-false-Number-null-null", classification.ErrUnknownKey))
	assert.Equal(t, "classification key not found: bart-3-false-Number-null-null", apiErr.Message)

	apiErr = FromError(classification.ErrUnknownKey)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "classification key not found: ", apiErr.Message)
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		showDetails bool
		wantStatus  int
		wantBody    string
	}{
		{
			name:       "echo http error",
			err:        echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"),
			wantStatus: http.StatusMethodNotAllowed,
			wantBody:   `{"code":"HTTP_ERROR","message":"nope"}`,
		},
		{
			name:        "internal error hides details",
			err:         errors.New("secret"),
			showDetails: false,
			wantStatus:  http.StatusInternalServerError,
			wantBody:    `{"code":"INTERNAL_ERROR","message":"An unexpected error occurred"}`,
		},
		{
			name:        "internal error with details",
			err:         errors.New("secret"),
			showDetails: true,
			wantStatus:  http.StatusInternalServerError,
			wantBody:    `{"code":"INTERNAL_ERROR","message":"An unexpected error occurred","details":"secret"}`,
		},
		{
			name:       "conflict",
			err:        &backend.ConflictError{Filename: "a.txt"},
			wantStatus: http.StatusConflict,
			wantBody:   `{"code":"CONFLICT","message":"Filename 'a.txt' already exists","details":"a.txt"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			ErrorHandler(nil, tt.showDetails)(tt.err, c)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
