// handlers_upload.go - File upload operation handlers
package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/doc-classifier/dashboard/internal/upload"
	"github.com/labstack/echo/v4"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	dashboard Dashboard
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(d Dashboard) UploadHandler {
	return &UploadHandlerImpl{dashboard: d}
}

// HandleUploadFile accepts a multipart file and submits it to the backend.
// A filename that already exists answers 409 unless override=true is set.
func (h *UploadHandlerImpl) HandleUploadFile(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	override := false
	if raw := c.QueryParam("override"); raw != "" {
		override, err = strconv.ParseBool(raw)
		if err != nil {
			return NewFieldError("override")
		}
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return NewInternalError("failed to read uploaded file", err)
	}

	res, err := h.dashboard.Upload(c.Request().Context(), upload.File{
		Name:     file.Filename,
		Content:  content,
		Encoding: c.FormValue("encoding"),
	}, override)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

// HandleGetUploadState returns the resolver state
func (h *UploadHandlerImpl) HandleGetUploadState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.dashboard.UploadState())
}

// HandleResolveConflict overrides or cancels a pending conflict
func (h *UploadHandlerImpl) HandleResolveConflict(c echo.Context) error {
	var req resolveConflictRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Override == nil {
		return NewFieldError("override")
	}

	res, err := h.dashboard.ResolveConflict(c.Request().Context(), *req.Override)
	if err != nil {
		return FromError(err)
	}
	if !*req.Override {
		return c.JSON(http.StatusOK, h.dashboard.UploadState())
	}
	return c.JSON(http.StatusCreated, res)
}

// HandleCancelUpload discards the selected file
func (h *UploadHandlerImpl) HandleCancelUpload(c echo.Context) error {
	if err := h.dashboard.CancelUpload(); err != nil {
		return FromError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type resolveConflictRequest struct {
	Override *bool `json:"override"`
}
