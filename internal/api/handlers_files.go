// handlers_files.go - File list, processing and classification handlers
package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/doc-classifier/dashboard/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	dashboard Dashboard
}

// NewFileHandler creates a new file handler instance
func NewFileHandler(d Dashboard) FileHandler {
	return &FileHandlerImpl{dashboard: d}
}

// HandleListFiles returns the cached file list
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	return c.JSON(http.StatusOK, h.dashboard.Files())
}

// HandleRefreshFiles reloads the list from the backend
func (h *FileHandlerImpl) HandleRefreshFiles(c echo.Context) error {
	files, err := h.dashboard.Refresh(c.Request().Context())
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleDeleteFile removes a file and all of its runs
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id, err := fileIDParam(c)
	if err != nil {
		return err
	}
	if err := h.dashboard.DeleteFile(c.Request().Context(), id); err != nil {
		return FromError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleProcessFile submits a classification job for the file and starts polling it
func (h *FileHandlerImpl) HandleProcessFile(c echo.Context) error {
	id, err := fileIDParam(c)
	if err != nil {
		return err
	}

	var req processFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	snap, err := h.dashboard.Process(c.Request().Context(), req.toProcessRequest(id))
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusAccepted, snap)
}

// HandleGetClassifications opens the file in the selector and returns the view
func (h *FileHandlerImpl) HandleGetClassifications(c echo.Context) error {
	id, err := fileIDParam(c)
	if err != nil {
		return err
	}
	view, err := h.dashboard.OpenFile(id)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, view)
}

// HandleSelectRun switches the selected run of the open file
func (h *FileHandlerImpl) HandleSelectRun(c echo.Context) error {
	id, err := fileIDParam(c)
	if err != nil {
		return err
	}

	var req selectRunRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Key == "" {
		return NewFieldError("key")
	}

	if open := h.dashboard.Selection().FileID; open == nil || *open != id {
		if _, err := h.dashboard.OpenFile(id); err != nil {
			return FromError(err)
		}
	}

	view, err := h.dashboard.SelectRun(req.Key)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, view)
}

// HandleGetClassificationsMsgpack returns the selection view in MessagePack format
func (h *FileHandlerImpl) HandleGetClassificationsMsgpack(c echo.Context) error {
	id, err := fileIDParam(c)
	if err != nil {
		return err
	}
	view, err := h.dashboard.OpenFile(id)
	if err != nil {
		return FromError(err)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(view); err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", buf.Bytes())
}

// HandleGetArchive returns archived runs of the file, newest first
func (h *FileHandlerImpl) HandleGetArchive(c echo.Context) error {
	id, err := fileIDParam(c)
	if err != nil {
		return err
	}
	runs, err := h.dashboard.History(c.Request().Context(), id)
	if err != nil {
		return NewInternalError("failed to read archive", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"enabled": h.dashboard.ArchiveEnabled(),
		"runs":    runs,
	})
}

// Request types

type processFileRequest struct {
	Model            *string                  `json:"model"`
	ChunkingStrategy *models.ChunkingStrategy `json:"chunking_strategy"`
	ChunkSize        *int                     `json:"chunk_size"`
	Overlap          *int                     `json:"overlap"`
	MultiLabel       *bool                    `json:"multi_label"`
}

// toProcessRequest overlays the request on the form defaults
func (r *processFileRequest) toProcessRequest(fileID int64) models.ProcessRequest {
	pr := models.NewProcessRequest(fileID)
	if r.Model != nil {
		pr.Model = *r.Model
	}
	if r.ChunkingStrategy != nil {
		pr.ChunkingStrategy = *r.ChunkingStrategy
	}
	if r.ChunkSize != nil {
		pr.ChunkSize = r.ChunkSize
	}
	if r.Overlap != nil {
		pr.Overlap = r.Overlap
	}
	if r.MultiLabel != nil {
		pr.MultiLabel = *r.MultiLabel
	}
	return pr
}

type selectRunRequest struct {
	Key string `json:"key"`
}

// Helper functions

func fileIDParam(c echo.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewBadRequestError("invalid file id: "+raw, nil)
	}
	return id, nil
}
