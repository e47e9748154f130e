// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/doc-classifier/dashboard/internal/archive"
	"github.com/doc-classifier/dashboard/internal/classification"
	"github.com/doc-classifier/dashboard/internal/dashboard"
	"github.com/doc-classifier/dashboard/internal/models"
	"github.com/doc-classifier/dashboard/internal/recovery"
	"github.com/doc-classifier/dashboard/internal/session"
	"github.com/doc-classifier/dashboard/internal/upload"
	"github.com/labstack/echo/v4"
)

// FileHandler handles the file list, processing and classification views
type FileHandler interface {
	HandleListFiles(c echo.Context) error
	HandleRefreshFiles(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleProcessFile(c echo.Context) error
	HandleGetClassifications(c echo.Context) error
	HandleSelectRun(c echo.Context) error
	HandleGetClassificationsMsgpack(c echo.Context) error
	HandleGetArchive(c echo.Context) error
}

// UploadHandler handles file upload operations
type UploadHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleGetUploadState(c echo.Context) error
	HandleResolveConflict(c echo.Context) error
	HandleCancelUpload(c echo.Context) error
}

// SessionHandler handles the polling session and failure recovery
type SessionHandler interface {
	HandleGetSession(c echo.Context) error
	HandleAbandonSession(c echo.Context) error
	HandleGetRecovery(c echo.Context) error
	HandleDismissRecovery(c echo.Context) error
	HandleDeleteFailed(c echo.Context) error
}

// EventsHandler streams dashboard events over a WebSocket
type EventsHandler interface {
	HandleEvents(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Dashboard defines the operations the handlers need.
// This allows mocking in tests
type Dashboard interface {
	Refresh(ctx context.Context) ([]models.FileRecord, error)
	Files() []models.FileRecord
	File(id int64) (*models.FileRecord, error)
	LastRefreshError() error

	Upload(ctx context.Context, f upload.File, override bool) (upload.Result, error)
	ResolveConflict(ctx context.Context, override bool) (upload.Result, error)
	CancelUpload() error
	UploadState() upload.State

	Process(ctx context.Context, req models.ProcessRequest) (session.Snapshot, error)
	OpenFile(id int64) (classification.SelectionView, error)
	SelectRun(key string) (classification.SelectionView, error)
	Selection() classification.SelectionView
	DeleteFile(ctx context.Context, id int64) error
	History(ctx context.Context, id int64) ([]archive.ArchivedRun, error)
	ArchiveEnabled() bool

	Session() (session.Snapshot, bool)
	LastOutcome() (session.Outcome, bool)
	AbandonSession() bool

	Recovery() recovery.State
	DismissRecovery()
	DeleteFailed(ctx context.Context) error

	Subscribe() (<-chan dashboard.Event, func())
}
