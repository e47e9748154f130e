// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Dashboard Dashboard
	Version   string
	Logger    *zap.Logger
	// AllowOrigins lists browser origins admitted to the event stream.
	AllowOrigins []string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Files   FileHandler
	Upload  UploadHandler
	Session SessionHandler
	Events  EventsHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Dashboard),
		Files:   NewFileHandler(deps.Dashboard),
		Upload:  NewUploadHandler(deps.Dashboard),
		Session: NewSessionHandler(deps.Dashboard),
		Events:  NewEventHandler(deps.Dashboard, deps.Logger, deps.AllowOrigins),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	// File list and classification routes
	fileGroup := e.Group("/api/files")
	fileGroup.GET("", handlers.Files.HandleListFiles)
	fileGroup.POST("/refresh", handlers.Files.HandleRefreshFiles)
	fileGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)
	fileGroup.POST("/:id/process", handlers.Files.HandleProcessFile)
	fileGroup.GET("/:id/classifications", handlers.Files.HandleGetClassifications)
	fileGroup.PUT("/:id/classifications/selected", handlers.Files.HandleSelectRun)
	fileGroup.GET("/:id/classifications/msgpack", handlers.Files.HandleGetClassificationsMsgpack)
	fileGroup.GET("/:id/archive", handlers.Files.HandleGetArchive)

	// Upload routes
	uploadGroup := e.Group("/api/uploads")
	uploadGroup.POST("", handlers.Upload.HandleUploadFile)
	uploadGroup.GET("", handlers.Upload.HandleGetUploadState)
	uploadGroup.POST("/conflict", handlers.Upload.HandleResolveConflict)
	uploadGroup.DELETE("", handlers.Upload.HandleCancelUpload)

	// Session and recovery routes
	e.GET("/api/session", handlers.Session.HandleGetSession)
	e.DELETE("/api/session", handlers.Session.HandleAbandonSession)
	recoveryGroup := e.Group("/api/recovery")
	recoveryGroup.GET("", handlers.Session.HandleGetRecovery)
	recoveryGroup.POST("/dismiss", handlers.Session.HandleDismissRecovery)
	recoveryGroup.POST("/delete", handlers.Session.HandleDeleteFailed)

	// Event stream
	e.GET("/api/events", handlers.Events.HandleEvents)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, logger *zap.Logger, showDetails bool) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler(logger, showDetails)

	// Add recovery
	e.Use(middleware.Recover())
}
