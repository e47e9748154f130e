package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/doc-classifier/dashboard/internal/api"
	"github.com/doc-classifier/dashboard/internal/archive"
	"github.com/doc-classifier/dashboard/internal/backend"
	"github.com/doc-classifier/dashboard/internal/classification"
	"github.com/doc-classifier/dashboard/internal/config"
	"github.com/doc-classifier/dashboard/internal/dashboard"
	"github.com/doc-classifier/dashboard/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath, err := resolveConfigPath()
	if err != nil {
		fmt.Printf("Failed to resolve config path: %v\n", err)
		os.Exit(1)
	}

	// Load XML configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Advanced.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatal("failed to create directories", zap.Error(err))
	}

	palette := classification.DefaultPalette()
	if cfg.Advanced.PaletteFile != "" {
		palette, err = classification.LoadPalette(cfg.Advanced.PaletteFile)
		if err != nil {
			logger.Fatal("failed to load palette", zap.String("path", cfg.Advanced.PaletteFile), zap.Error(err))
		}
	}

	runs := archive.Disabled()
	if cfg.Archive.Enabled {
		runs, err = archive.Open(cfg.Archive.Path, logger)
		if err != nil {
			logger.Fatal("failed to open run archive", zap.String("path", cfg.Archive.Path), zap.Error(err))
		}
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.RequestTimeout(), logger)
	dash := dashboard.New(cfg, client, palette, runs, logger)

	// Initial list load; the backend may come up later.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout())
	if _, err := dash.Refresh(ctx); err != nil {
		logger.Warn("initial refresh failed", zap.Error(err))
	}
	cancel()

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e, logger, strings.EqualFold(cfg.Advanced.LogLevel, "debug"))

	// Configure middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/session" ||
				path == "/api/events" ||
				path == "/api/uploads" && c.Request().Method == http.MethodGet ||
				path == "/api/health"
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/api/uploads") || path == "/api/events"
		},
		ErrorMessage: "Request timeout - backend took too long",
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration; the event stream admits the same origins
	var origins []string
	if cfg.Server.EnableCORS {
		origins = strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Dashboard:    dash,
		Version:      Version,
		Logger:       logger,
		AllowOrigins: origins,
	}))

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	archiveState := "disabled"
	if runs.Enabled() {
		archiveState = cfg.Archive.Path
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Document Classification Dashboard               ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Backend:   %-46s║\n", cfg.Backend.BaseURL)
	fmt.Printf("║  Archive:   %-46s║\n", archiveState)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-sigCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
	if err := dash.Close(); err != nil {
		logger.Warn("closing dashboard failed", zap.Error(err))
	}
}

// resolveConfigPath returns CONFIG_PATH or the config file next to the executable.
func resolveConfigPath() (string, error) {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exePath), "ClassificationDashboard.config"), nil
}
