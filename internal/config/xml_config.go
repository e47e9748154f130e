// Package config provides XML-based configuration for the dashboard core.
// The configuration is loaded once at process start and passed explicitly
// to every component that needs it.
package config

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"ClassificationDashboard"`

	Server   ServerConfig   `xml:"Server"`
	Backend  BackendConfig  `xml:"Backend"`
	Polling  PollingConfig  `xml:"Polling"`
	Upload   UploadConfig   `xml:"Upload"`
	Archive  ArchiveConfig  `xml:"Archive"`
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains settings for the local HTTP surface the UI talks to
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// BackendConfig points at the classification backend
type BackendConfig struct {
	BaseURL               string `xml:"BaseURL"`
	RequestTimeoutSeconds int    `xml:"RequestTimeoutSeconds"`
}

// PollingConfig controls job status polling
type PollingConfig struct {
	IntervalMillis int `xml:"IntervalMilliseconds"`
}

// UploadConfig contains client-side upload validation
type UploadConfig struct {
	AllowedFileTypes string `xml:"AllowedFileTypes"`
	MaxUploadSize    string `xml:"MaxUploadSize"`
}

// ArchiveConfig controls the local run archive
type ArchiveConfig struct {
	Enabled bool   `xml:"Enabled"`
	Path    string `xml:"Path"`
}

// AdvancedConfig contains logging and presentation options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	PaletteFile          string `xml:"PaletteFile"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "127.0.0.1",
			EnableCORS:   true,
			AllowOrigins: "http://localhost:3000",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "50M",
		},
		Backend: BackendConfig{
			BaseURL:               "http://localhost:8000",
			RequestTimeoutSeconds: 30,
		},
		Polling: PollingConfig{
			IntervalMillis: 2000,
		},
		Upload: UploadConfig{
			AllowedFileTypes: ".txt,.pdf,.docx",
			MaxUploadSize:    "25M",
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Path:    "./data/runs.duckdb",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from an XML file, creating it with defaults
// when it does not exist yet.
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, config.Validate()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to an XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Classification Dashboard Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects configurations the components cannot run with
func (c *AppConfig) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid Backend.BaseURL %q", c.Backend.BaseURL)
	}
	if c.Polling.IntervalMillis <= 0 {
		return fmt.Errorf("Polling.IntervalMilliseconds must be positive, got %d", c.Polling.IntervalMillis)
	}
	if _, err := ParseSize(c.Upload.MaxUploadSize); err != nil {
		return fmt.Errorf("invalid Upload.MaxUploadSize: %w", err)
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("Archive.Path is required when the archive is enabled")
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if backendURL := os.Getenv("BACKEND_URL"); backendURL != "" {
		c.Backend.BaseURL = backendURL
	}

	if interval := os.Getenv("POLL_INTERVAL_MS"); interval != "" {
		if ms, err := strconv.Atoi(interval); err == nil {
			c.Polling.IntervalMillis = ms
		}
	}

	if archivePath := os.Getenv("ARCHIVE_PATH"); archivePath != "" {
		c.Archive.Enabled = true
		c.Archive.Path = archivePath
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Archive.Path != "" && !filepath.IsAbs(c.Archive.Path) {
		c.Archive.Path = filepath.Join(configDir, c.Archive.Path)
	}
	if c.Advanced.PaletteFile != "" && !filepath.IsAbs(c.Advanced.PaletteFile) {
		c.Advanced.PaletteFile = filepath.Join(configDir, c.Advanced.PaletteFile)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// PollInterval returns the fixed status polling interval
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalMillis) * time.Millisecond
}

// RequestTimeout returns the per-request timeout for backend calls
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeoutSeconds) * time.Second
}

// AllowedExtensions returns the lowercased upload extensions, each with a leading dot
func (c *AppConfig) AllowedExtensions() []string {
	var exts []string
	for _, ext := range strings.Split(c.Upload.AllowedFileTypes, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return exts
}

// MaxUploadBytes returns the maximum upload size in bytes (0 means unlimited)
func (c *AppConfig) MaxUploadBytes() int64 {
	n, _ := ParseSize(c.Upload.MaxUploadSize)
	return n
}

// EnsureDirectories creates the directories the configured files live in
func (c *AppConfig) EnsureDirectories() error {
	if !c.Archive.Enabled {
		return nil
	}
	dir := filepath.Dir(c.Archive.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// ParseSize parses sizes such as "512K", "25M", "2G" or a plain byte count.
// An empty string means unlimited and yields 0.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	s = strings.TrimSuffix(s, "B")

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * multiplier, nil
}
