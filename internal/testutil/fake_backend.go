// fake_backend.go - In-process classification backend for tests
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/doc-classifier/dashboard/internal/models"
	"github.com/labstack/echo/v4"
)

// Upload records one upload request received by the fake.
type Upload struct {
	Filename string
	Content  []byte
	Override bool
}

// FakeBackend implements the backend REST surface in memory.
type FakeBackend struct {
	mu           sync.RWMutex
	files        map[int64]*models.FileRecord
	contents     map[int64][]byte
	nextID       int64
	nextRunID    int64
	statusScript map[int64][]models.FileStatus
	statusChecks map[int64]int
	statusFail   int
	deleteFail   int
	listFail     int
	uploads      []Upload
	processed    []models.ProcessRequest
	deletes      []int64

	server *httptest.Server
}

// NewFakeBackend creates an empty fake backend. Call Start to serve it.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		files:        make(map[int64]*models.FileRecord),
		contents:     make(map[int64][]byte),
		nextID:       1,
		nextRunID:    1,
		statusScript: make(map[int64][]models.FileStatus),
		statusChecks: make(map[int64]int),
	}
}

// Start serves the fake on a local httptest server and returns its URL.
func (f *FakeBackend) Start() string {
	e := echo.New()
	e.HideBanner = true
	e.GET("/files/list", f.handleList)
	e.POST("/files/upload", f.handleUpload)
	e.POST("/files/process", f.handleProcess)
	e.GET("/files/status/:id", f.handleStatus)
	e.DELETE("/files/delete/:id", f.handleDelete)

	f.server = httptest.NewServer(e)
	return f.server.URL
}

// Close stops the server.
func (f *FakeBackend) Close() {
	if f.server != nil {
		f.server.Close()
	}
}

// AddFile seeds a record and returns its id.
func (f *FakeBackend) AddFile(filename string, status models.FileStatus, runs ...models.ClassificationRun) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	now := time.Now().UTC()
	rec := &models.FileRecord{
		ID:        id,
		Filename:  filename,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, run := range runs {
		rec.Classifications = append(rec.Classifications, f.stampRun(id, run))
	}
	f.files[id] = rec
	return id
}

// CompleteJob appends a run to a file and marks it Completed.
func (f *FakeBackend) CompleteJob(id int64, run models.ClassificationRun) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.files[id]
	if !ok {
		return
	}
	rec.Classifications = append(rec.Classifications, f.stampRun(id, run))
	rec.Status = models.FileStatusCompleted
	rec.UpdatedAt = time.Now().UTC()
}

func (f *FakeBackend) stampRun(fileID int64, run models.ClassificationRun) models.ClassificationRun {
	run = run.Clone()
	run.FileID = fileID
	if run.ID == 0 {
		run.ID = f.nextRunID
		f.nextRunID++
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	return run
}

// ScriptStatus queues statuses returned by successive status checks for id.
// Once the script is exhausted the record's own status is returned.
func (f *FakeBackend) ScriptStatus(id int64, statuses ...models.FileStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusScript[id] = append(f.statusScript[id], statuses...)
}

// SetStatus sets a record's status directly.
func (f *FakeBackend) SetStatus(id int64, status models.FileStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.files[id]; ok {
		rec.Status = status
	}
}

// FailStatusChecks makes status checks respond with code (0 disables).
func (f *FakeBackend) FailStatusChecks(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusFail = code
}

// FailDeletes makes deletes respond with code (0 disables).
func (f *FakeBackend) FailDeletes(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteFail = code
}

// FailList makes list requests respond with code (0 disables).
func (f *FakeBackend) FailList(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFail = code
}

// StatusChecks returns how many status checks were made for id.
func (f *FakeBackend) StatusChecks(id int64) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.statusChecks[id]
}

// Uploads returns the upload requests received so far.
func (f *FakeBackend) Uploads() []Upload {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Upload(nil), f.uploads...)
}

// Processed returns the processing requests received so far.
func (f *FakeBackend) Processed() []models.ProcessRequest {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]models.ProcessRequest(nil), f.processed...)
}

// Deletes returns the ids of successful deletes.
func (f *FakeBackend) Deletes() []int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]int64(nil), f.deletes...)
}

// File returns a copy of a record.
func (f *FakeBackend) File(id int64) (*models.FileRecord, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rec, ok := f.files[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (f *FakeBackend) handleList(c echo.Context) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.listFail != 0 {
		return c.JSON(f.listFail, map[string]string{"detail": "list failed"})
	}

	ids := make([]int64, 0, len(f.files))
	for id := range f.files {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*models.FileRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.files[id].Clone())
	}
	return c.JSON(http.StatusOK, out)
}

func (f *FakeBackend) handleUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "no file provided"})
	}
	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}

	override := strings.EqualFold(c.QueryParam("override"), "true")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads = append(f.uploads, Upload{Filename: file.Filename, Content: data, Override: override})

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".txt" && ext != ".pdf" {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": fmt.Sprintf("Unsupported file type: %s", strings.TrimPrefix(ext, "."))})
	}

	now := time.Now().UTC()
	for id, rec := range f.files {
		if rec.Filename != file.Filename {
			continue
		}
		if !override {
			return c.JSON(http.StatusConflict, map[string]string{"detail": "File already exists"})
		}
		rec.Classifications = nil
		rec.Status = models.FileStatusProcessing
		rec.UpdatedAt = now
		f.contents[id] = data
		return c.JSON(http.StatusOK, map[string]any{
			"id":      id,
			"status":  rec.Status,
			"message": "File replaced successfully!",
		})
	}

	id := f.nextID
	f.nextID++
	f.files[id] = &models.FileRecord{
		ID:        id,
		Filename:  file.Filename,
		Status:    models.FileStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.contents[id] = data
	return c.JSON(http.StatusOK, map[string]any{
		"id":      id,
		"status":  models.FileStatusProcessing,
		"message": "File uploaded successfully!",
	})
}

func (f *FakeBackend) handleProcess(c echo.Context) error {
	var req models.ProcessRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": "invalid body"})
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.files[req.FileID]
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "File not found"})
	}
	f.processed = append(f.processed, req)
	rec.Status = models.FileStatusProcessing
	rec.UpdatedAt = time.Now().UTC()
	return c.JSON(http.StatusOK, map[string]any{"id": rec.ID})
}

func (f *FakeBackend) handleStatus(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": "invalid id"})
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.statusChecks[id]++
	if f.statusFail != 0 {
		return c.JSON(f.statusFail, map[string]string{"detail": "status unavailable"})
	}
	rec, ok := f.files[id]
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "File not found"})
	}
	if script := f.statusScript[id]; len(script) > 0 {
		status := script[0]
		f.statusScript[id] = script[1:]
		rec.Status = status
		return c.JSON(http.StatusOK, map[string]any{"status": status})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": rec.Status})
}

func (f *FakeBackend) handleDelete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": "invalid id"})
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteFail != 0 {
		return c.JSON(f.deleteFail, map[string]any{"status": f.deleteFail, "detail": "delete failed"})
	}
	if _, ok := f.files[id]; !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "File not found"})
	}
	delete(f.files, id)
	delete(f.contents, id)
	f.deletes = append(f.deletes, id)
	return c.JSON(http.StatusOK, map[string]any{"status": http.StatusOK, "message": "File deleted"})
}
