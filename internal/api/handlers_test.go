package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/doc-classifier/dashboard/internal/backend"
	"github.com/doc-classifier/dashboard/internal/classification"
	"github.com/doc-classifier/dashboard/internal/config"
	"github.com/doc-classifier/dashboard/internal/dashboard"
	"github.com/doc-classifier/dashboard/internal/models"
	"github.com/doc-classifier/dashboard/internal/session"
	"github.com/doc-classifier/dashboard/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type testAPI struct {
	e     *echo.Echo
	dash  *dashboard.Dashboard
	fake  *testutil.FakeBackend
	clock *testutil.ManualClock
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	fake := testutil.NewFakeBackend()
	url := fake.Start()
	t.Cleanup(fake.Close)

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = url
	clock := &testutil.ManualClock{}
	d := dashboard.New(cfg, backend.NewClient(url, 5*time.Second, nil), classification.DefaultPalette(), nil, nil,
		session.WithTickerFactory(func(dur time.Duration) session.Ticker { return clock.NewTicker(dur) }))
	t.Cleanup(func() { d.Close() })

	e := echo.New()
	SetupMiddleware(e, nil, true)
	RegisterRoutes(e, NewHandlers(&Dependencies{Dashboard: d, Version: "test"}))
	return &testAPI{e: e, dash: d, fake: fake, clock: clock}
}

func (a *testAPI) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) upload(name, content string, override bool) *httptest.ResponseRecorder {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("file", name)
	part.Write([]byte(content))
	writer.Close()

	path := "/api/uploads"
	if override {
		path += "?override=true"
	}
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
	assert.Contains(t, rec.Body.String(), `"archive":false`)
}

func TestFileRoutes(t *testing.T) {
	a := newTestAPI(t)
	run := models.ClassificationRun{
		Model:            models.ModelComprehendIt,
		ChunkingStrategy: models.ChunkingParagraph,
		Scores: []models.ClassificationScore{
			{ID: 1, Label: "Invoice", Score: 0.25},
			{ID: 2, Label: "Legal Document", Score: 0.75},
		},
	}
	id := a.fake.AddFile("deal.pdf", models.FileStatusCompleted, run)

	rec := a.do(http.MethodGet, "/api/files", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/files/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var files []models.FileRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files, 1)
	assert.Equal(t, "Legal Document", files[0].Classifications[0].Scores[0].Label)

	path := fmt.Sprintf("/api/files/%d/classifications", id)
	rec = a.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view classification.SelectionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.NotNil(t, view.SelectedKey)
	assert.Equal(t, classification.ChartPie, view.ChartKind)
	assert.Equal(t, "var(--chart-legal-document)", view.ChartData[0].Fill)

	t.Run("select run", func(t *testing.T) {
		rec := a.do(http.MethodPut, path+"/selected", map[string]string{"key": *view.SelectedKey})
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = a.do(http.MethodPut, path+"/selected", map[string]string{"key": "nope"})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = a.do(http.MethodPut, path+"/selected", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
	})

	t.Run("msgpack", func(t *testing.T) {
		rec := a.do(http.MethodGet, path+"/msgpack", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

		var decoded map[string]interface{}
		require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
		assert.Equal(t, "pie", decoded["chartKind"])
		assert.Len(t, decoded["chartData"], 2)
	})

	t.Run("archive disabled", func(t *testing.T) {
		rec := a.do(http.MethodGet, fmt.Sprintf("/api/files/%d/archive", id), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"enabled":false,"runs":[]}`, rec.Body.String())
	})

	t.Run("unknown file", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/api/files/999/classifications", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)

		rec = a.do(http.MethodGet, "/api/files/abc/classifications", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := a.do(http.MethodDelete, fmt.Sprintf("/api/files/%d", id), nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, a.dash.Files())
		assert.Equal(t, []int64{id}, a.fake.Deletes())
	})
}

func TestProcessRoute(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "defaults",
			body:       nil,
			wantStatus: http.StatusAccepted,
		},
		{
			name: "number chunking",
			body: map[string]interface{}{
				"model":             models.ModelBartLargeMNLI,
				"chunking_strategy": "Number",
				"chunk_size":        120,
				"overlap":           20,
				"multi_label":       true,
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "unknown model",
			body:       map[string]interface{}{"model": "gpt-2"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "overlap too large",
			body: map[string]interface{}{
				"chunking_strategy": "Number",
				"chunk_size":        10,
				"overlap":           10,
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t)
			id := a.fake.AddFile("a.txt", models.FileStatusUploaded)

			rec := a.do(http.MethodPost, fmt.Sprintf("/api/files/%d/process", id), tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
				assert.Empty(t, a.fake.Processed())
				return
			}

			require.Len(t, a.fake.Processed(), 1)
			rec = a.do(http.MethodGet, "/api/session", nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"fileId":%d`, id))

			rec = a.do(http.MethodDelete, "/api/session", nil)
			assert.JSONEq(t, `{"abandoned":true}`, rec.Body.String())
		})
	}
}

func TestUploadRoutes(t *testing.T) {
	a := newTestAPI(t)
	existing := a.fake.AddFile("report.pdf", models.FileStatusCompleted)

	rec := a.upload("notes.txt", "hello", false)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"File uploaded successfully!"`)

	rec = a.upload("report.pdf", "v2", false)
	require.Equal(t, http.StatusConflict, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, "CONFLICT", apiErr.Code)
	assert.Equal(t, "report.pdf", apiErr.Details)

	rec = a.do(http.MethodGet, "/api/uploads", nil)
	assert.Contains(t, rec.Body.String(), `"status":"conflict"`)
	assert.Contains(t, rec.Body.String(), `"conflictFilename":"report.pdf"`)

	rec = a.do(http.MethodPost, "/api/uploads/conflict", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/api/uploads/conflict", map[string]bool{"override": true})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"fileId":%d`, existing))

	uploads := a.fake.Uploads()
	require.Len(t, uploads, 3)
	assert.True(t, uploads[2].Override)
	assert.Equal(t, "v2", string(uploads[2].Content))

	rec = a.do(http.MethodPost, "/api/uploads/conflict", map[string]bool{"override": false})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no conflict is pending")

	rec = a.do(http.MethodDelete, "/api/uploads", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(http.MethodGet, "/api/uploads", nil)
	assert.Contains(t, rec.Body.String(), `"status":"idle"`)
}

func TestUploadRoutes_Validation(t *testing.T) {
	a := newTestAPI(t)

	rec := a.upload("tool.exe", "x", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
	assert.Empty(t, a.fake.Uploads())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader("{}"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	out := httptest.NewRecorder()
	a.e.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
	assert.Equal(t, "BAD_REQUEST", decodeError(t, out).Code)
}

func TestRecoveryRoutes(t *testing.T) {
	a := newTestAPI(t)
	id := a.fake.AddFile("scan.pdf", models.FileStatusUploaded)
	a.fake.ScriptStatus(id, models.FileStatusFailed)

	rec := a.do(http.MethodPost, "/api/recovery/delete", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "nothing to recover yet")

	rec = a.do(http.MethodPost, fmt.Sprintf("/api/files/%d/process", id), nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, a.clock.Last().Tick())
	require.Eventually(t, func() bool { return a.dash.Recovery().Open }, 2*time.Second, 10*time.Millisecond)

	rec = a.do(http.MethodGet, "/api/recovery", nil)
	assert.Contains(t, rec.Body.String(), `"filename":"scan.pdf"`)

	a.fake.FailDeletes(http.StatusInternalServerError)
	rec = a.do(http.MethodPost, "/api/recovery/delete", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "BACKEND_ERROR", decodeError(t, rec).Code)
	assert.True(t, a.dash.Recovery().Open)

	a.fake.FailDeletes(0)
	rec = a.do(http.MethodPost, "/api/recovery/delete", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"open":false`)
	assert.Equal(t, []int64{id}, a.fake.Deletes())

	rec = a.do(http.MethodPost, "/api/recovery/dismiss", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetClassifications_Direct(t *testing.T) {
	a := newTestAPI(t)
	id := a.fake.AddFile("a.txt", models.FileStatusCompleted)
	_, err := a.dash.Refresh(context.Background())
	require.NoError(t, err)

	h := NewFileHandler(a.dash)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := a.e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(id))

	if assert.NoError(t, h.HandleGetClassifications(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"chartKind":"none"`)
	}

	c.SetParamValues("0")
	err = h.HandleGetClassifications(c)
	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected APIError, got %T", err)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}
