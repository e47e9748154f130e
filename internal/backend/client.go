// Package backend is the HTTP client for the classification backend's REST surface.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doc-classifier/dashboard/internal/logging"
	"github.com/doc-classifier/dashboard/internal/models"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	ID      int64             `json:"id"`
	Status  models.FileStatus `json:"status"`
	Message string            `json:"message"`
}

// ProcessResponse is returned by a successful job submission. ID is the
// identifier the job status is polled by.
type ProcessResponse struct {
	ID int64 `json:"id"`
}

type statusResponse struct {
	Status models.FileStatus `json:"status"`
}

// Client talks to the classification backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the backend at baseURL. A zero timeout
// leaves requests bounded only by their context.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logging.OrNop(logger).Named("backend"),
	}
}

// ListFiles returns every file record with its classification runs.
func (c *Client) ListFiles(ctx context.Context) ([]models.FileRecord, error) {
	const op = "list files"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/files/list"), nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	var files []models.FileRecord
	if err := c.do(op, req, "", &files); err != nil {
		return nil, err
	}
	if files == nil {
		files = []models.FileRecord{}
	}
	return files, nil
}

// UploadFile uploads content as filename. With override the backend replaces
// an existing record of the same name and invalidates its runs.
func (c *Client) UploadFile(ctx context.Context, filename string, content io.Reader, override bool) (UploadResponse, error) {
	const op = "upload file"

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return UploadResponse{}, &TransportError{Op: op, Err: err}
	}
	if _, err := io.Copy(part, content); err != nil {
		return UploadResponse{}, &TransportError{Op: op, Err: fmt.Errorf("reading upload: %w", err)}
	}
	if err := writer.Close(); err != nil {
		return UploadResponse{}, &TransportError{Op: op, Err: err}
	}

	target := c.url("/files/upload")
	if override {
		target += "?override=True"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return UploadResponse{}, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp UploadResponse
	if err := c.do(op, req, filename, &resp); err != nil {
		return UploadResponse{}, err
	}
	return resp, nil
}

// SubmitProcessing starts a classification job for a file.
func (c *Client) SubmitProcessing(ctx context.Context, pr models.ProcessRequest) (ProcessResponse, error) {
	const op = "submit processing"

	payload, err := json.Marshal(pr.Normalize())
	if err != nil {
		return ProcessResponse{}, &TransportError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/files/process"), bytes.NewReader(payload))
	if err != nil {
		return ProcessResponse{}, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var resp ProcessResponse
	if err := c.do(op, req, "", &resp); err != nil {
		return ProcessResponse{}, err
	}
	if resp.ID == 0 {
		resp.ID = pr.FileID
	}
	return resp, nil
}

// JobStatus polls the processing status of a file.
func (c *Client) JobStatus(ctx context.Context, fileID int64) (models.FileStatus, error) {
	const op = "check status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(fmt.Sprintf("/files/status/%d", fileID)), nil)
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}

	var resp statusResponse
	if err := c.do(op, req, "", &resp); err != nil {
		return "", err
	}
	if resp.Status == "" {
		return "", &TransportError{Op: op, StatusCode: http.StatusOK, Message: "response has no status"}
	}
	return resp.Status, nil
}

// DeleteFile removes a file record and all of its classification runs.
// Any 2xx response is success.
func (c *Client) DeleteFile(ctx context.Context, fileID int64) error {
	const op = "delete file"
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url(fmt.Sprintf("/files/delete/%d", fileID)), nil)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return c.do(op, req, "", nil)
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// do executes req and decodes a 2xx JSON body into out (skipped when out is nil).
// Non-2xx responses are converted into the package's error kinds.
func (c *Client) do(op string, req *http.Request, filename string, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("op", op),
			zap.String("url", redact(req.URL)),
			zap.Error(err))
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request complete",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(op, resp.StatusCode, body, filename)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func statusError(op string, status int, body []byte, filename string) error {
	msg := bodyMessage(body)
	switch status {
	case http.StatusConflict:
		return &ConflictError{Filename: filename}
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &ValidationError{Message: msg}
	default:
		return &TransportError{Op: op, StatusCode: status, Message: msg}
	}
}

// bodyMessage extracts a user-facing message from an error body. The backend
// uses "message" for its own errors and "detail" for framework errors.
func bodyMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, field := range []string{"message", "detail"} {
		if s, ok := payload[field].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func redact(u *url.URL) string {
	clean := *u
	clean.User = nil
	clean.RawQuery = ""
	return clean.String()
}
