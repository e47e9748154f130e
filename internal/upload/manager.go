// Package upload drives a single file upload through selection, conflict
// resolution and completion.
package upload

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/doc-classifier/dashboard/internal/backend"
	"github.com/doc-classifier/dashboard/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status represents where the current upload attempt stands.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSelected  Status = "selected"
	StatusUploading Status = "uploading"
	StatusConflict  Status = "conflict"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// Messages shown when the backend gives no reason.
const (
	MessageUnknownError = "An unknown error occurred."
	MessageUploadFailed = "An error occurred during upload. Please try again."
	MessageUploaded     = "File uploaded successfully!"
)

var (
	ErrUploadInFlight = errors.New("an upload is already in progress")
	ErrNoFile         = errors.New("no file selected")
	ErrNoConflict     = errors.New("no upload conflict to resolve")
)

// File is a document chosen for upload. Encoding "gzip" means Content is
// compressed and is inflated when chosen.
type File struct {
	Name     string
	Content  []byte
	Encoding string
}

// Uploader sends a file to the backend.
type Uploader interface {
	UploadFile(ctx context.Context, filename string, content io.Reader, override bool) (backend.UploadResponse, error)
}

// Limits are the client-side checks applied before any request.
type Limits struct {
	AllowedExtensions []string // lowercased, with leading dot; empty allows all
	MaxBytes          int64    // 0 means unlimited
}

// State is a snapshot of the resolver.
type State struct {
	Status           Status     `json:"status"`
	Filename         string     `json:"filename,omitempty"`
	Size             int        `json:"size,omitempty"`
	ConflictFilename string     `json:"conflictFilename,omitempty"`
	Message          string     `json:"message,omitempty"`
	AttemptID        string     `json:"attemptId,omitempty"`
	FileID           int64      `json:"fileId,omitempty"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// Result describes a successful upload.
type Result struct {
	FileID   int64  `json:"fileId"`
	Filename string `json:"filename"`
	Message  string `json:"message"`
	Replaced bool   `json:"replaced"`
}

// Resolver handles one upload at a time.
type Resolver struct {
	mu        sync.Mutex
	uploader  Uploader
	limits    Limits
	onSuccess func(Result)
	logger    *zap.Logger

	state State
	file  *File
}

// NewResolver creates an idle resolver. onSuccess, if set, runs after each
// successful upload, outside the resolver's lock.
func NewResolver(uploader Uploader, limits Limits, onSuccess func(Result), logger *zap.Logger) *Resolver {
	return &Resolver{
		uploader:  uploader,
		limits:    limits,
		onSuccess: onSuccess,
		logger:    logging.OrNop(logger).Named("upload"),
		state:     State{Status: StatusIdle, UpdatedAt: time.Now()},
	}
}

// Choose selects a file and resets any previous status or message.
func (r *Resolver) Choose(f File) error {
	if f.Name == "" {
		return &backend.ValidationError{Field: "file", Message: "file name is required"}
	}
	content, err := inflate(f, r.limits.MaxBytes)
	if err != nil {
		return &backend.ValidationError{Field: "file", Message: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Status == StatusUploading {
		return ErrUploadInFlight
	}
	r.file = &File{Name: filepath.Base(f.Name), Content: content}
	r.state = State{
		Status:    StatusSelected,
		Filename:  r.file.Name,
		Size:      len(content),
		UpdatedAt: time.Now(),
	}
	return nil
}

// Submit uploads the selected file. Without override a filename that already
// exists moves the resolver to the conflict state and returns a
// *backend.ConflictError.
func (r *Resolver) Submit(ctx context.Context, override bool) (Result, error) {
	r.mu.Lock()
	return r.submit(ctx, r.file, override)
}

// submit uploads file. It is called with r.mu held and releases it.
func (r *Resolver) submit(ctx context.Context, file *File, override bool) (Result, error) {
	if r.state.Status == StatusUploading {
		r.mu.Unlock()
		return Result{}, ErrUploadInFlight
	}
	if file == nil {
		r.mu.Unlock()
		return Result{}, ErrNoFile
	}
	if err := r.validate(file); err != nil {
		r.state.Status = StatusError
		r.state.Message = err.Error()
		r.state.UpdatedAt = time.Now()
		r.mu.Unlock()
		return Result{}, err
	}

	attempt := uuid.New().String()
	r.state.Status = StatusUploading
	r.state.AttemptID = attempt
	r.state.ConflictFilename = ""
	r.state.Message = ""
	r.state.UpdatedAt = time.Now()
	r.mu.Unlock()

	log := r.logger.With(
		zap.String("attempt", logging.ShortID(attempt)),
		zap.String("filename", file.Name),
		zap.Bool("override", override))
	log.Info("uploading", zap.Int("bytes", len(file.Content)))

	resp, err := r.uploader.UploadFile(ctx, file.Name, bytes.NewReader(file.Content), override)

	r.mu.Lock()
	now := time.Now()
	r.state.UpdatedAt = now

	var conflict *backend.ConflictError
	switch {
	case err == nil:
		result := Result{
			FileID:   resp.ID,
			Filename: file.Name,
			Message:  resp.Message,
			Replaced: override,
		}
		if result.Message == "" {
			result.Message = MessageUploaded
		}
		r.file = nil
		r.state.Status = StatusSuccess
		r.state.Message = result.Message
		r.state.FileID = resp.ID
		r.state.CompletedAt = &now
		r.mu.Unlock()

		log.Info("upload complete", zap.Int64("file_id", resp.ID))
		if r.onSuccess != nil {
			r.onSuccess(result)
		}
		return result, nil

	case errors.As(err, &conflict):
		if conflict.Filename == "" {
			conflict.Filename = file.Name
		}
		r.state.Status = StatusConflict
		r.state.ConflictFilename = conflict.Filename
		r.state.Message = backend.UserMessage(conflict, "")
		r.mu.Unlock()

		log.Info("upload conflict")
		return Result{}, conflict

	default:
		r.state.Status = StatusError
		r.state.Message = errorMessage(err)
		r.mu.Unlock()

		log.Warn("upload failed", zap.Error(err))
		return Result{}, fmt.Errorf("uploading %s: %w", file.Name, err)
	}
}

// ResolveConflict answers a pending conflict. Cancelling returns to idle and
// discards the file. Overriding resubmits the same bytes with override set.
func (r *Resolver) ResolveConflict(ctx context.Context, override bool) (Result, error) {
	r.mu.Lock()
	if r.state.Status != StatusConflict {
		r.mu.Unlock()
		return Result{}, ErrNoConflict
	}
	if !override {
		r.reset()
		r.mu.Unlock()
		return Result{}, nil
	}
	return r.submit(ctx, r.file, true)
}

// Cancel discards the selection and returns to idle.
func (r *Resolver) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Status == StatusUploading {
		return ErrUploadInFlight
	}
	r.reset()
	return nil
}

// State returns a snapshot.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Resolver) reset() {
	r.file = nil
	r.state = State{Status: StatusIdle, UpdatedAt: time.Now()}
}

func (r *Resolver) validate(f *File) error {
	if len(r.limits.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(f.Name))
		allowed := false
		for _, a := range r.limits.AllowedExtensions {
			if a == ext {
				allowed = true
				break
			}
		}
		if !allowed {
			return &backend.ValidationError{
				Message: fmt.Sprintf("Unsupported file type %q. Allowed: %s", ext, strings.Join(r.limits.AllowedExtensions, ", ")),
			}
		}
	}
	if r.limits.MaxBytes > 0 && int64(len(f.Content)) > r.limits.MaxBytes {
		return &backend.ValidationError{
			Message: fmt.Sprintf("File is too large (%d bytes, limit %d)", len(f.Content), r.limits.MaxBytes),
		}
	}
	return nil
}

// errorMessage picks the message for a failed upload: the backend's own
// reason when it sent one, otherwise a generic message.
func errorMessage(err error) string {
	var transport *backend.TransportError
	if errors.As(err, &transport) && transport.Message == "" {
		if transport.StatusCode == 0 {
			return MessageUploadFailed
		}
		return MessageUnknownError
	}
	return backend.UserMessage(err, MessageUploadFailed)
}

// inflate returns the plain content of f. Decompressed output is capped at
// limit bytes when limit is positive.
func inflate(f File, limit int64) ([]byte, error) {
	if !strings.EqualFold(f.Encoding, "gzip") {
		return f.Content, nil
	}
	if len(f.Content) < 2 || f.Content[0] != 0x1f || f.Content[1] != 0x8b {
		return nil, fmt.Errorf("not a gzip file")
	}
	zr, err := gzip.NewReader(bytes.NewReader(f.Content))
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer zr.Close()

	var src io.Reader = zr
	if limit > 0 {
		src = io.LimitReader(zr, limit+1)
	}
	out, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	if limit > 0 && int64(len(out)) > limit {
		return nil, fmt.Errorf("File is too large when decompressed (limit %d bytes)", limit)
	}
	return out, nil
}
