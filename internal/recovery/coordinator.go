// Package recovery handles the dialog shown after a processing job fails.
package recovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/doc-classifier/dashboard/internal/backend"
	"github.com/doc-classifier/dashboard/internal/logging"
	"go.uber.org/zap"
)

var (
	ErrNotOpen        = errors.New("no failed file to recover")
	ErrDeleteInFlight = errors.New("delete already in progress")
)

// Deleter removes a file on the backend.
type Deleter interface {
	DeleteFile(ctx context.Context, fileID int64) error
}

// Remover drops a record from the local cache.
type Remover interface {
	Remove(id int64) bool
}

// State is a snapshot of the recovery dialog.
type State struct {
	Open      bool      `json:"open"`
	FileID    int64     `json:"fileId,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	Deleting  bool      `json:"deleting"`
	LastError string    `json:"lastError,omitempty"`
	OpenedAt  time.Time `json:"openedAt,omitempty"`
}

// Coordinator lets the user dismiss a failed file or delete it.
type Coordinator struct {
	mu      sync.Mutex
	deleter Deleter
	cache   Remover
	logger  *zap.Logger
	state   State
}

// NewCoordinator creates a closed coordinator.
func NewCoordinator(deleter Deleter, cache Remover, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		deleter: deleter,
		cache:   cache,
		logger:  logging.OrNop(logger).Named("recovery"),
	}
}

// Open shows the dialog for a failed file, replacing any dialog already open.
func (c *Coordinator) Open(fileID int64, filename string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = State{
		Open:     true,
		FileID:   fileID,
		Filename: filename,
		OpenedAt: time.Now(),
	}
	c.logger.Info("recovery opened", zap.Int64("file_id", fileID), zap.String("filename", filename))
}

// Dismiss closes the dialog. The record and its failed status stay as they are.
func (c *Coordinator) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Deleting {
		return
	}
	c.state = State{}
}

// Delete removes the failed file remotely and then locally. On failure the
// dialog stays open with LastError set so the user can retry.
func (c *Coordinator) Delete(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.Open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if c.state.Deleting {
		c.mu.Unlock()
		return ErrDeleteInFlight
	}
	c.state.Deleting = true
	c.state.LastError = ""
	fileID := c.state.FileID
	c.mu.Unlock()

	err := c.deleter.DeleteFile(ctx, fileID)

	c.mu.Lock()
	defer c.mu.Unlock()
	// Open may have replaced the dialog while the request was out; that
	// dialog belongs to another file and is left untouched.
	current := c.state.Open && c.state.FileID == fileID && c.state.Deleting

	if err != nil {
		c.logger.Error("delete failed", zap.Int64("file_id", fileID), zap.Error(err))
		if current {
			c.state.Deleting = false
			c.state.LastError = backend.UserMessage(err, "Failed to delete the file. Please try again.")
		}
		return err
	}

	if c.cache != nil {
		c.cache.Remove(fileID)
	}
	c.logger.Info("failed file deleted", zap.Int64("file_id", fileID))
	if current {
		c.state = State{}
	}
	return nil
}

// State returns a snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
