// Package storage holds the client-side cache of file records.
package storage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/doc-classifier/dashboard/internal/models"
)

// Store defines the interface for the cached file list.
type Store interface {
	Replace(records []models.FileRecord)
	Snapshot() []models.FileRecord
	Find(id int64) (*models.FileRecord, bool)
	Filename(id int64) string
	Remove(id int64) bool
	PatchStatus(id int64, status models.FileStatus) bool
	RefreshedAt() time.Time
}

var _ Store = (*FileCache)(nil)

// FileCache implements Store with an immutable slice that is swapped
// atomically. Readers never lock; writers build a new slice.
type FileCache struct {
	mu          sync.Mutex // serializes writers
	records     atomic.Pointer[[]models.FileRecord]
	refreshedAt atomic.Pointer[time.Time]
}

// NewFileCache creates an empty cache.
func NewFileCache() *FileCache {
	c := &FileCache{}
	empty := []models.FileRecord{}
	c.records.Store(&empty)
	return c
}

// Replace swaps in a new list wholesale. The records are copied.
func (c *FileCache) Replace(records []models.FileRecord) {
	next := make([]models.FileRecord, len(records))
	for i := range records {
		next[i] = *records[i].Clone()
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records.Store(&next)
	c.refreshedAt.Store(&now)
}

// Snapshot returns the current list. It is shared and must not be modified.
func (c *FileCache) Snapshot() []models.FileRecord {
	return *c.records.Load()
}

// Find returns a copy of the record with id.
func (c *FileCache) Find(id int64) (*models.FileRecord, bool) {
	records := c.Snapshot()
	for i := range records {
		if records[i].ID == id {
			return records[i].Clone(), true
		}
	}
	return nil, false
}

// Filename returns the record's filename, or "" if it is not cached.
func (c *FileCache) Filename(id int64) string {
	for _, rec := range c.Snapshot() {
		if rec.ID == id {
			return rec.Filename
		}
	}
	return ""
}

// Remove drops the record with id, together with its runs.
func (c *FileCache) Remove(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := *c.records.Load()
	next := make([]models.FileRecord, 0, len(current))
	found := false
	for _, rec := range current {
		if rec.ID == id {
			found = true
			continue
		}
		next = append(next, rec)
	}
	if !found {
		return false
	}
	c.records.Store(&next)
	return true
}

// PatchStatus replaces the status of one record, leaving other records shared.
func (c *FileCache) PatchStatus(id int64, status models.FileStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := *c.records.Load()
	for i, rec := range current {
		if rec.ID != id {
			continue
		}
		next := make([]models.FileRecord, len(current))
		copy(next, current)
		patched := rec.Clone()
		patched.Status = status
		next[i] = *patched
		c.records.Store(&next)
		return true
	}
	return false
}

// RefreshedAt returns when Replace last ran, or the zero time.
func (c *FileCache) RefreshedAt() time.Time {
	if t := c.refreshedAt.Load(); t != nil {
		return *t
	}
	return time.Time{}
}
