// Package models contains domain types for the document classification dashboard.
package models

import "time"

// FileStatus represents the lifecycle status of an uploaded file.
type FileStatus string

const (
	FileStatusUploaded   FileStatus = "Uploaded"
	FileStatusProcessing FileStatus = "Processing"
	FileStatusCompleted  FileStatus = "Completed"
	FileStatusFailed     FileStatus = "Failed"
)

// IsTerminal reports whether polling should stop once this status is observed.
func (s FileStatus) IsTerminal() bool {
	return s == FileStatusCompleted || s == FileStatusFailed
}

// FileRecord is the client-side copy of a backend file and its classification runs.
type FileRecord struct {
	ID              int64               `json:"id"`
	Filename        string              `json:"filename"`
	Status          FileStatus          `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Classifications []ClassificationRun `json:"classifications"`
}

// Clone returns a deep copy so cached records are never mutated in place.
func (r *FileRecord) Clone() *FileRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Classifications != nil {
		out.Classifications = make([]ClassificationRun, len(r.Classifications))
		for i, run := range r.Classifications {
			out.Classifications[i] = run.Clone()
		}
	}
	return &out
}

// TopClassification returns the best run's leading score, if any.
func (r *FileRecord) TopClassification() (ClassificationScore, bool) {
	if r == nil || len(r.Classifications) == 0 {
		return ClassificationScore{}, false
	}
	scores := r.Classifications[0].Scores
	if len(scores) == 0 {
		return ClassificationScore{}, false
	}
	return scores[0], true
}
