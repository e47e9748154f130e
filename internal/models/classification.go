package models

import (
	"sort"
	"time"
)

// ChunkingStrategy selects how the backend splits a document before classifying it.
type ChunkingStrategy string

const (
	ChunkingNumber    ChunkingStrategy = "Number"
	ChunkingParagraph ChunkingStrategy = "Paragraph"
)

// Valid reports whether the strategy is one the backend understands.
func (c ChunkingStrategy) Valid() bool {
	return c == ChunkingNumber || c == ChunkingParagraph
}

// ClassificationRun is one parameterized classification job execution and its results.
// ChunkSize and ChunkOverlapSize are only present for the Number strategy.
type ClassificationRun struct {
	ID               int64                 `json:"id"`
	FileID           int64                 `json:"file_id"`
	Model            string                `json:"model"`
	ChunkingStrategy ChunkingStrategy      `json:"chunking_strategy"`
	ChunkSize        *int                  `json:"chunk_size,omitempty"`
	ChunkOverlapSize *int                  `json:"chunk_overlap_size,omitempty"`
	MultiLabel       bool                  `json:"multi_label"`
	CreatedAt        time.Time             `json:"created_at"`
	Scores           []ClassificationScore `json:"file_classification_scores"`
	Chunks           []ChunkClassification `json:"file_classification_chunks,omitempty"`
}

// ClassificationScore is a (label, confidence) pair scoped to one run.
type ClassificationScore struct {
	ID    int64   `json:"id"`
	Label string  `json:"classification"`
	Score float64 `json:"classification_score"`
}

// ChunkClassification is the label assigned to a single chunk of the document.
type ChunkClassification struct {
	ID    int64   `json:"id"`
	Chunk string  `json:"chunk"`
	Label string  `json:"chunk_classification_label"`
	Score float64 `json:"chunk_classification_score"`
}

// TopScore returns the confidence of the first score, or 0 for an empty run.
func (r ClassificationRun) TopScore() float64 {
	if len(r.Scores) == 0 {
		return 0
	}
	return r.Scores[0].Score
}

// Clone returns a copy that shares no slices or pointers with r.
func (r ClassificationRun) Clone() ClassificationRun {
	out := r
	if r.ChunkSize != nil {
		v := *r.ChunkSize
		out.ChunkSize = &v
	}
	if r.ChunkOverlapSize != nil {
		v := *r.ChunkOverlapSize
		out.ChunkOverlapSize = &v
	}
	if r.Scores != nil {
		out.Scores = append([]ClassificationScore(nil), r.Scores...)
	}
	if r.Chunks != nil {
		out.Chunks = append([]ChunkClassification(nil), r.Chunks...)
	}
	return out
}

// NormalizeRuns returns a copy of record with every run's scores sorted by
// confidence descending and runs ordered best-first by their top score.
// Both sorts are stable so equal scores keep the backend's order.
func NormalizeRuns(record *FileRecord) *FileRecord {
	out := record.Clone()
	if out == nil || len(out.Classifications) == 0 {
		return out
	}
	for i := range out.Classifications {
		scores := out.Classifications[i].Scores
		sort.SliceStable(scores, func(a, b int) bool {
			return scores[a].Score > scores[b].Score
		})
	}
	runs := out.Classifications
	sort.SliceStable(runs, func(a, b int) bool {
		return runs[a].TopScore() > runs[b].TopScore()
	})
	return out
}
