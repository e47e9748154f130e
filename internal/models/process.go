package models

import (
	"errors"
	"fmt"
)

// Models the backend can load for zero-shot classification.
const (
	ModelBartLargeMNLI    = "facebook/bart-large-mnli"
	ModelComprehendIt     = "knowledgator/comprehend_it-base"
	ModelQwen3Embedding06 = "Qwen/Qwen3-Embedding-0.6B"
)

// KnownModels lists the model identifiers offered to the user.
var KnownModels = []string{
	ModelBartLargeMNLI,
	ModelComprehendIt,
	ModelQwen3Embedding06,
}

// Defaults used when the user does not override them.
const (
	DefaultModel        = ModelComprehendIt
	DefaultChunking     = ChunkingParagraph
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 50
)

// ProcessRequest is the body of a processing job submission.
type ProcessRequest struct {
	FileID           int64            `json:"file_id"`
	Model            string           `json:"model,omitempty"`
	ChunkingStrategy ChunkingStrategy `json:"chunking_strategy"`
	ChunkSize        *int             `json:"chunk_size,omitempty"`
	Overlap          *int             `json:"overlap,omitempty"`
	MultiLabel       bool             `json:"multi_label"`
}

// NewProcessRequest returns a request for fileID populated with the defaults.
func NewProcessRequest(fileID int64) ProcessRequest {
	size, overlap := DefaultChunkSize, DefaultChunkOverlap
	return ProcessRequest{
		FileID:           fileID,
		Model:            DefaultModel,
		ChunkingStrategy: DefaultChunking,
		ChunkSize:        &size,
		Overlap:          &overlap,
	}
}

// Normalize drops chunk parameters that only apply to the Number strategy.
func (r ProcessRequest) Normalize() ProcessRequest {
	if r.ChunkingStrategy != ChunkingNumber {
		r.ChunkSize = nil
		r.Overlap = nil
	}
	return r
}

// Validate checks the request before it is sent to the backend.
func (r ProcessRequest) Validate() error {
	if r.FileID <= 0 {
		return errors.New("file_id must be positive")
	}
	if !r.ChunkingStrategy.Valid() {
		return fmt.Errorf("unknown chunking_strategy %q", r.ChunkingStrategy)
	}
	if r.Model != "" && !isKnownModel(r.Model) {
		return fmt.Errorf("unknown model %q", r.Model)
	}
	if r.ChunkingStrategy != ChunkingNumber {
		return nil
	}
	if r.ChunkSize == nil || *r.ChunkSize <= 0 {
		return errors.New("chunk_size must be positive for Number chunking")
	}
	if r.Overlap != nil {
		if *r.Overlap < 0 {
			return errors.New("overlap must not be negative")
		}
		// The backend advances by size-overlap words per chunk.
		if *r.Overlap >= *r.ChunkSize {
			return errors.New("overlap must be smaller than chunk_size")
		}
	}
	return nil
}

func isKnownModel(model string) bool {
	for _, m := range KnownModels {
		if m == model {
			return true
		}
	}
	return false
}
