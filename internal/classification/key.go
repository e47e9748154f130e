// Package classification groups classification runs by their parameters and
// derives chart-ready projections for the run the user has selected.
package classification

import (
	"fmt"
	"strconv"

	"github.com/doc-classifier/dashboard/internal/models"
)

// absent renders a missing optional parameter. It cannot collide with a number.
const absent = "null"

// Key derives the identity of a run from its parameter tuple
// (model, file id, multi_label, chunking_strategy, chunk_size, chunk_overlap_size).
// Runs with identical tuples map to the same key.
func Key(run models.ClassificationRun) string {
	return fmt.Sprintf("%s-%d-%t-%s-%s-%s",
		run.Model,
		run.FileID,
		run.MultiLabel,
		run.ChunkingStrategy,
		optionalInt(run.ChunkSize),
		optionalInt(run.ChunkOverlapSize),
	)
}

func optionalInt(v *int) string {
	if v == nil {
		return absent
	}
	return strconv.Itoa(*v)
}

// Grouping maps a key to the run it identifies.
type Grouping map[string]models.ClassificationRun

// GroupByKey groups runs by Key. When several runs share a key the one listed
// last wins. A nil or empty input yields an empty, non-nil grouping.
func GroupByKey(runs []models.ClassificationRun) Grouping {
	g := make(Grouping, len(runs))
	for _, run := range runs {
		g[Key(run)] = run
	}
	return g
}
