// store_test.go - Tests for the DuckDB run archive
package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/doc-classifier/dashboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runs.duckdb"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func intp(n int) *int { return &n }

func record(runs ...models.ClassificationRun) models.FileRecord {
	return models.FileRecord{ID: 1, Filename: "contract.pdf", Status: models.FileStatusCompleted, Classifications: runs}
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func paragraphRun() models.ClassificationRun {
	return models.ClassificationRun{
		ID: 10, FileID: 1, Model: models.ModelComprehendIt, ChunkingStrategy: models.ChunkingParagraph,
		CreatedAt: base,
		Scores: []models.ClassificationScore{
			{ID: 1, Label: "Invoice", Score: 0.2},
			{ID: 2, Label: "Legal Document", Score: 0.8},
		},
	}
}

func numberRun() models.ClassificationRun {
	return models.ClassificationRun{
		ID: 11, FileID: 1, Model: models.ModelBartLargeMNLI, ChunkingStrategy: models.ChunkingNumber,
		ChunkSize: intp(200), ChunkOverlapSize: intp(50), MultiLabel: true,
		CreatedAt: base.Add(time.Hour),
		Scores:    []models.ClassificationScore{{ID: 3, Label: "Other", Score: 0.4}},
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.duckdb")
	store, err := Open(path, nil)
	require.NoError(t, err)
	defer store.Close()

	assert.True(t, store.Enabled())
	_, err = os.Stat(path)
	assert.NoError(t, err, "database file should exist")
}

func TestStore_RecordAndHistory(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	added, err := store.Record(ctx, []models.FileRecord{record(paragraphRun(), numberRun())})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	history, err := store.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)

	newest := history[0]
	assert.Equal(t, int64(11), newest.Run.ID)
	assert.Equal(t, "contract.pdf", newest.Filename)
	assert.Equal(t, "facebook/bart-large-mnli-1-true-Number-200-50", newest.Key)
	require.NotNil(t, newest.Run.ChunkSize)
	assert.Equal(t, 200, *newest.Run.ChunkSize)
	assert.True(t, newest.Run.MultiLabel)

	oldest := history[1]
	assert.Nil(t, oldest.Run.ChunkSize)
	assert.Nil(t, oldest.Run.ChunkOverlapSize)
	require.Len(t, oldest.Run.Scores, 2)
	assert.Equal(t, "Legal Document", oldest.Run.Scores[0].Label, "scores come back best first")
	assert.InDelta(t, 0.8, oldest.Run.Scores[0].Score, 1e-9)
}

func TestStore_RecordDeduplicates(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.Record(ctx, []models.FileRecord{record(paragraphRun())})
	require.NoError(t, err)

	added, err := store.Record(ctx, []models.FileRecord{record(paragraphRun())})
	require.NoError(t, err)
	assert.Zero(t, added)

	// An override upload wipes the old run; a new run with the same
	// parameters gets a new id and is archived alongside it.
	rerun := paragraphRun()
	rerun.ID = 20
	rerun.CreatedAt = base.Add(2 * time.Hour)
	added, err = store.Record(ctx, []models.FileRecord{record(rerun)})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	history, err := store.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, history[0].Key, history[1].Key)
	assert.Equal(t, int64(20), history[0].Run.ID)
}

func TestStore_HistoryUnknownFile(t *testing.T) {
	store := createTestStore(t)
	history, err := store.History(context.Background(), 404)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestDisabled(t *testing.T) {
	for name, store := range map[string]*Store{"disabled": Disabled(), "nil": nil} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, store.Enabled())
			added, err := store.Record(context.Background(), []models.FileRecord{record(paragraphRun())})
			assert.NoError(t, err)
			assert.Zero(t, added)

			history, err := store.History(context.Background(), 1)
			assert.NoError(t, err)
			assert.Empty(t, history)
			assert.NoError(t, store.Close())
		})
	}
}
