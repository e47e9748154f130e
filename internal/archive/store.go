// Package archive keeps a DuckDB history of classification runs so results
// replaced by an override upload are not lost.
package archive

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/doc-classifier/dashboard/internal/classification"
	"github.com/doc-classifier/dashboard/internal/logging"
	"github.com/doc-classifier/dashboard/internal/models"
	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_key            VARCHAR NOT NULL,
	run_id             BIGINT NOT NULL,
	file_id            BIGINT NOT NULL,
	filename           VARCHAR NOT NULL,
	model              VARCHAR NOT NULL,
	chunking_strategy  VARCHAR NOT NULL,
	chunk_size         INTEGER,
	chunk_overlap_size INTEGER,
	multi_label        BOOLEAN NOT NULL,
	created_at         TIMESTAMP NOT NULL,
	archived_at        TIMESTAMP NOT NULL,
	PRIMARY KEY (run_key, run_id)
);
CREATE TABLE IF NOT EXISTS run_scores (
	run_key  VARCHAR NOT NULL,
	run_id   BIGINT NOT NULL,
	score_id BIGINT NOT NULL,
	label    VARCHAR NOT NULL,
	score    DOUBLE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_file ON runs(file_id);
`

// ArchivedRun is a run as it was when first seen.
type ArchivedRun struct {
	Key        string                   `json:"key"`
	Filename   string                   `json:"filename"`
	ArchivedAt time.Time                `json:"archivedAt"`
	Run        models.ClassificationRun `json:"run"`
}

// Store is a DuckDB-backed run archive. A Store returned by Disabled, or a
// nil *Store, accepts every call and records nothing.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Disabled returns a no-op archive.
func Disabled() *Store {
	return &Store{logger: zap.NewNop()}
}

// Open opens or creates the archive at path. An empty path keeps the
// archive in memory.
func Open(path string, logger *zap.Logger) (*Store, error) {
	logger = logging.OrNop(logger).Named("archive")

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				logger.Warn("pragma failed", zap.String("pragma", pragma), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	// One connection keeps an in-memory database shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive tables: %w", err)
	}

	logger.Info("archive opened", zap.String("path", path))
	return &Store{db: db, path: path, logger: logger}, nil
}

// Enabled reports whether the store writes anything.
func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}

// Record archives every run not seen before, keyed by run key and run id.
// It returns how many runs were added.
func (s *Store) Record(ctx context.Context, records []models.FileRecord) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	added := 0
	for _, rec := range records {
		for _, run := range rec.Classifications {
			key := classification.Key(run)

			var exists int
			err := tx.QueryRowContext(ctx,
				`SELECT count(*) FROM runs WHERE run_key = ? AND run_id = ?`, key, run.ID).Scan(&exists)
			if err != nil {
				return 0, fmt.Errorf("checking run %d: %w", run.ID, err)
			}
			if exists > 0 {
				continue
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO runs (run_key, run_id, file_id, filename, model, chunking_strategy,
					chunk_size, chunk_overlap_size, multi_label, created_at, archived_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				key, run.ID, rec.ID, rec.Filename, run.Model, string(run.ChunkingStrategy),
				nullableInt(run.ChunkSize), nullableInt(run.ChunkOverlapSize), run.MultiLabel,
				createdAt(run, now), now)
			if err != nil {
				return 0, fmt.Errorf("archiving run %d: %w", run.ID, err)
			}

			for _, sc := range run.Scores {
				_, err = tx.ExecContext(ctx,
					`INSERT INTO run_scores (run_key, run_id, score_id, label, score) VALUES (?, ?, ?, ?, ?)`,
					key, run.ID, sc.ID, sc.Label, sc.Score)
				if err != nil {
					return 0, fmt.Errorf("archiving score %d: %w", sc.ID, err)
				}
			}
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit archive tx: %w", err)
	}
	if added > 0 {
		s.logger.Debug("runs archived", zap.Int("count", added))
	}
	return added, nil
}

// History returns the archived runs of a file, newest first. Scores are
// ordered by confidence descending.
func (s *Store) History(ctx context.Context, fileID int64) ([]ArchivedRun, error) {
	if !s.Enabled() {
		return []ArchivedRun{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_key, run_id, file_id, filename, model, chunking_strategy,
			chunk_size, chunk_overlap_size, multi_label, created_at, archived_at
		FROM runs
		WHERE file_id = ?
		ORDER BY created_at DESC, run_id DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}

	out := []ArchivedRun{}
	for rows.Next() {
		var (
			ar            ArchivedRun
			strategy      string
			size, overlap sql.NullInt64
		)
		err := rows.Scan(&ar.Key, &ar.Run.ID, &ar.Run.FileID, &ar.Filename, &ar.Run.Model, &strategy,
			&size, &overlap, &ar.Run.MultiLabel, &ar.Run.CreatedAt, &ar.ArchivedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		ar.Run.ChunkingStrategy = models.ChunkingStrategy(strategy)
		ar.Run.ChunkSize = intPtr(size)
		ar.Run.ChunkOverlapSize = intPtr(overlap)
		out = append(out, ar)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		scores, err := s.scores(ctx, out[i].Key, out[i].Run.ID)
		if err != nil {
			return nil, err
		}
		out[i].Run.Scores = scores
	}
	return out, nil
}

func (s *Store) scores(ctx context.Context, key string, runID int64) ([]models.ClassificationScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT score_id, label, score FROM run_scores
		WHERE run_key = ? AND run_id = ?
		ORDER BY score DESC, score_id`, key, runID)
	if err != nil {
		return nil, fmt.Errorf("querying scores: %w", err)
	}
	defer rows.Close()

	scores := []models.ClassificationScore{}
	for rows.Next() {
		var sc models.ClassificationScore
		if err := rows.Scan(&sc.ID, &sc.Label, &sc.Score); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func createdAt(run models.ClassificationRun, fallback time.Time) time.Time {
	if run.CreatedAt.IsZero() {
		return fallback
	}
	return run.CreatedAt.UTC()
}
