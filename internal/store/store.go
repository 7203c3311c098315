package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/faceprep/internal/batch"
	"github.com/jackc/pgx/v5"
)

// Run statuses recorded in the ledger.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Store manages the PostgreSQL connection holding the run ledger.
type Store struct {
	conn *pgx.Conn
}

// Run is one row of the runs table.
type Run struct {
	ID          string
	Fingerprint string
	Landmarks   string
	Output      string
	Threshold   float64
	SaveStep    int
	Selected    int
	Status      string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Chunks      int
	Images      int
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the ledger tables if they don't exist.
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			landmarks TEXT NOT NULL,
			output TEXT NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			save_step INT NOT NULL,
			selected INT NOT NULL,
			status TEXT NOT NULL DEFAULT 'running',
			started_at TIMESTAMPTZ DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS chunks (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			first_id INT NOT NULL,
			last_id INT NOT NULL,
			image_count INT NOT NULL,
			UNIQUE (run_id, name)
		);
		CREATE TABLE IF NOT EXISTS skipped_images (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			image_id INT NOT NULL,
			stage TEXT NOT NULL,
			error TEXT NOT NULL,
			PRIMARY KEY (run_id, image_id)
		);
		CREATE INDEX IF NOT EXISTS runs_fingerprint_idx ON runs (fingerprint);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// CreateRun registers a new run in the running state.
func (s *Store) CreateRun(ctx context.Context, r Run) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO runs (id, fingerprint, landmarks, output, threshold, save_step, selected, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, r.ID, r.Fingerprint, r.Landmarks, r.Output, r.Threshold, r.SaveStep, r.Selected, StatusRunning)
	return err
}

// InsertChunk records a chunk file written by a run. Re-recording the same
// chunk name replaces its counts.
func (s *Store) InsertChunk(ctx context.Context, runID string, c batch.Chunk) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO chunks (run_id, name, first_id, last_id, image_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, name) DO UPDATE
		SET first_id = EXCLUDED.first_id, last_id = EXCLUDED.last_id, image_count = EXCLUDED.image_count
	`, runID, c.Name, c.FirstID, c.LastID, c.Count)
	return err
}

// InsertSkipped records an image dropped by a run.
func (s *Store) InsertSkipped(ctx context.Context, runID string, item batch.SkippedItem) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO skipped_images (run_id, image_id, stage, error)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, image_id) DO NOTHING
	`, runID, item.ID, item.Stage, item.Error)
	return err
}

// FinishRun stamps the run's final status.
func (s *Store) FinishRun(ctx context.Context, runID, status string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE runs SET status = $1, finished_at = NOW() WHERE id = $2", status, runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// ListRuns returns every run, newest first, with its chunk totals.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT r.id, r.fingerprint, r.landmarks, r.output, r.threshold, r.save_step, r.selected,
		       r.status, r.started_at, r.finished_at,
		       COUNT(c.id), COALESCE(SUM(c.image_count), 0)
		FROM runs r
		LEFT JOIN chunks c ON c.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Fingerprint, &r.Landmarks, &r.Output, &r.Threshold, &r.SaveStep, &r.Selected,
			&r.Status, &r.StartedAt, &r.FinishedAt, &r.Chunks, &r.Images); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListChunks returns the chunks of a run in ID order.
func (s *Store) ListChunks(ctx context.Context, runID string) ([]batch.Chunk, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT name, first_id, last_id, image_count FROM chunks WHERE run_id = $1 ORDER BY first_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []batch.Chunk
	for rows.Next() {
		var c batch.Chunk
		if err := rows.Scan(&c.Name, &c.FirstID, &c.LastID, &c.Count); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// LatestComplete returns the newest complete run over the same landmark
// file, or nil when there is none.
func (s *Store) LatestComplete(ctx context.Context, fingerprint string) (*Run, error) {
	var r Run
	err := s.conn.QueryRow(ctx, `
		SELECT id, output, started_at FROM runs
		WHERE fingerprint = $1 AND status = $2
		ORDER BY started_at DESC LIMIT 1
	`, fingerprint, StatusComplete).Scan(&r.ID, &r.Output, &r.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Fingerprint = fingerprint
	r.Status = StatusComplete
	return &r, nil
}

// Reset drops all ledger tables.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS skipped_images CASCADE;
		DROP TABLE IF EXISTS chunks CASCADE;
		DROP TABLE IF EXISTS runs CASCADE;
	`)
	return err
}
