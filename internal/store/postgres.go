package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	createTableQuery = `
		CREATE TABLE IF NOT EXISTS push_jobs (
			job_id     TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`

	createIndexQuery = `CREATE INDEX IF NOT EXISTS push_jobs_updated_at_idx ON push_jobs (updated_at DESC)`

	selectJobsQuery = `SELECT job_id, data FROM push_jobs ORDER BY updated_at DESC, job_id`

	deleteMissingQuery = `DELETE FROM push_jobs WHERE NOT (job_id = ANY($1))`

	upsertJobQuery = `
		INSERT INTO push_jobs (job_id, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE
		SET data = EXCLUDED.data,
		    updated_at = EXCLUDED.updated_at
	`
)

type jobRow struct {
	JobID string `db:"job_id"`
	Data  []byte `db:"data"`
}

// PostgresStore keeps one row per job with the job document in a JSONB column
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates the store and makes sure the table exists
func NewPostgresStore(ctx context.Context, db *sqlx.DB, logger *slog.Logger) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, createTableQuery); err != nil {
		return nil, fmt.Errorf("failed to create push_jobs table: %w", err)
	}
	if _, err := db.ExecContext(ctx, createIndexQuery); err != nil {
		return nil, fmt.Errorf("failed to create push_jobs index: %w", err)
	}

	return &PostgresStore{
		db:     db,
		logger: logger,
	}, nil
}

// Load reads every job row, most recently updated first
func (s *PostgresStore) Load(ctx context.Context) (map[string]job.Job, error) {
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, selectJobsQuery); err != nil {
		return nil, fmt.Errorf("failed to select jobs: %w", err)
	}

	jobs := make(map[string]job.Job, len(rows))
	for _, row := range rows {
		var j job.Job
		if err := json.Unmarshal(row.Data, &j); err != nil {
			return nil, fmt.Errorf("failed to decode job %s: %w", row.JobID, err)
		}
		jobs[row.JobID] = j
	}

	s.logger.Debug("Jobs loaded from PostgreSQL",
		slog.Int("count", len(jobs)),
	)

	return jobs, nil
}

// Save replaces the table content with the snapshot in one transaction
func (s *PostgresStore) Save(ctx context.Context, jobs map[string]job.Job) error {
	ids := make([]string, 0, len(jobs))
	for id := range jobs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, deleteMissingQuery, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to delete evicted jobs: %w", err)
	}

	for _, id := range ids {
		j := jobs[id]
		data, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("failed to encode job %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, upsertJobQuery, id, data, j.UpdatedAt); err != nil {
			return fmt.Errorf("failed to upsert job %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
