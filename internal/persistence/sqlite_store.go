// Package persistence backs the job queue with a sqlite database so jobs
// survive process restarts.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kweilin/lessonforge/internal/jobs"
)

const jobsSchema = `CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL DEFAULT '',
	dedupe_key TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, jobsSchema); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.PipelineJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, source_url, status, error, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.PipelineJob, 0)
	for rows.Next() {
		var item jobs.PipelineJob
		var status string
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.DedupeKey,
			&item.Payload.SourceURL,
			&status,
			&item.Error,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.PipelineJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, source_url, status, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			source_url=excluded.source_url,
			status=excluded.status,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		job.Payload.SourceURL,
		string(job.Status),
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}
