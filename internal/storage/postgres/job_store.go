// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// PoolConfig controls the shared Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pgxPool is the subset of pgxpool.Pool the stores need; pgxmock satisfies it.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// NewPool builds a pgx connection pool from config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore implements scraping.JobStore on Postgres.
//
// Expected schema:
//
//	CREATE TABLE jobs (
//		id            TEXT PRIMARY KEY,
//		type          TEXT NOT NULL,
//		status        TEXT NOT NULL,
//		created_at    TIMESTAMPTZ NOT NULL,
//		updated_at    TIMESTAMPTZ NOT NULL,
//		error_message TEXT
//	);
type JobStore struct {
	pool pgxPool
}

// NewJobStore wraps a pool in a JobStore.
func NewJobStore(pool pgxPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const jobColumns = `id, type, status, created_at, updated_at, COALESCE(error_message, '')`

// Create inserts a new job row.
func (s *JobStore) Create(ctx context.Context, job scraping.Job) error {
	query := `
INSERT INTO jobs (id, type, status, created_at, updated_at, error_message)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`
	_, err := s.pool.Exec(ctx, query,
		job.ID,
		string(job.Type),
		string(job.Status),
		job.CreatedAt,
		job.UpdatedAt,
		job.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Transition moves a job to status with one guarded UPDATE. The WHERE clause
// carries the legal-from set so concurrent workers can never race a job out of
// a terminal state; zero rows means the move was illegal or the job is gone.
func (s *JobStore) Transition(
	ctx context.Context,
	jobID string,
	status scraping.JobStatus,
	errMsg string,
) (scraping.Job, error) {
	allowedFrom := scraping.TransitionAllowedFrom(status)
	if len(allowedFrom) == 0 {
		return scraping.Job{}, fmt.Errorf("%w: no transition reaches %s",
			scraping.ErrInvalidTransition, status)
	}
	from := make([]string, len(allowedFrom))
	for i, st := range allowedFrom {
		from[i] = string(st)
	}

	query := `
UPDATE jobs
SET status = $2,
    updated_at = $3,
    error_message = CASE WHEN $2 IN ('completed', 'failed') THEN NULLIF($4, '') ELSE error_message END
WHERE id = $1 AND status = ANY($5)
RETURNING ` + jobColumns

	row := s.pool.QueryRow(ctx, query, jobID, string(status), time.Now().UTC(), errMsg, from)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return scraping.Job{}, fmt.Errorf("transition job %s: %w", jobID, err)
	}

	// No row moved: distinguish a missing job from an illegal transition.
	current, getErr := s.Get(ctx, jobID)
	if getErr != nil {
		return scraping.Job{}, getErr
	}
	return scraping.Job{}, fmt.Errorf("%w: %s -> %s (job %s)",
		scraping.ErrInvalidTransition, current.Status, status, jobID)
}

// Get fetches a job by id.
func (s *JobStore) Get(ctx context.Context, jobID string) (scraping.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraping.Job{}, scraping.ErrJobNotFound
	}
	if err != nil {
		return scraping.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// List returns matching jobs newest first plus the unpaginated total.
func (s *JobStore) List(ctx context.Context, filter scraping.JobFilter) ([]scraping.Job, int, error) {
	where := ""
	args := []any{}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM jobs WHERE 1=1` + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(
		`SELECT `+jobColumns+` FROM jobs WHERE 1=1%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args),
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []scraping.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, total, nil
}

func scanJob(row pgx.Row) (scraping.Job, error) {
	var (
		job    scraping.Job
		typ    string
		status string
	)
	if err := row.Scan(&job.ID, &typ, &status, &job.CreatedAt, &job.UpdatedAt, &job.ErrorMessage); err != nil {
		return scraping.Job{}, err
	}
	job.Type = scraping.JobType(typ)
	job.Status = scraping.JobStatus(status)
	return job, nil
}
