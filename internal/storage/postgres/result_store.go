package postgres

import (
	"context"
	"fmt"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// ResultStore implements scraping.ResultStore on Postgres. Records are
// append-only; there is no UPDATE path by design.
//
// Expected schema:
//
//	CREATE TABLE team_stats (
//		id            BIGSERIAL PRIMARY KEY,
//		job_id        TEXT NOT NULL REFERENCES jobs(id),
//		team_name     TEXT NOT NULL,
//		year          INT NOT NULL,
//		wins          INT NOT NULL,
//		losses        INT NOT NULL,
//		ot_losses     INT NOT NULL,
//		win_pct       DOUBLE PRECISION NOT NULL,
//		goals_for     INT NOT NULL,
//		goals_against INT NOT NULL,
//		goal_diff     INT NOT NULL,
//		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//
//	CREATE TABLE film_awards (
//		id           BIGSERIAL PRIMARY KEY,
//		job_id       TEXT NOT NULL REFERENCES jobs(id),
//		year         INT NOT NULL,
//		title        TEXT NOT NULL,
//		nominations  INT NOT NULL,
//		awards       INT NOT NULL,
//		best_picture BOOLEAN NOT NULL,
//		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type ResultStore struct {
	pool pgxPool
}

// NewResultStore wraps a pool in a ResultStore.
func NewResultStore(pool pgxPool) (*ResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ResultStore{pool: pool}, nil
}

const insertTeamStat = `
INSERT INTO team_stats (job_id, team_name, year, wins, losses, ot_losses, win_pct, goals_for, goals_against, goal_diff)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const insertFilmAward = `
INSERT INTO film_awards (job_id, year, title, nominations, awards, best_picture)
VALUES ($1, $2, $3, $4, $5, $6)`

// Append stores the whole batch inside one transaction. Any validation or
// insert error rolls the entire batch back.
func (s *ResultStore) Append(ctx context.Context, jobID string, records []scraping.Record) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return &scraping.PersistenceError{JobID: jobID, Err: err}
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &scraping.PersistenceError{JobID: jobID, Err: fmt.Errorf("begin: %w", err)}
	}
	defer func() {
		// Rollback after Commit is a no-op error we can ignore.
		_ = tx.Rollback(ctx)
	}()

	for _, rec := range records {
		switch r := rec.(type) {
		case scraping.TeamStatRecord:
			_, err = tx.Exec(ctx, insertTeamStat,
				jobID, r.TeamName, r.Year, r.Wins, r.Losses, r.OTLosses,
				r.WinPct, r.GoalsFor, r.GoalsAgainst, r.GoalDiff)
		case scraping.FilmAwardRecord:
			_, err = tx.Exec(ctx, insertFilmAward,
				jobID, r.Year, r.Title, r.Nominations, r.Awards, r.BestPicture)
		default:
			err = fmt.Errorf("unsupported record type %T", rec)
		}
		if err != nil {
			return &scraping.PersistenceError{JobID: jobID, Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &scraping.PersistenceError{JobID: jobID, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

const teamStatColumns = `id, job_id, team_name, year, wins, losses, ot_losses, win_pct, goals_for, goals_against, goal_diff, created_at`

const filmAwardColumns = `id, job_id, year, title, nominations, awards, best_picture, created_at`

// TeamStatsByJob lists team stat rows produced by one job.
func (s *ResultStore) TeamStatsByJob(ctx context.Context, jobID string) ([]scraping.TeamStatRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+teamStatColumns+` FROM team_stats WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query team stats: %w", err)
	}
	defer rows.Close()
	return scanTeamStats(rows)
}

// FilmAwardsByJob lists film award rows produced by one job.
func (s *ResultStore) FilmAwardsByJob(ctx context.Context, jobID string) ([]scraping.FilmAwardRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+filmAwardColumns+` FROM film_awards WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query film awards: %w", err)
	}
	defer rows.Close()
	return scanFilmAwards(rows)
}

// ListTeamStats pages through all team stat rows, newest first.
func (s *ResultStore) ListTeamStats(ctx context.Context, limit, offset int) ([]scraping.TeamStatRecord, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM team_stats`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count team stats: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+teamStatColumns+` FROM team_stats ORDER BY id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list team stats: %w", err)
	}
	defer rows.Close()
	out, err := scanTeamStats(rows)
	return out, total, err
}

// ListFilmAwards pages through all film award rows, newest first.
func (s *ResultStore) ListFilmAwards(ctx context.Context, limit, offset int) ([]scraping.FilmAwardRecord, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM film_awards`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count film awards: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+filmAwardColumns+` FROM film_awards ORDER BY id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list film awards: %w", err)
	}
	defer rows.Close()
	out, err := scanFilmAwards(rows)
	return out, total, err
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTeamStats(rows pgxRows) ([]scraping.TeamStatRecord, error) {
	var out []scraping.TeamStatRecord
	for rows.Next() {
		var r scraping.TeamStatRecord
		if err := rows.Scan(&r.ID, &r.JobID, &r.TeamName, &r.Year, &r.Wins, &r.Losses,
			&r.OTLosses, &r.WinPct, &r.GoalsFor, &r.GoalsAgainst, &r.GoalDiff, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team stat: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team stats: %w", err)
	}
	return out, nil
}

func scanFilmAwards(rows pgxRows) ([]scraping.FilmAwardRecord, error) {
	var out []scraping.FilmAwardRecord
	for rows.Next() {
		var r scraping.FilmAwardRecord
		if err := rows.Scan(&r.ID, &r.JobID, &r.Year, &r.Title, &r.Nominations,
			&r.Awards, &r.BestPicture, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan film award: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate film awards: %w", err)
	}
	return out, nil
}
