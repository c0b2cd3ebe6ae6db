package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// ResultStore is an in-memory scraping.ResultStore.
type ResultStore struct {
	mu         sync.RWMutex
	teamStats  []scraping.TeamStatRecord
	filmAwards []scraping.FilmAwardRecord
	nextID     int64
}

// NewResultStore constructs a ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{nextID: 1}
}

// Append stores the whole batch for a job or nothing at all. Validation runs
// over the full batch before anything is written.
func (s *ResultStore) Append(_ context.Context, jobID string, records []scraping.Record) error {
	// Every rejection happens before the first write so a bad record anywhere
	// in the batch leaves the store untouched.
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return &scraping.PersistenceError{JobID: jobID, Err: err}
		}
		switch rec.(type) {
		case scraping.TeamStatRecord, scraping.FilmAwardRecord:
		default:
			return &scraping.PersistenceError{
				JobID: jobID,
				Err:   fmt.Errorf("unsupported record type %T", rec),
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		switch r := rec.(type) {
		case scraping.TeamStatRecord:
			r.ID = s.nextID
			r.JobID = jobID
			s.teamStats = append(s.teamStats, r)
		case scraping.FilmAwardRecord:
			r.ID = s.nextID
			r.JobID = jobID
			s.filmAwards = append(s.filmAwards, r)
		}
		s.nextID++
	}
	return nil
}

// TeamStatsByJob lists team stat rows produced by one job.
func (s *ResultStore) TeamStatsByJob(_ context.Context, jobID string) ([]scraping.TeamStatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scraping.TeamStatRecord
	for _, r := range s.teamStats {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

// FilmAwardsByJob lists film award rows produced by one job.
func (s *ResultStore) FilmAwardsByJob(_ context.Context, jobID string) ([]scraping.FilmAwardRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scraping.FilmAwardRecord
	for _, r := range s.filmAwards {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListTeamStats pages through all team stat rows, newest first.
func (s *ResultStore) ListTeamStats(_ context.Context, limit, offset int) ([]scraping.TeamStatRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.teamStats)
	var out []scraping.TeamStatRecord
	for i := total - 1 - offset; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.teamStats[i])
	}
	return out, total, nil
}

// ListFilmAwards pages through all film award rows, newest first.
func (s *ResultStore) ListFilmAwards(_ context.Context, limit, offset int) ([]scraping.FilmAwardRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.filmAwards)
	var out []scraping.FilmAwardRecord
	for i := total - 1 - offset; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.filmAwards[i])
	}
	return out, total, nil
}
