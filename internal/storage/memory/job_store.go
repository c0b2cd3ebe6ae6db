// Package memory provides store implementations for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// JobStore is an in-memory scraping.JobStore.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]scraping.Job
	order []string
	clock scraping.Clock
}

// NewJobStore constructs a JobStore. clock may be nil, in which case
// transitions stamp time.Now.
func NewJobStore(clock scraping.Clock) *JobStore {
	return &JobStore{
		jobs:  make(map[string]scraping.Job),
		clock: clock,
	}
}

func (s *JobStore) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}

// Create stores a new job row.
func (s *JobStore) Create(_ context.Context, job scraping.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return nil
}

// Transition applies the state machine under the store lock, the in-memory
// stand-in for the single atomic UPDATE the Postgres store issues.
func (s *JobStore) Transition(
	_ context.Context,
	jobID string,
	status scraping.JobStatus,
	errMsg string,
) (scraping.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraping.Job{}, scraping.ErrJobNotFound
	}
	if !scraping.CanTransition(job.Status, status) {
		return scraping.Job{}, fmt.Errorf("%w: %s -> %s (job %s)",
			scraping.ErrInvalidTransition, job.Status, status, jobID)
	}
	job.Status = status
	job.UpdatedAt = s.now()
	// Terminal transitions own the message: failures record their cause,
	// completions keep partial-run detail (empty for a clean run).
	if status.IsTerminal() {
		job.ErrorMessage = errMsg
	}
	s.jobs[jobID] = job
	return job, nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (scraping.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraping.Job{}, scraping.ErrJobNotFound
	}
	return job, nil
}

// List returns matching jobs newest first plus the unpaginated total.
func (s *JobStore) List(_ context.Context, filter scraping.JobFilter) ([]scraping.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []scraping.Job
	for i := len(s.order) - 1; i >= 0; i-- {
		job := s.jobs[s.order[i]]
		if filter.Type != "" && job.Type != filter.Type {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		matched = append(matched, job)
	}
	total := len(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	out := make([]scraping.Job, len(matched))
	copy(out, matched)
	return out, total, nil
}
