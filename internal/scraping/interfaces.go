package scraping

import (
	"context"
	"time"
)

// JobStore persists job lifecycle state.
type JobStore interface {
	// Create inserts a new job row. The job id must be unused.
	Create(ctx context.Context, job Job) error
	// Transition atomically moves a job to status, enforcing the state
	// machine. errMsg is recorded only on failure transitions. Returns the
	// updated job, ErrJobNotFound, or ErrInvalidTransition.
	Transition(ctx context.Context, jobID string, status JobStatus, errMsg string) (Job, error)
	// Get fetches a job by id.
	Get(ctx context.Context, jobID string) (Job, error)
	// List returns matching jobs newest first plus the unpaginated total.
	List(ctx context.Context, filter JobFilter) ([]Job, int, error)
}

// ResultStore persists extracted records, append-only.
type ResultStore interface {
	// Append stores the whole batch for a job or nothing at all.
	Append(ctx context.Context, jobID string, records []Record) error
	// TeamStatsByJob lists team stat rows produced by one job.
	TeamStatsByJob(ctx context.Context, jobID string) ([]TeamStatRecord, error)
	// FilmAwardsByJob lists film award rows produced by one job.
	FilmAwardsByJob(ctx context.Context, jobID string) ([]FilmAwardRecord, error)
	// ListTeamStats pages through all team stat rows, newest first.
	ListTeamStats(ctx context.Context, limit, offset int) ([]TeamStatRecord, int, error)
	// ListFilmAwards pages through all film award rows, newest first.
	ListFilmAwards(ctx context.Context, limit, offset int) ([]FilmAwardRecord, int, error)
}

// TaskPublisher sends task messages to a named queue.
type TaskPublisher interface {
	// Publish blocks until the broker accepts the message, so failures
	// surface synchronously to the dispatch gateway.
	Publish(ctx context.Context, queue string, task TaskMessage) error
	// Close releases broker resources.
	Close() error
}

// TaskDelivery hands one message to a handler together with its settlement
// callbacks. Exactly one of Ack or Nack must be called; Nack requests
// redelivery.
type TaskDelivery struct {
	Task TaskMessage
	Ack  func()
	Nack func()
}

// TaskConsumer drives a blocking receive loop over one queue.
type TaskConsumer interface {
	// Receive calls handle for each delivery until ctx ends. Handlers may run
	// concurrently depending on the broker implementation.
	Receive(ctx context.Context, queue string, handle func(context.Context, TaskDelivery)) error
}

// Scraper is the strategy contract bound to a job type. Records are emitted
// as they are parsed so arbitrarily long paginated sources never buffer fully;
// a non-nil emit error aborts the run.
type Scraper interface {
	Scrape(ctx context.Context, emit func(Record) error) error
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
