package scraping

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across store implementations.
var (
	// ErrJobNotFound is returned when a job id has no row.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned for moves the state machine forbids.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrUnknownJobType is returned for job types outside the enum.
	ErrUnknownJobType = errors.New("unknown job type")
)

// ExtractionKind distinguishes retryable failures from ones that need a
// selector or code fix.
type ExtractionKind string

// Extraction failure kinds.
const (
	ExtractionTransient  ExtractionKind = "transient"
	ExtractionStructural ExtractionKind = "structural"
)

// ExtractionError reports a scraper failure with its retryability class.
type ExtractionError struct {
	Kind   ExtractionKind
	Source JobType
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s, source=%s): %v", e.Kind, e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying via a new dispatch.
func (e *ExtractionError) Transient() bool { return e.Kind == ExtractionTransient }

// NewTransientExtraction wraps err as a retryable extraction failure.
func NewTransientExtraction(source JobType, err error) *ExtractionError {
	return &ExtractionError{Kind: ExtractionTransient, Source: source, Err: err}
}

// NewStructuralExtraction wraps err as a non-retryable extraction failure.
func NewStructuralExtraction(source JobType, err error) *ExtractionError {
	return &ExtractionError{Kind: ExtractionStructural, Source: source, Err: err}
}

// PartialFailure reports a composite run where some sources failed while the
// rest succeeded. The job still completes; the per-source detail is retained
// on the job row so a partial run stays diagnosable.
type PartialFailure struct {
	Failed int
	Total  int
	Err    error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%d of %d sources failed: %v", e.Failed, e.Total, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

// PublishError reports a broker publish failure. The gateway converts it into
// a failed job before surfacing it to the caller.
type PublishError struct {
	Queue string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %q failed: %v", e.Queue, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// PersistenceError reports a result-store failure. The whole batch is rolled
// back; no partial result set survives.
type PersistenceError struct {
	JobID string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist results for job %s failed: %v", e.JobID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
