// Package scraping defines core types shared across subsystems.
package scraping

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobType identifies which extraction strategy a job runs.
type JobType string

// Job type values. JobTypeAll fans out to every single-source strategy.
const (
	JobTypeTeamStats  JobType = "team_stats"
	JobTypeFilmAwards JobType = "film_awards"
	JobTypeAll        JobType = "all"
)

// JobTypes lists every valid job type in a stable order.
func JobTypes() []JobType {
	return []JobType{JobTypeTeamStats, JobTypeFilmAwards, JobTypeAll}
}

// ParseJobType validates an externally supplied job type string.
func ParseJobType(s string) (JobType, error) {
	for _, t := range JobTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownJobType, s)
}

// legalTransitions maps a target status to the statuses it may be reached from.
var legalTransitions = map[JobStatus][]JobStatus{
	JobStatusRunning:   {JobStatusPending},
	JobStatusCompleted: {JobStatusRunning},
	JobStatusFailed:    {JobStatusPending, JobStatusRunning},
}

// TransitionAllowedFrom returns the set of statuses from which a job may move
// into next. The result is a copy; callers may pass it straight to SQL.
func TransitionAllowedFrom(next JobStatus) []JobStatus {
	from, ok := legalTransitions[next]
	if !ok {
		return nil
	}
	out := make([]JobStatus, len(from))
	copy(out, from)
	return out
}

// CanTransition reports whether moving from one status to another is legal.
// Status is monotonic: pending -> running -> {completed|failed}, with the
// gateway-only shortcut pending -> failed. Terminal states have no exits.
func CanTransition(from, to JobStatus) bool {
	for _, allowed := range legalTransitions[to] {
		if allowed == from {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status is final.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the persisted record of one scheduled unit of work.
type Job struct {
	ID           string    `json:"id"`
	Type         JobType   `json:"type"`
	Status       JobStatus `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// JobFilter narrows JobStore.List results.
type JobFilter struct {
	Type   JobType
	Status JobStatus
	Limit  int
	Offset int
}

// TaskMessage is the broker payload referencing a job to execute. The worker
// re-reads authoritative state from the job store; the message only routes.
type TaskMessage struct {
	JobID   string  `json:"job_id"`
	JobType JobType `json:"job_type"`
}

// Record is implemented by every extracted row shape.
type Record interface {
	// Kind names the single-source job type that produces this record.
	Kind() JobType
	// Validate checks internal consistency before persistence.
	Validate() error
}

// TeamStatRecord is one season line for one team from the static source.
type TeamStatRecord struct {
	ID           int64     `json:"id,omitempty"`
	JobID        string    `json:"job_id,omitempty"`
	TeamName     string    `json:"team_name"`
	Year         int       `json:"year"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	OTLosses     int       `json:"ot_losses"`
	WinPct       float64   `json:"win_pct"`
	GoalsFor     int       `json:"goals_for"`
	GoalsAgainst int       `json:"goals_against"`
	GoalDiff     int       `json:"goal_diff"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Kind implements Record.
func (TeamStatRecord) Kind() JobType { return JobTypeTeamStats }

// Validate implements Record.
func (r TeamStatRecord) Validate() error {
	switch {
	case r.TeamName == "":
		return fmt.Errorf("team stat record: team name is empty")
	case r.Year < 1900 || r.Year > 2200:
		return fmt.Errorf("team stat record %q: year %d out of range", r.TeamName, r.Year)
	case r.Wins < 0 || r.Losses < 0 || r.OTLosses < 0:
		return fmt.Errorf("team stat record %q: negative game counts", r.TeamName)
	case r.WinPct < 0 || r.WinPct > 1:
		return fmt.Errorf("team stat record %q: win pct %.3f outside [0,1]", r.TeamName, r.WinPct)
	}
	return nil
}

// FilmAwardRecord is one film's awards line from the dynamic source.
type FilmAwardRecord struct {
	ID          int64     `json:"id,omitempty"`
	JobID       string    `json:"job_id,omitempty"`
	Year        int       `json:"year"`
	Title       string    `json:"title"`
	Nominations int       `json:"nominations"`
	Awards      int       `json:"awards"`
	BestPicture bool      `json:"best_picture"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Kind implements Record.
func (FilmAwardRecord) Kind() JobType { return JobTypeFilmAwards }

// Validate implements Record.
func (r FilmAwardRecord) Validate() error {
	switch {
	case r.Title == "":
		return fmt.Errorf("film award record: title is empty")
	case r.Year < 1900 || r.Year > 2200:
		return fmt.Errorf("film award record %q: year %d out of range", r.Title, r.Year)
	case r.Nominations < 0 || r.Awards < 0:
		return fmt.Errorf("film award record %q: negative counts", r.Title)
	case r.Awards > r.Nominations:
		return fmt.Errorf("film award record %q: %d awards exceed %d nominations",
			r.Title, r.Awards, r.Nominations)
	}
	return nil
}

// JobResults bundles a job with everything it extracted, for the API.
type JobResults struct {
	Job        Job               `json:"job"`
	TeamStats  []TeamStatRecord  `json:"team_stats"`
	FilmAwards []FilmAwardRecord `json:"film_awards"`
}
