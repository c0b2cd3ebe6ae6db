// Package scraper binds job types to their extraction strategies.
package scraper

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// Registry maps job types to strategies.
type Registry struct {
	strategies map[scraping.JobType]scraping.Scraper
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[scraping.JobType]scraping.Scraper{}}
}

// Register binds a strategy to a job type, replacing any previous binding.
func (r *Registry) Register(t scraping.JobType, s scraping.Scraper) {
	r.strategies[t] = s
}

// Resolve returns the strategy for a job type.
func (r *Registry) Resolve(t scraping.JobType) (scraping.Scraper, error) {
	s, ok := r.strategies[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no strategy", scraping.ErrUnknownJobType, t)
	}
	return s, nil
}

// Composite runs several strategies in sequence under one job. By default it
// fails only when every source fails; RequireAll makes any source failure
// fatal.
type Composite struct {
	sources    []compositeSource
	requireAll bool
	logger     *zap.Logger
}

type compositeSource struct {
	jobType scraping.JobType
	scraper scraping.Scraper
}

// NewComposite creates a Composite over the given sources.
func NewComposite(requireAll bool, logger *zap.Logger) *Composite {
	return &Composite{requireAll: requireAll, logger: logger}
}

// Add appends a source to the run order.
func (c *Composite) Add(t scraping.JobType, s scraping.Scraper) *Composite {
	c.sources = append(c.sources, compositeSource{jobType: t, scraper: s})
	return c
}

// Scrape implements scraping.Scraper. Records from succeeding sources are
// emitted even when a sibling source fails, so a partial run still persists
// what it extracted. A partial run returns *scraping.PartialFailure naming the
// failed sources; the worker completes the job and keeps that detail on it.
func (c *Composite) Scrape(ctx context.Context, emit func(scraping.Record) error) error {
	if len(c.sources) == 0 {
		return fmt.Errorf("composite has no sources")
	}

	var failures []error
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return scraping.NewTransientExtraction(scraping.JobTypeAll, err)
		}
		if err := src.scraper.Scrape(ctx, emit); err != nil {
			c.logger.Warn("composite source failed",
				zap.String("source", string(src.jobType)),
				zap.Error(err),
			)
			failures = append(failures, fmt.Errorf("%s: %w", src.jobType, err))
		}
	}

	switch {
	case len(failures) == 0:
		return nil
	case len(failures) == len(c.sources):
		return fmt.Errorf("all sources failed: %w", errors.Join(failures...))
	case c.requireAll:
		return fmt.Errorf("%d of %d sources failed: %w",
			len(failures), len(c.sources), errors.Join(failures...))
	default:
		c.logger.Info("composite completed partially",
			zap.Int("failed_sources", len(failures)),
			zap.Int("total_sources", len(c.sources)),
		)
		return &scraping.PartialFailure{
			Failed: len(failures),
			Total:  len(c.sources),
			Err:    errors.Join(failures...),
		}
	}
}
