// Package worker implements the scrape pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrapejobs/scrapejobs/internal/metrics"
	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// ScraperResolver maps a job type to its extraction strategy.
type ScraperResolver interface {
	Resolve(t scraping.JobType) (scraping.Scraper, error)
}

// Config controls Worker behavior.
type Config struct {
	// Queues lists every queue the worker consumes from, keyed by job type.
	Queues map[scraping.JobType]string
	// Concurrency is the number of receive loops per queue.
	Concurrency int
	// ScrapeTimeout bounds one strategy execution end to end.
	ScrapeTimeout time.Duration
}

// Worker consumes task messages and executes the matching scrape strategy.
type Worker struct {
	jobs     scraping.JobStore
	results  scraping.ResultStore
	consumer scraping.TaskConsumer
	scrapers ScraperResolver
	clock    scraping.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	jobs scraping.JobStore,
	results scraping.ResultStore,
	consumer scraping.TaskConsumer,
	scrapers ScraperResolver,
	clock scraping.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ScrapeTimeout <= 0 {
		cfg.ScrapeTimeout = 30 * time.Second
	}
	return &Worker{
		jobs:     jobs,
		results:  results,
		consumer: consumer,
		scrapers: scrapers,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, consuming every configured queue until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for jobType, queue := range w.cfg.Queues {
		for i := 0; i < w.cfg.Concurrency; i++ {
			wg.Add(1)
			go func(jt scraping.JobType, q string) {
				defer wg.Done()
				if err := w.consumer.Receive(ctx, q, w.Handle); err != nil && ctx.Err() == nil {
					w.logger.Error("queue receive failed",
						zap.String("queue", q),
						zap.String("job_type", string(jt)),
						zap.Error(err),
					)
				}
			}(jobType, queue)
		}
	}
	<-ctx.Done()
	wg.Wait()
}

// Handle processes one delivery end to end and settles it. Deliveries for
// jobs already in a terminal state are acknowledged without side effects, so
// redeliveries are harmless.
func (w *Worker) Handle(ctx context.Context, d scraping.TaskDelivery) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	task := d.Task
	log := w.logger.With(
		zap.String("job_id", task.JobID),
		zap.String("job_type", string(task.JobType)),
	)

	job, err := w.jobs.Get(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, scraping.ErrJobNotFound) {
			log.Warn("task references unknown job, dropping")
			d.Ack()
			return
		}
		log.Error("job lookup failed, requeueing", zap.Error(err))
		d.Nack()
		return
	}
	if job.Status.IsTerminal() {
		log.Info("job already settled, dropping duplicate delivery",
			zap.String("status", string(job.Status)))
		d.Ack()
		return
	}

	if _, err := w.jobs.Transition(ctx, task.JobID, scraping.JobStatusRunning, ""); err != nil {
		if errors.Is(err, scraping.ErrInvalidTransition) || errors.Is(err, scraping.ErrJobNotFound) {
			log.Warn("job not claimable, dropping delivery", zap.Error(err))
			d.Ack()
			return
		}
		log.Error("claim transition failed, requeueing", zap.Error(err))
		d.Nack()
		return
	}

	scraper, err := w.scrapers.Resolve(task.JobType)
	if err != nil {
		w.failJob(ctx, log, task, err)
		d.Ack()
		return
	}

	records, err := w.execute(ctx, task.JobType, scraper)
	var completionNote string
	if err != nil {
		var partial *scraping.PartialFailure
		if !errors.As(err, &partial) {
			w.failJob(ctx, log, task, err)
			d.Ack()
			return
		}
		// Some sources failed but others delivered; the job completes and the
		// per-source failures travel with it.
		completionNote = partial.Error()
		log.Warn("completing with partial results", zap.Error(partial))
	}

	if len(records) > 0 {
		if err := w.results.Append(ctx, task.JobID, records); err != nil {
			w.failJob(ctx, log, task, err)
			d.Ack()
			return
		}
	}

	if _, err := w.jobs.Transition(ctx, task.JobID, scraping.JobStatusCompleted, completionNote); err != nil {
		log.Error("completion transition failed", zap.Error(err))
		d.Ack()
		return
	}

	metrics.ObserveJob(string(task.JobType), string(scraping.JobStatusCompleted))
	w.countRecords(records)
	log.Info("job completed", zap.Int("records", len(records)))
	d.Ack()
}

// execute runs the strategy under the scrape timeout, buffering emitted
// records so they persist as one atomic batch. Records emitted before a
// failure are returned alongside the error so partial composite runs keep
// what their succeeding sources extracted.
func (w *Worker) execute(ctx context.Context, jobType scraping.JobType, scraper scraping.Scraper) ([]scraping.Record, error) {
	runCtx, cancel := context.WithTimeout(ctx, w.cfg.ScrapeTimeout)
	defer cancel()

	start := w.clock.Now()
	var records []scraping.Record
	err := scraper.Scrape(runCtx, func(r scraping.Record) error {
		if err := r.Validate(); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	metrics.ObserveScrape(string(jobType), w.clock.Now().Sub(start))
	return records, err
}

// failJob settles the job as failed, recording the failure text. A lost race
// with another transition is logged and dropped rather than retried: the job
// already reached a terminal state through some other path.
func (w *Worker) failJob(ctx context.Context, log *zap.Logger, task scraping.TaskMessage, cause error) {
	log.Error("job failed", zap.Error(cause))
	if _, err := w.jobs.Transition(ctx, task.JobID, scraping.JobStatusFailed, cause.Error()); err != nil {
		log.Error("failure transition failed", zap.Error(err))
		return
	}
	metrics.ObserveJob(string(task.JobType), string(scraping.JobStatusFailed))
}

func (w *Worker) countRecords(records []scraping.Record) {
	counts := map[scraping.JobType]int{}
	for _, r := range records {
		counts[r.Kind()]++
	}
	for kind, n := range counts {
		metrics.ObserveRecords(string(kind), n)
	}
}
