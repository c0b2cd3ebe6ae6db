// Package gateway turns schedule requests into pending jobs plus a single
// broker publish.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// QueueResolver maps a job type to the queue its task message goes to.
type QueueResolver func(scraping.JobType) string

// Gateway creates jobs and dispatches their task messages.
type Gateway struct {
	jobs      scraping.JobStore
	publisher scraping.TaskPublisher
	queueFor  QueueResolver
	ids       scraping.IDGenerator
	clock     scraping.Clock
	logger    *zap.Logger
}

// New creates a Gateway.
func New(
	jobs scraping.JobStore,
	publisher scraping.TaskPublisher,
	queueFor QueueResolver,
	ids scraping.IDGenerator,
	clock scraping.Clock,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		jobs:      jobs,
		publisher: publisher,
		queueFor:  queueFor,
		ids:       ids,
		clock:     clock,
		logger:    logger,
	}
}

// Schedule creates a pending job for jobType and publishes exactly one task
// message for it. When the publish fails the job is moved to failed with the
// broker error recorded, and the failed job is returned alongside a
// *scraping.PublishError so callers can still hand out the job id.
func (g *Gateway) Schedule(ctx context.Context, jobType scraping.JobType) (scraping.Job, error) {
	if _, err := scraping.ParseJobType(string(jobType)); err != nil {
		return scraping.Job{}, err
	}

	id, err := g.ids.NewID()
	if err != nil {
		return scraping.Job{}, fmt.Errorf("generate job id: %w", err)
	}

	now := g.clock.Now()
	job := scraping.Job{
		ID:        id,
		Type:      jobType,
		Status:    scraping.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.jobs.Create(ctx, job); err != nil {
		return scraping.Job{}, fmt.Errorf("create job: %w", err)
	}

	queue := g.queueFor(jobType)
	task := scraping.TaskMessage{JobID: job.ID, JobType: jobType}
	if err := g.publisher.Publish(ctx, queue, task); err != nil {
		pubErr := new(scraping.PublishError)
		if !errors.As(err, &pubErr) {
			pubErr = &scraping.PublishError{Queue: queue, Err: err}
		}
		g.logger.Error("task publish failed, failing job",
			zap.String("job_id", job.ID),
			zap.String("job_type", string(jobType)),
			zap.String("queue", queue),
			zap.Error(err),
		)
		failed, trErr := g.jobs.Transition(ctx, job.ID, scraping.JobStatusFailed, pubErr.Error())
		if trErr != nil {
			g.logger.Error("failed to record publish failure",
				zap.String("job_id", job.ID), zap.Error(trErr))
			job.Status = scraping.JobStatusFailed
			job.ErrorMessage = pubErr.Error()
			return job, pubErr
		}
		return failed, pubErr
	}

	g.logger.Info("job scheduled",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(jobType)),
		zap.String("queue", queue),
	)
	return job, nil
}
