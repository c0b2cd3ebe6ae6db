package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	brokermemory "github.com/scrapejobs/scrapejobs/internal/broker/memory"
	"github.com/scrapejobs/scrapejobs/internal/scraping"
	storagememory "github.com/scrapejobs/scrapejobs/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeIDGen struct {
	id  string
	err error
}

func (g *fakeIDGen) NewID() (string, error) { return g.id, g.err }

func queueFor(scraping.JobType) string { return "scrape-test" }

func TestGatewaySchedulePublishesOneTask(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	jobs := storagememory.NewJobStore(clock)
	broker := brokermemory.New(4)
	gw := New(jobs, broker, queueFor, &fakeIDGen{id: "job-1"}, clock, zap.NewNop())

	job, err := gw.Schedule(context.Background(), scraping.JobTypeTeamStats)
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, scraping.JobStatusPending, job.Status)
	require.Equal(t, clock.now, job.CreatedAt)
	require.Equal(t, 1, broker.Pending("scrape-test"))

	stored, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scraping.JobStatusPending, stored.Status)
}

func TestGatewayScheduleRejectsUnknownType(t *testing.T) {
	t.Parallel()

	jobs := storagememory.NewJobStore(nil)
	gw := New(jobs, brokermemory.New(4), queueFor, &fakeIDGen{id: "job-1"}, &fakeClock{}, zap.NewNop())

	_, err := gw.Schedule(context.Background(), scraping.JobType("hockey"))
	require.ErrorIs(t, err, scraping.ErrUnknownJobType)

	_, err = jobs.Get(context.Background(), "job-1")
	require.ErrorIs(t, err, scraping.ErrJobNotFound)
}

func TestGatewaySchedulePublishFailureFailsJob(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	jobs := storagememory.NewJobStore(clock)
	broker := brokermemory.New(4)
	broker.PublishErr = errors.New("broker offline")
	gw := New(jobs, broker, queueFor, &fakeIDGen{id: "job-1"}, clock, zap.NewNop())

	job, err := gw.Schedule(context.Background(), scraping.JobTypeFilmAwards)

	pubErr := new(scraping.PublishError)
	require.ErrorAs(t, err, &pubErr)
	// The failed job handle still comes back so callers get the id.
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, scraping.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorMessage, "broker offline")

	stored, getErr := jobs.Get(context.Background(), "job-1")
	require.NoError(t, getErr)
	require.Equal(t, scraping.JobStatusFailed, stored.Status)
}

func TestGatewayScheduleIDGenFailure(t *testing.T) {
	t.Parallel()

	jobs := storagememory.NewJobStore(nil)
	gw := New(jobs, brokermemory.New(4), queueFor,
		&fakeIDGen{err: errors.New("entropy exhausted")}, &fakeClock{}, zap.NewNop())

	_, err := gw.Schedule(context.Background(), scraping.JobTypeAll)
	require.ErrorContains(t, err, "generate job id")
}
