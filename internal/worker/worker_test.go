package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	brokermemory "github.com/scrapejobs/scrapejobs/internal/broker/memory"
	"github.com/scrapejobs/scrapejobs/internal/metrics"
	"github.com/scrapejobs/scrapejobs/internal/scraper"
	"github.com/scrapejobs/scrapejobs/internal/scraping"
	storagememory "github.com/scrapejobs/scrapejobs/internal/storage/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type scraperFunc func(ctx context.Context, emit func(scraping.Record) error) error

func (f scraperFunc) Scrape(ctx context.Context, emit func(scraping.Record) error) error {
	return f(ctx, emit)
}

type fakeResolver struct {
	scrapers map[scraping.JobType]scraping.Scraper
}

func (r *fakeResolver) Resolve(t scraping.JobType) (scraping.Scraper, error) {
	s, ok := r.scrapers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no strategy", scraping.ErrUnknownJobType, t)
	}
	return s, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type settlement struct {
	acked  bool
	nacked bool
}

func delivery(task scraping.TaskMessage) (scraping.TaskDelivery, *settlement) {
	st := &settlement{}
	return scraping.TaskDelivery{
		Task: task,
		Ack:  func() { st.acked = true },
		Nack: func() { st.nacked = true },
	}, st
}

func emitStat(name string) scraperFunc {
	return func(_ context.Context, emit func(scraping.Record) error) error {
		return emit(scraping.TeamStatRecord{
			TeamName: name,
			Year:     1990,
			Wins:     40,
			Losses:   30,
			WinPct:   0.5,
		})
	}
}

func newTestWorker(
	jobs scraping.JobStore,
	results scraping.ResultStore,
	resolver ScraperResolver,
) *Worker {
	return New(jobs, results, nil, resolver, &fakeClock{now: time.Unix(100, 0)}, Config{
		Queues:        map[scraping.JobType]string{},
		ScrapeTimeout: time.Second,
	}, zap.NewNop())
}

func seedJob(t *testing.T, jobs scraping.JobStore, id string, jt scraping.JobType) {
	t.Helper()
	require.NoError(t, jobs.Create(context.Background(), scraping.Job{
		ID:     id,
		Type:   jt,
		Status: scraping.JobStatusPending,
	}))
}

func TestWorkerHandleSuccessFlow(t *testing.T) {
	t.Parallel()

	jobs := storagememory.NewJobStore(nil)
	results := storagememory.NewResultStore()
	resolver := &fakeResolver{scrapers: map[scraping.JobType]scraping.Scraper{
		scraping.JobTypeTeamStats: emitStat("Boston Bruins"),
	}}
	w := newTestWorker(jobs, results, resolver)

	seedJob(t, jobs, "job-1", scraping.JobTypeTeamStats)
	d, st := delivery(scraping.TaskMessage{JobID: "job-1", JobType: scraping.JobTypeTeamStats})

	w.Handle(context.Background(), d)

	require.True(t, st.acked)
	require.False(t, st.nacked)

	job, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scraping.JobStatusCompleted, job.Status)

	stats, err := results.TeamStatsByJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, "Boston Bruins", stats[0].TeamName)
}

func TestWorkerHandleDropsDuplicateDelivery(t *testing.T) {
	t.Parallel()

	jobs := storagememory.NewJobStore(nil)
	results := storagememory.NewResultStore()
	resolver := &fakeResolver{scrapers: map[scraping.JobType]scraping.Scraper{
		scraping.JobTypeTeamStats: emitStat("Boston Bruins"),
	}}
	w := newTestWorker(jobs, results, resolver)

	seedJob(t, jobs, "job-1", scraping.JobTypeTeamStats)

	first, _ := delivery(scraping.TaskMessage{JobID: "job-1", JobType: scraping.JobTypeTeamStats})
	w.Handle(context.Background(), first)

	second, st := delivery(scraping.TaskMessage{JobID: "job-1", JobType: scraping.JobTypeTeamStats})
	w.Handle(context.Background(), second)

	require.True(t, st.acked)

	// No duplicate rows from the redelivery.
	stats, err := results.TeamStatsByJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
}

func TestWorkerHandleUnknownJobAcks(t *testing.T) {
	t.Parallel()

	w := newTestWorker(storagememory.NewJobStore(nil), storagememory.NewResultStore(),
		&fakeResolver{scrapers: map[scraping.JobType]scraping.Scraper{}})

	d, st := delivery(scraping.TaskMessage{JobID: "ghost", JobType: scraping.JobTypeTeamStats})
	w.Handle(context.Background(), d)

	require.True(t, st.acked)
	require.False(t, st.nacked)
}

func TestWorkerHandleExtractionFailureFailsJob(t *testing.T) {
	t.Parallel()

	jobs := storagememory.NewJobStore(nil)
	resolver := &fakeResolver{scrapers: map[scraping.JobType]scraping.Scraper{
		scraping.JobTypeFilmAwards: scraperFunc(func(context.Context, func(scraping.Record) error) error {
			return scraping.NewTransientExtraction(scraping.JobTypeFilmAwards, errors.New("timeout"))
		}),
	}}
	w := newTestWorker(jobs, storagememory.NewResultStore(), resolver)

	seedJob(t, jobs, "job-1", scraping.JobTypeFilmAwards)
	d, st := delivery(scraping.TaskMessage{JobID: "job-1", JobType: scraping.JobTypeFilmAwards})

	w.Handle(context.Background(), d)

	require.True(t, st.acked)

	job, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scraping.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorMessage, "timeout")
}

func TestWorkerHandleInvalidRecordFailsJob(t *testing.T) {
	t.Parallel()

	jobs := storagememory.NewJobStore(nil)
	results := storagememory.NewResultStore()
	resolver := &fakeResolver{scrapers: map[scraping.JobType]scraping.Scraper{
		scraping.JobTypeTeamStats: scraperFunc(func(_ context.Context, emit func(scraping.Record) error) error {
			return emit(scraping.TeamStatRecord{TeamName: ""})
		}),
	}}
	w := newTestWorker(jobs, results, resolver)

	seedJob(t, jobs, "job-1", scraping.JobTypeTeamStats)
	d, st := delivery(scraping.TaskMessage{JobID: "job-1", JobType: scraping.JobTypeTeamStats})

	w.Handle(context.Background(), d)

	require.True(t, st.acked)

	job, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scraping.JobStatusFailed, job.Status)

	stats, err := results.TeamStatsByJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Empty(t, stats)
}

func TestWorkerHandleCompositePartialFailureCompletesWithDetail(t *testing.T) {
	t.Parallel()

	jobs := storagememory.NewJobStore(nil)
	results := storagememory.NewResultStore()
	composite := scraper.NewComposite(false, zap.NewNop()).
		Add(scraping.JobTypeTeamStats, emitStat("Boston Bruins")).
		Add(scraping.JobTypeFilmAwards, scraperFunc(func(context.Context, func(scraping.Record) error) error {
			return scraping.NewTransientExtraction(scraping.JobTypeFilmAwards, errors.New("wait timeout"))
		}))
	resolver := &fakeResolver{scrapers: map[scraping.JobType]scraping.Scraper{
		scraping.JobTypeAll: composite,
	}}
	w := newTestWorker(jobs, results, resolver)

	seedJob(t, jobs, "job-1", scraping.JobTypeAll)
	d, st := delivery(scraping.TaskMessage{JobID: "job-1", JobType: scraping.JobTypeAll})

	w.Handle(context.Background(), d)

	require.True(t, st.acked)
	require.False(t, st.nacked)

	// The job completes on the surviving source, with the failed one named.
	job, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scraping.JobStatusCompleted, job.Status)
	require.Contains(t, job.ErrorMessage, "film_awards")
	require.Contains(t, job.ErrorMessage, "1 of 2 sources failed")

	stats, err := results.TeamStatsByJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
}

func TestWorkerHandleUnknownTypeFailsJob(t *testing.T) {
	t.Parallel()

	jobs := storagememory.NewJobStore(nil)
	w := newTestWorker(jobs, storagememory.NewResultStore(),
		&fakeResolver{scrapers: map[scraping.JobType]scraping.Scraper{}})

	seedJob(t, jobs, "job-1", scraping.JobTypeTeamStats)
	d, st := delivery(scraping.TaskMessage{JobID: "job-1", JobType: scraping.JobTypeTeamStats})

	w.Handle(context.Background(), d)

	require.True(t, st.acked)

	job, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scraping.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorMessage, "no strategy")
}

func TestWorkerRunConsumesQueue(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := storagememory.NewJobStore(nil)
	results := storagememory.NewResultStore()
	broker := brokermemory.New(4)
	resolver := &fakeResolver{scrapers: map[scraping.JobType]scraping.Scraper{
		scraping.JobTypeTeamStats: emitStat("Dallas Stars"),
	}}

	w := New(jobs, results, broker, resolver, &fakeClock{now: time.Unix(100, 0)}, Config{
		Queues:        map[scraping.JobType]string{scraping.JobTypeTeamStats: "scrape-team-stats"},
		Concurrency:   2,
		ScrapeTimeout: time.Second,
	}, zap.NewNop())

	seedJob(t, jobs, "job-1", scraping.JobTypeTeamStats)
	require.NoError(t, broker.Publish(ctx, "scrape-team-stats",
		scraping.TaskMessage{JobID: "job-1", JobType: scraping.JobTypeTeamStats}))

	go w.Run(ctx)

	require.Eventually(t, func() bool {
		job, err := jobs.Get(ctx, "job-1")
		return err == nil && job.Status == scraping.JobStatusCompleted
	}, time.Second, 10*time.Millisecond)
	cancel()
}
