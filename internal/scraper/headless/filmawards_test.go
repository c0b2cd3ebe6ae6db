package headless

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	s, err := New(Config{URL: "http://example.test/films"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.Equal(t, ".film", s.cfg.WaitSelector)
	require.Equal(t, 30*time.Second, s.cfg.WaitTimeout)
	require.Nil(t, s.limiter)
}

func TestNewRejectsNegativeMaxParallel(t *testing.T) {
	t.Parallel()

	_, err := New(Config{URL: "http://example.test/films", MaxParallel: -1}, zap.NewNop())
	require.Error(t, err)
}

func TestNewSizesLimiter(t *testing.T) {
	t.Parallel()

	s, err := New(Config{URL: "http://example.test/films", MaxParallel: 2}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NotNil(t, s.limiter)
	require.Equal(t, 2, cap(s.limiter))
}

func TestAcquireBlocksUntilSlotOrCancel(t *testing.T) {
	t.Parallel()

	s, err := New(Config{URL: "http://example.test/films", MaxParallel: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.acquire(ctx), context.DeadlineExceeded)

	s.release()
	require.NoError(t, s.acquire(context.Background()))
	s.release()
}

func TestScrapeCanceledSlotWaitIsTransient(t *testing.T) {
	t.Parallel()

	s, err := New(Config{URL: "http://example.test/films", MaxParallel: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	// Hold the only browser slot so Scrape has to wait.
	require.NoError(t, s.acquire(context.Background()))
	defer s.release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scrapeErr := s.Scrape(ctx, func(scraping.Record) error { return nil })
	extErr := new(scraping.ExtractionError)
	require.ErrorAs(t, scrapeErr, &extErr)
	require.True(t, extErr.Transient())
	require.Equal(t, scraping.JobTypeFilmAwards, extErr.Source)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	s, err := New(Config{URL: "http://example.test/films"}, zap.NewNop())
	require.NoError(t, err)

	s.Close()
	s.Close()
}
