// Package headless implements the film awards strategy with a browser.
package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// Config controls the behavior of the headless scraper.
type Config struct {
	URL          string
	WaitSelector string
	UserAgent    string
	WaitTimeout  time.Duration
	MaxParallel  int
}

// Scraper renders the film awards page in headless Chrome and emits one
// record per film card once the AJAX content settles.
type Scraper struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New creates a headless scraper backed by chromedp.
func New(cfg Config, logger *zap.Logger) (*Scraper, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = ".film"
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 30 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Scraper{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context, tearing down the browser.
func (s *Scraper) Close() {
	s.allocCancel()
}

// filmDTO mirrors the shape produced by the in-page extraction script.
type filmDTO struct {
	Year        int    `json:"year"`
	Title       string `json:"title"`
	Nominations int    `json:"nominations"`
	Awards      int    `json:"awards"`
	BestPicture bool   `json:"best_picture"`
}

// extractScript pulls every film card into a JSON-friendly array. Parsing
// happens in the page so one round trip captures the whole rendered DOM.
const extractScript = `Array.from(document.querySelectorAll(%q)).map(el => {
	const text = (sel) => {
		const node = el.querySelector(sel);
		return node ? node.textContent.trim() : "";
	};
	return {
		year: parseInt(text(".year"), 10) || 0,
		title: text(".film-title"),
		nominations: parseInt(text(".nominations"), 10) || 0,
		awards: parseInt(text(".awards"), 10) || 0,
		best_picture: el.querySelector(".best-picture") !== null,
	};
})`

// Scrape implements scraping.Scraper. A timeout waiting for the content
// selector is transient; a rendered page with unusable cards is structural.
func (s *Scraper) Scrape(ctx context.Context, emit func(scraping.Record) error) error {
	if err := s.acquire(ctx); err != nil {
		return scraping.NewTransientExtraction(scraping.JobTypeFilmAwards, err)
	}
	defer s.release()

	taskCtx, taskCancel := chromedp.NewContext(s.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.WaitTimeout)
	defer cancel()

	// Stop the tab when the caller's context ends before the wait timeout.
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	var films []filmDTO
	actions := []chromedp.Action{
		s.userAgentAction(),
		chromedp.Navigate(s.cfg.URL),
		chromedp.WaitVisible(s.cfg.WaitSelector, chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(fmt.Sprintf(extractScript, s.cfg.WaitSelector), &films),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return scraping.NewTransientExtraction(scraping.JobTypeFilmAwards,
				fmt.Errorf("waiting for %q: %w", s.cfg.WaitSelector, err))
		}
		return scraping.NewStructuralExtraction(scraping.JobTypeFilmAwards,
			fmt.Errorf("chromedp run: %w", err))
	}

	s.logger.Debug("films rendered", zap.Int("count", len(films)))

	emitted := 0
	for _, film := range films {
		if film.Title == "" {
			s.logger.Warn("skipping film card without a title")
			continue
		}
		record := scraping.FilmAwardRecord{
			Year:        film.Year,
			Title:       film.Title,
			Nominations: film.Nominations,
			Awards:      film.Awards,
			BestPicture: film.BestPicture,
		}
		if err := emit(record); err != nil {
			return scraping.NewStructuralExtraction(scraping.JobTypeFilmAwards, err)
		}
		emitted++
	}
	if len(films) > 0 && emitted == 0 {
		return scraping.NewStructuralExtraction(scraping.JobTypeFilmAwards,
			fmt.Errorf("no film card had a usable title"))
	}
	return nil
}

func (s *Scraper) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

func (s *Scraper) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (s *Scraper) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}
