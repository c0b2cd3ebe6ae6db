// Package static implements the team stats strategy using gocolly.
package static

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// Config controls collector behavior.
type Config struct {
	URL         string
	PageParam   string
	RowSelector string
	UserAgent   string
	// MaxPages caps pagination; zero means walk until an empty page.
	MaxPages int
	// Delay is the pause between page requests.
	Delay   time.Duration
	Timeout time.Duration
}

// Scraper walks the paginated team stats table and emits one record per row.
type Scraper struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Scraper.
func New(cfg Config, logger *zap.Logger) *Scraper {
	if cfg.PageParam == "" {
		cfg.PageParam = "page"
	}
	if cfg.RowSelector == "" {
		cfg.RowSelector = "tr.team"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Scraper{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Scrape implements scraping.Scraper. Pages are fetched sequentially starting
// at 1 until a page yields no rows or MaxPages is reached. Rows that fail to
// parse are skipped; pages that fail to fetch abort the run.
func (s *Scraper) Scrape(ctx context.Context, emit func(scraping.Record) error) error {
	for page := 1; ; page++ {
		if s.cfg.MaxPages > 0 && page > s.cfg.MaxPages {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return scraping.NewTransientExtraction(scraping.JobTypeTeamStats, err)
		}

		rows, err := s.scrapePage(ctx, page)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			s.logger.Debug("empty page, pagination complete", zap.Int("page", page))
			return nil
		}
		for _, row := range rows {
			if err := emit(row); err != nil {
				return scraping.NewStructuralExtraction(scraping.JobTypeTeamStats,
					fmt.Errorf("page %d: %w", page, err))
			}
		}
		s.logger.Debug("page scraped", zap.Int("page", page), zap.Int("rows", len(rows)))

		if s.cfg.Delay > 0 {
			select {
			case <-time.After(s.cfg.Delay):
			case <-ctx.Done():
				return scraping.NewTransientExtraction(scraping.JobTypeTeamStats, ctx.Err())
			}
		}
	}
}

func (s *Scraper) scrapePage(ctx context.Context, page int) ([]scraping.TeamStatRecord, error) {
	var (
		rows     []scraping.TeamStatRecord
		fetchErr error
	)

	collector := s.baseCollector.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.SetRequestTimeout(s.cfg.Timeout)

	collector.OnHTML(s.cfg.RowSelector, func(e *colly.HTMLElement) {
		row, err := parseRow(e)
		if err != nil {
			s.logger.Warn("skipping unparseable row",
				zap.Int("page", page), zap.Error(err))
			return
		}
		rows = append(rows, row)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	url := fmt.Sprintf("%s?%s=%d", s.cfg.URL, s.cfg.PageParam, page)
	if err := s.visit(ctx, collector, url); err != nil {
		return nil, scraping.NewTransientExtraction(scraping.JobTypeTeamStats,
			fmt.Errorf("page %d: %w", page, err))
	}
	if fetchErr != nil {
		return nil, scraping.NewTransientExtraction(scraping.JobTypeTeamStats,
			fmt.Errorf("page %d: %w", page, fetchErr))
	}
	return rows, nil
}

func (s *Scraper) visit(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("visit canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit failed: %w", err)
		}
		return nil
	}
}

// parseRow maps one table row onto a record. The team name cell is required;
// numeric cells default to zero when absent.
func parseRow(e *colly.HTMLElement) (scraping.TeamStatRecord, error) {
	name := strings.TrimSpace(e.ChildText("td.name"))
	if name == "" {
		return scraping.TeamStatRecord{}, fmt.Errorf("row has no team name")
	}

	year, err := cellInt(e, "td.year")
	if err != nil {
		return scraping.TeamStatRecord{}, err
	}
	wins, err := cellInt(e, "td.wins")
	if err != nil {
		return scraping.TeamStatRecord{}, err
	}
	losses, err := cellInt(e, "td.losses")
	if err != nil {
		return scraping.TeamStatRecord{}, err
	}
	otLosses, err := cellInt(e, "td.ot-losses")
	if err != nil {
		return scraping.TeamStatRecord{}, err
	}
	winPct, err := cellFloat(e, "td.pct")
	if err != nil {
		return scraping.TeamStatRecord{}, err
	}
	goalsFor, err := cellInt(e, "td.gf")
	if err != nil {
		return scraping.TeamStatRecord{}, err
	}
	goalsAgainst, err := cellInt(e, "td.ga")
	if err != nil {
		return scraping.TeamStatRecord{}, err
	}
	goalDiff, err := cellInt(e, "td.diff")
	if err != nil {
		return scraping.TeamStatRecord{}, err
	}

	return scraping.TeamStatRecord{
		TeamName:     name,
		Year:         year,
		Wins:         wins,
		Losses:       losses,
		OTLosses:     otLosses,
		WinPct:       winPct,
		GoalsFor:     goalsFor,
		GoalsAgainst: goalsAgainst,
		GoalDiff:     goalDiff,
	}, nil
}

func cellInt(e *colly.HTMLElement, selector string) (int, error) {
	text := strings.TrimSpace(e.ChildText(selector))
	if text == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("cell %s: %w", selector, err)
	}
	return n, nil
}

func cellFloat(e *colly.HTMLElement, selector string) (float64, error) {
	text := strings.TrimSpace(e.ChildText(selector))
	if text == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("cell %s: %w", selector, err)
	}
	return f, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
