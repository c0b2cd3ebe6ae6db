// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	brokermemory "github.com/scrapejobs/scrapejobs/internal/broker/memory"
	brokerpubsub "github.com/scrapejobs/scrapejobs/internal/broker/pubsub"
	"github.com/scrapejobs/scrapejobs/internal/clock/system"
	"github.com/scrapejobs/scrapejobs/internal/config"
	"github.com/scrapejobs/scrapejobs/internal/id/uuid"
	"github.com/scrapejobs/scrapejobs/internal/scraper"
	"github.com/scrapejobs/scrapejobs/internal/scraper/headless"
	"github.com/scrapejobs/scrapejobs/internal/scraper/static"
	"github.com/scrapejobs/scrapejobs/internal/scraping"
	storagememory "github.com/scrapejobs/scrapejobs/internal/storage/memory"
	storagepostgres "github.com/scrapejobs/scrapejobs/internal/storage/postgres"
)

// App holds the shared, long-lived services for one process.
type App struct {
	Cfg       config.Config
	Logger    *zap.Logger
	Jobs      scraping.JobStore
	Results   scraping.ResultStore
	Publisher scraping.TaskPublisher
	Consumer  scraping.TaskConsumer
	IDGen     scraping.IDGenerator
	Clock     scraping.Clock

	pool     *pgxpool.Pool
	headless *headless.Scraper
}

// New wires stores and the broker from configuration. An empty db.dsn selects
// the in-memory stores; broker.provider selects between the process-local
// channel broker and Cloud Pub/Sub.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Cfg:    cfg,
		Logger: logger,
		IDGen:  uuid.New(),
		Clock:  system.New(),
	}

	if cfg.DB.DSN == "" {
		logger.Info("using in-memory stores")
		a.Jobs = storagememory.NewJobStore(a.Clock)
		a.Results = storagememory.NewResultStore()
	} else {
		logger.Info("connecting to postgres")
		pool, err := storagepostgres.NewPool(ctx, storagepostgres.PoolConfig{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetime) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize postgres: %w", err)
		}
		jobs, err := storagepostgres.NewJobStore(pool)
		if err != nil {
			return nil, fmt.Errorf("initialize job store: %w", err)
		}
		results, err := storagepostgres.NewResultStore(pool)
		if err != nil {
			return nil, fmt.Errorf("initialize result store: %w", err)
		}
		a.pool = pool
		a.Jobs = jobs
		a.Results = results
	}

	switch cfg.Broker.Provider {
	case "memory":
		logger.Info("using in-memory broker")
		b := brokermemory.New(cfg.Broker.QueueDepth)
		a.Publisher = b
		a.Consumer = b
	case "pubsub":
		logger.Info("connecting to pubsub", zap.String("project", cfg.Broker.ProjectID))
		b, err := brokerpubsub.New(ctx, brokerpubsub.Config{
			ProjectID:          cfg.Broker.ProjectID,
			SubscriptionPrefix: cfg.Broker.SubscriptionPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub: %w", err)
		}
		a.Publisher = b
		a.Consumer = b
	default:
		return nil, fmt.Errorf("unknown broker provider: %s", cfg.Broker.Provider)
	}

	return a, nil
}

// Ready reports whether downstream dependencies can serve traffic.
func (a *App) Ready(ctx context.Context) error {
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres unreachable: %w", err)
		}
	}
	return nil
}

// Scrapers builds the strategy registry from the configured sources.
func (a *App) Scrapers() (*scraper.Registry, error) {
	cfg := a.Cfg
	teamStats := static.New(static.Config{
		URL:         cfg.Sources.TeamStats.URL,
		PageParam:   cfg.Sources.TeamStats.PageParam,
		RowSelector: cfg.Sources.TeamStats.RowSelector,
		UserAgent:   cfg.Scraper.UserAgent,
		MaxPages:    cfg.Sources.TeamStats.MaxPages,
		Delay:       time.Duration(cfg.Sources.TeamStats.DelayMs) * time.Millisecond,
		Timeout:     cfg.ScrapeTimeout(),
	}, a.Logger.Named("teamstats"))

	filmAwards, err := headless.New(headless.Config{
		URL:          cfg.Sources.FilmAwards.URL,
		WaitSelector: cfg.Sources.FilmAwards.WaitSelector,
		UserAgent:    cfg.Scraper.UserAgent,
		WaitTimeout:  time.Duration(cfg.Sources.FilmAwards.WaitTimeoutSec) * time.Second,
		MaxParallel:  cfg.Sources.FilmAwards.MaxParallel,
	}, a.Logger.Named("filmawards"))
	if err != nil {
		return nil, fmt.Errorf("initialize headless scraper: %w", err)
	}
	a.headless = filmAwards

	registry := scraper.NewRegistry()
	registry.Register(scraping.JobTypeTeamStats, teamStats)
	registry.Register(scraping.JobTypeFilmAwards, filmAwards)
	registry.Register(scraping.JobTypeAll,
		scraper.NewComposite(cfg.Worker.RequireAllSources, a.Logger.Named("composite")).
			Add(scraping.JobTypeTeamStats, teamStats).
			Add(scraping.JobTypeFilmAwards, filmAwards))
	return registry, nil
}

// Close gracefully shuts down all services in the container.
func (a *App) Close() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn("error closing broker", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
