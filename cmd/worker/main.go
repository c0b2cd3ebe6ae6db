// Package main runs the scrape-job worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/scrapejobs/scrapejobs/internal/app"
	"github.com/scrapejobs/scrapejobs/internal/config"
	"github.com/scrapejobs/scrapejobs/internal/logging"
	"github.com/scrapejobs/scrapejobs/internal/metrics"
	"github.com/scrapejobs/scrapejobs/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	if cfg.Broker.Provider == "memory" {
		logger.Error("memory broker is process-local; run the api binary instead")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("service init failed", zap.Error(err))
		return
	}
	defer container.Close()

	registry, err := container.Scrapers()
	if err != nil {
		logger.Error("scraper init failed", zap.Error(err))
		return
	}

	w := worker.New(
		container.Jobs,
		container.Results,
		container.Consumer,
		registry,
		container.Clock,
		worker.Config{
			Queues:        cfg.WorkerQueues(),
			Concurrency:   cfg.Worker.Concurrency,
			ScrapeTimeout: cfg.ScrapeTimeout(),
		},
		logger.Named("worker"),
	)

	logger.Info("worker started", zap.Int("concurrency", cfg.Worker.Concurrency))
	w.Run(ctx)
	logger.Info("shutdown complete")
}
