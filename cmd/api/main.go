// Package main runs the scrape-job HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/scrapejobs/scrapejobs/internal/api"
	"github.com/scrapejobs/scrapejobs/internal/app"
	"github.com/scrapejobs/scrapejobs/internal/config"
	"github.com/scrapejobs/scrapejobs/internal/gateway"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("service init failed", zap.Error(err))
		return
	}
	defer container.Close()

	gw := gateway.New(
		container.Jobs,
		container.Publisher,
		cfg.QueueFor,
		container.IDGen,
		container.Clock,
		logger.Named("gateway"),
	)

	// With the process-local broker nothing else can drain the queues, so the
	// API binary runs the worker loop in-process.
	if cfg.Broker.Provider == "memory" {
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
		go func() {
			logger.Info("in-process worker started")
			w.Run(ctx)
		}()
	}

	apiServer := api.NewServer(
		container.Jobs,
		container.Results,
		gw,
		container.Ready,
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
