package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/livefolio/internal/api"
	"github.com/mtlprog/livefolio/internal/cache"
	"github.com/mtlprog/livefolio/internal/config"
	"github.com/mtlprog/livefolio/internal/holdings"
	"github.com/mtlprog/livefolio/internal/metrics"
	"github.com/mtlprog/livefolio/internal/staleness"
	"github.com/mtlprog/livefolio/internal/valuation"
	"github.com/mtlprog/livefolio/internal/worker"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the valuation engine and HTTP API",
		Action: func(c *cli.Context) error {
			cfg, flush, err := setup(c)
			if err != nil {
				return err
			}
			defer flush()
			return serve(c.Context, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(registry)

	engine := valuation.NewEngine(rec)
	monitor := staleness.NewMonitor(engine, rec)
	shared := newFeed(cfg, monitor, rec)

	provider, pool, err := newHoldingsProvider(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}
	store := holdings.NewStore(provider, engine, rec)

	go monitor.Run(ctx)
	go worker.NewHoldingsWorker(store, cfg.HoldingsPollInterval).Run(ctx)

	// Background consumers keep the feed connected for the process lifetime; otherwise it
	// runs only while stream clients are attached.
	background := false

	exporters, err := newExporters(ctx, cfg, "")
	if err != nil {
		return err
	}
	if len(exporters) > 0 {
		exportWorker, err := worker.NewExportWorker(engine, cfg.ExportSchedule, exporters...)
		if err != nil {
			return fmt.Errorf("creating export worker: %w", err)
		}
		go exportWorker.Run(ctx)
		background = true
	}

	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		updates, cancel := engine.Subscribe()
		defer cancel()
		go cache.NewPublisher(client, cfg.Account()).Run(ctx, updates)
		background = true
	}

	if background {
		if err := shared.Acquire(ctx); err != nil {
			return fmt.Errorf("connecting price feed: %w", err)
		}
		defer shared.Release()
	}

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, holdings refresh endpoint is unprotected")
	}

	handler := api.NewHandler(engine, monitor, store, shared)
	srv := api.NewServer(cfg.HTTPPort, handler, registry, cfg.AdminAPIKey)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort, "feed", cfg.FeedKind, "holdings", cfg.HoldingsSource)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}
	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}
