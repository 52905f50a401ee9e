package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/livefolio/internal/config"
	"github.com/mtlprog/livefolio/internal/holdings"
	"github.com/mtlprog/livefolio/internal/staleness"
	"github.com/mtlprog/livefolio/internal/valuation"
	"github.com/mtlprog/livefolio/internal/worker"
)

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "value the portfolio once and write it to the configured exporters",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "XLSX file to write (overrides EXPORT_XLSX_PATH)"},
			&cli.DurationFlag{Name: "wait", Value: 10 * time.Second, Usage: "how long to collect live prices before exporting"},
		},
		Action: func(c *cli.Context) error {
			cfg, flush, err := setup(c)
			if err != nil {
				return err
			}
			defer flush()
			return exportOnce(c.Context, cfg, c.String("out"), c.Duration("wait"))
		},
	}
}

func exportOnce(ctx context.Context, cfg config.Config, out string, wait time.Duration) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	exporters, err := newExporters(ctx, cfg, out)
	if err != nil {
		return err
	}
	if len(exporters) == 0 {
		return errors.New("no exporter configured: pass --out or set EXPORT_XLSX_PATH or SHEETS_SPREADSHEET_ID")
	}

	engine := valuation.NewEngine(nil)
	monitor := staleness.NewMonitor(engine, nil)

	provider, pool, err := newHoldingsProvider(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}
	if _, err := holdings.NewStore(provider, engine, nil).Refresh(ctx); err != nil {
		return fmt.Errorf("fetching holdings: %w", err)
	}

	shared := newFeed(cfg, monitor, nil)
	if err := shared.Acquire(ctx); err != nil {
		return fmt.Errorf("connecting price feed: %w", err)
	}
	defer shared.Release()

	slog.Info("export: collecting prices", "wait", wait)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}
	monitor.Check()

	exportWorker, err := worker.NewExportWorker(engine, cfg.ExportSchedule, exporters...)
	if err != nil {
		return err
	}
	if ok := exportWorker.ExportOnce(ctx); ok < len(exporters) {
		return fmt.Errorf("%d of %d exports failed", len(exporters)-ok, len(exporters))
	}

	result := engine.Result()
	slog.Info("export: done", "total", result.TotalValue.StringFixed(2), "live", result.LiveCount(), "holdings", len(result.PerHolding), "health", result.FeedHealth)
	return nil
}
