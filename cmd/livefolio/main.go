package main

import (
	"context"
	"embed"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/livefolio/internal/config"
	"github.com/mtlprog/livefolio/internal/database"
	"github.com/mtlprog/livefolio/internal/export"
	"github.com/mtlprog/livefolio/internal/feed"
	"github.com/mtlprog/livefolio/internal/holdings"
	"github.com/mtlprog/livefolio/internal/logging"
	"github.com/mtlprog/livefolio/internal/metrics"
	"github.com/mtlprog/livefolio/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "livefolio",
		Usage: "live portfolio valuation from a streaming price feed and polled holdings",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "override LOG_LEVEL"},
			&cli.StringFlag{Name: "log-format", Usage: "override LOG_FORMAT (json or console)"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			exportCommand(),
			migrateCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads configuration and installs the logger. The returned function flushes logs.
func setup(c *cli.Context) (config.Config, func(), error) {
	cfg := config.Load()
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.LogFormat = v
	}

	flush, err := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, nil, fmt.Errorf("setting up logging: %w", err)
	}
	return cfg, flush, nil
}

// newFeed returns a shared feed that builds a connection for the configured transport.
func newFeed(cfg config.Config, observer feed.Observer, rec *metrics.Recorder) *feed.Shared {
	return feed.NewShared(func() *feed.Connection {
		var transport feed.Transport
		switch cfg.FeedKind {
		case config.FeedCoinGecko:
			transport = feed.NewPollingTransport(cfg.CoinGeckoURL, cfg.FeedSymbols, cfg.CoinGeckoInterval)
		default:
			transport = feed.NewWebsocketTransport(cfg.FeedURL, cfg.FeedSymbols, cfg.FeedSubscribe)
		}
		return feed.NewConnection(transport, observer, rec)
	})
}

// newHoldingsProvider returns the configured provider. The pool is nil unless the postgres source
// is used; the caller closes it.
func newHoldingsProvider(ctx context.Context, cfg config.Config) (holdings.Provider, *pgxpool.Pool, error) {
	if cfg.HoldingsSource != config.HoldingsPostgres {
		return holdings.NewClient(cfg.HoldingsURL, cfg.HoldingsToken, cfg.HoldingsRetryMax, cfg.HoldingsRetryBaseDelay), nil, nil
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return holdings.NewPgRepository(pool, cfg.Account()), pool, nil
}

// newExporters builds the exporters enabled by configuration. xlsxPath overrides
// EXPORT_XLSX_PATH when set.
func newExporters(ctx context.Context, cfg config.Config, xlsxPath string) ([]worker.Exporter, error) {
	var exporters []worker.Exporter

	if xlsxPath == "" {
		xlsxPath = cfg.ExportXLSXPath
	}
	if xlsxPath != "" {
		xlsx := export.NewXLSXWriter(xlsxPath)
		slog.Info("export: xlsx enabled", "path", xlsx.Path())
		exporters = append(exporters, xlsx)
	}

	if cfg.SheetsSpreadsheetID != "" {
		sheets, err := export.NewSheetsWriter(ctx, cfg.SheetsSpreadsheetID, cfg.GoogleCredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("creating sheets exporter: %w", err)
		}
		slog.Info("export: google sheets enabled", "spreadsheet", cfg.SheetsSpreadsheetID)
		exporters = append(exporters, sheets)
	}

	return exporters, nil
}
