package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/livefolio/internal/database"
	"github.com/mtlprog/livefolio/internal/domain"
	"github.com/mtlprog/livefolio/internal/holdings"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "seed", Usage: "JSON file of holdings to store for ACCOUNT_ID after migrating"},
		},
		Action: func(c *cli.Context) error {
			cfg, flush, err := setup(c)
			if err != nil {
				return err
			}
			defer flush()

			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			pool, err := database.Connect(c.Context, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()

			migrationsSub, err := fs.Sub(migrationsFS, "migrations")
			if err != nil {
				return fmt.Errorf("creating migrations sub-fs: %w", err)
			}
			applied, err := database.RunMigrations(c.Context, pool, migrationsSub)
			if err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			slog.Info("migrate: done", "applied", len(applied))

			seed := c.String("seed")
			if seed == "" {
				return nil
			}

			data, err := os.ReadFile(seed)
			if err != nil {
				return fmt.Errorf("reading seed file: %w", err)
			}
			var list []domain.Holding
			if err := json.Unmarshal(data, &list); err != nil {
				return fmt.Errorf("decoding seed file: %w", err)
			}
			if err := holdings.Validate(list); err != nil {
				return err
			}
			if err := holdings.NewPgRepository(pool, cfg.Account()).SaveHoldings(c.Context, list); err != nil {
				return err
			}
			slog.Info("migrate: holdings seeded", "account", cfg.Account(), "holdings", len(list))
			return nil
		},
	}
}
