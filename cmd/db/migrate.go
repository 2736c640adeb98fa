package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/garrettladley/noticeboard/internal/migrations"
	"github.com/garrettladley/noticeboard/internal/migrations/postgres"
	"github.com/garrettladley/noticeboard/internal/paths"
	"github.com/garrettladley/noticeboard/internal/storage"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

func migrateCmd() *cobra.Command {
	var (
		driver string
		dbURL  string
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := xslog.WithLogger(cmd.Context(), slog.Default())

			var (
				applied []string
				err     error
			)
			switch driver {
			case driverSQLite:
				applied, err = migrateSQLite(ctx, dbPath)
			case driverPostgres:
				if dbURL == "" {
					dbURL = os.Getenv("DATABASE_URL")
				}
				applied, err = migratePostgres(ctx, dbURL)
			default:
				return fmt.Errorf("unknown driver %q (want %s or %s)", driver, driverSQLite, driverPostgres)
			}
			if err != nil {
				return err
			}

			if len(applied) == 0 {
				fmt.Println("Database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Printf("Applied %s\n", name)
			}
			fmt.Println("Migrations applied successfully")
			return nil
		},
	}
	cmd.Flags().StringVar(&driver, "driver", driverSQLite, "database driver (sqlite or postgres)")
	cmd.Flags().StringVar(&dbURL, "url", "", "postgres connection URL (default $DATABASE_URL)")
	cmd.Flags().StringVar(&dbPath, "path", "", "sqlite database path (default ~/.config/noticeboard/noticeboard.db)")
	return cmd
}

func migrateSQLite(ctx context.Context, dbPath string) ([]string, error) {
	if dbPath == "" {
		if _, err := paths.EnsureDir(); err != nil {
			return nil, err
		}
		p, err := paths.DB()
		if err != nil {
			return nil, err
		}
		dbPath = p
	}

	db, err := storage.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	return migrations.Apply(ctx, db.DB)
}

func migratePostgres(ctx context.Context, dbURL string) ([]string, error) {
	if dbURL == "" {
		return nil, errors.New("postgres requires --url or DATABASE_URL")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	return postgres.Apply(ctx, pool)
}
