// Package dbtest connects integration tests to a live PostgreSQL instance.
package dbtest

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/kantinyonetim/canteen-service/internal/config"
	"github.com/kantinyonetim/canteen-service/internal/db"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Config reads DB_*_TEST variables, falling back to a local instance.
func Config() config.PostgresConfig {
	return config.PostgresConfig{
		Host:        envOr("DB_HOST_TEST", "localhost"),
		Port:        envOr("DB_PORT_TEST", "5432"),
		User:        envOr("DB_USER_TEST", "postgres"),
		Password:    envOr("DB_PASSWORD_TEST", "postgres"),
		DBName:      envOr("DB_NAME_TEST", "canteen_test"),
		SSLMode:     envOr("DB_SSLMODE_TEST", "disable"),
		MaxConns:    5,
		MinConns:    1,
		TxIsolation: "read committed",
	}
}

// Open returns a migrated database, or nil when none is reachable so callers
// can skip their integration tests.
func Open() *db.Postgres {
	cfg := Config()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pg, err := db.New(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("host", cfg.Host).Msg("test database unavailable, integration tests will be skipped")
		return nil
	}

	if err := db.MigrateUp(cfg.MigrationURL()); err != nil {
		log.Error().Err(err).Msg("failed to migrate test database")
		pg.Close()
		return nil
	}
	return pg
}

// Truncate empties the given tables.
func Truncate(ctx context.Context, pool *pgxpool.Pool, tables ...string) error {
	for _, table := range tables {
		if _, err := pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return err
		}
	}
	return nil
}
