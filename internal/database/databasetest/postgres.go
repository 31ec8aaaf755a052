//go:build integration

// Package databasetest starts a disposable PostgreSQL for integration tests.
package databasetest

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/paper-search-service/internal/config"
	"github.com/helixir/paper-search-service/internal/database"
)

// Image is the PostgreSQL image used by integration tests.
const Image = "postgres:16-alpine"

// Config starts a container and returns a config pointing at it.
func Config(t *testing.T) *config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, Image,
		postgres.WithDatabase("paper_search"),
		postgres.WithUsername("papersearch"),
		postgres.WithPassword("papersearch"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return &config.DatabaseConfig{
		Enabled:        true,
		Host:           host,
		Port:           port.Int(),
		User:           "papersearch",
		Password:       "papersearch",
		Name:           "paper_search",
		SSLMode:        "disable",
		MaxConns:       5,
		ConnectTimeout: 10 * time.Second,
	}
}

// Open starts a container, connects, and optionally applies migrations.
func Open(t *testing.T, migrate bool) *database.DB {
	t.Helper()

	db, err := database.New(context.Background(), Config(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	if migrate {
		m, err := database.NewMigrator(db, MigrationsPath(), zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, m.Up())
		require.NoError(t, m.Close())
	}
	return db
}

// MigrationsPath returns the absolute path of the repository migrations.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}
