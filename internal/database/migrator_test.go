package database

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lazyPool returns a pool that never dials until used.
func lazyPool(t *testing.T) *DB {
	t.Helper()
	pool, err := pgxpool.New(context.Background(), "postgres://u:p@127.0.0.1:1/none?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return &DB{pool: pool, logger: zerolog.Nop()}
}

func TestNewMigrator_Validation(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("nil database", func(t *testing.T) {
		m, err := NewMigrator(nil, "/some/path", logger)
		assert.Nil(t, m)
		assert.ErrorContains(t, err, "database is required")
	})

	t.Run("nil pool", func(t *testing.T) {
		m, err := NewMigrator(&DB{}, "/some/path", logger)
		assert.Nil(t, m)
		assert.ErrorContains(t, err, "database pool not initialized")
	})

	t.Run("empty path", func(t *testing.T) {
		m, err := NewMigrator(lazyPool(t), "", logger)
		assert.Nil(t, m)
		assert.ErrorContains(t, err, "migrations path is required")
	})

	t.Run("missing directory", func(t *testing.T) {
		m, err := NewMigrator(lazyPool(t), t.TempDir()+"/absent", logger)
		assert.Nil(t, m)
		assert.ErrorContains(t, err, "migrations path validation failed")
	})
}
