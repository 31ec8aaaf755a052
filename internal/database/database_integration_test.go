//go:build integration

package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/database"
	"github.com/helixir/paper-search-service/internal/database/databasetest"
)

func TestDB_Integration(t *testing.T) {
	db := databasetest.Open(t, false)
	ctx := context.Background()

	t.Run("health", func(t *testing.T) {
		h := db.Health(ctx)
		assert.Equal(t, "healthy", h.Status)
		assert.GreaterOrEqual(t, h.MaxConns, int32(1))
	})

	t.Run("query through DBTX", func(t *testing.T) {
		var dbtx database.DBTX = db
		rows, err := dbtx.Query(ctx, "SELECT generate_series(1, 3)")
		require.NoError(t, err)
		defer rows.Close()

		var got []int
		for rows.Next() {
			var v int
			require.NoError(t, rows.Scan(&v))
			got = append(got, v)
		}
		assert.Equal(t, []int{1, 2, 3}, got)
	})

	t.Run("transaction commits", func(t *testing.T) {
		_, err := db.Exec(ctx, "CREATE TABLE tx_roundtrip (v INT)")
		require.NoError(t, err)

		err = db.WithTransaction(ctx, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, "INSERT INTO tx_roundtrip VALUES (1)")
			return err
		})
		require.NoError(t, err)

		var n int
		require.NoError(t, db.QueryRow(ctx, "SELECT count(*) FROM tx_roundtrip").Scan(&n))
		assert.Equal(t, 1, n)
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "INSERT INTO tx_roundtrip VALUES (2)"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		var n int
		require.NoError(t, db.QueryRow(ctx, "SELECT count(*) FROM tx_roundtrip WHERE v = 2").Scan(&n))
		assert.Zero(t, n)
	})

	t.Run("transaction rolls back and repanics", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = db.WithTransaction(ctx, func(pgx.Tx) error { panic("boom") })
		})
	})
}

func TestMigrator_Integration(t *testing.T) {
	db := databasetest.Open(t, false)
	ctx := context.Background()

	m, err := database.NewMigrator(db, databasetest.MigrationsPath(), zerolog.Nop())
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	var exists bool
	require.NoError(t, db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'search_runs')").Scan(&exists))
	assert.True(t, exists)

	// Up again is a no-op.
	require.NoError(t, m.Up())

	require.NoError(t, m.Steps(-1))
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.Force(1))
	require.NoError(t, m.Down())
}
