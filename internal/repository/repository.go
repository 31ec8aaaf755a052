// Package repository provides Postgres-backed persistence for the paper
// search service.
//
// Two tables are managed:
//
//   - content_references: the catalog of every full-text object written to
//     the content store, keyed by its stable file name.
//   - search_runs: one row per finished search, whatever the entry point.
//
// Implementations take a DBTX so they can run against the pool or inside a
// transaction:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    return repository.NewPgSearchRunRepository(tx).Record(ctx, run)
//	})
//
// Errors are domain errors (domain.ErrNotFound, *domain.ValidationError) or
// database errors wrapped with %w.
package repository

import (
	"github.com/helixir/paper-search-service/internal/database"
)

// DBTX is satisfied by the pool, a transaction, and pgxmock.
type DBTX = database.DBTX

const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}
