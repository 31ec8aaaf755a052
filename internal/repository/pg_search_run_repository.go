package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-search-service/internal/domain"
)

// PgSearchRunRepository implements SearchRunRepository on the search_runs table.
type PgSearchRunRepository struct {
	db DBTX
}

var _ SearchRunRepository = (*PgSearchRunRepository)(nil)

// NewPgSearchRunRepository creates a PgSearchRunRepository.
func NewPgSearchRunRepository(db DBTX) *PgSearchRunRepository {
	return &PgSearchRunRepository{db: db}
}

func (r *PgSearchRunRepository) Record(ctx context.Context, run *domain.SearchRun) error {
	if run == nil {
		return domain.NewValidationError("search_run", "search run is required")
	}
	if run.ProjectID == "" {
		return domain.NewValidationError("project_id", "project ID is required")
	}

	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}

	query := `
		INSERT INTO search_runs (
			id, project_id, correlation_id, query_terms, domain, requested, returned,
			status, trigger, stats, error, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.Exec(ctx, query,
		run.ID,
		run.ProjectID,
		run.CorrelationID,
		run.QueryTerms,
		run.Domain,
		run.Requested,
		run.Returned,
		string(run.Status),
		string(run.Trigger),
		statsJSON,
		run.Error,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record search run: %w", err)
	}
	return nil
}

func (r *PgSearchRunRepository) ListRecent(ctx context.Context, projectID string, limit int) ([]*domain.SearchRun, error) {
	offset := 0
	applyPaginationDefaults(&limit, &offset)

	query := `
		SELECT id, project_id, correlation_id, query_terms, domain, requested, returned,
			status, trigger, stats, error, started_at, completed_at
		FROM search_runs
		WHERE ($1 = '' OR project_id = $1)
		ORDER BY completed_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list search runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.SearchRun, 0, limit)
	for rows.Next() {
		run, err := scanSearchRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search runs: %w", err)
	}
	return runs, nil
}

func (r *PgSearchRunRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM search_runs WHERE completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune search runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TxBeginner runs a function inside a transaction. *database.DB satisfies it.
type TxBeginner interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// RunHistory records finished runs and trims history older than the
// retention window in the same transaction.
type RunHistory struct {
	db        TxBeginner
	retention time.Duration
	now       func() time.Time
}

// NewRunHistory creates a RunHistory. A zero retention disables pruning.
func NewRunHistory(db TxBeginner, retention time.Duration) *RunHistory {
	return &RunHistory{db: db, retention: retention, now: time.Now}
}

// Record inserts run and prunes expired rows.
func (h *RunHistory) Record(ctx context.Context, run *domain.SearchRun) error {
	return h.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		repo := NewPgSearchRunRepository(tx)
		if err := repo.Record(ctx, run); err != nil {
			return err
		}
		if h.retention <= 0 {
			return nil
		}
		_, err := repo.Prune(ctx, h.now().Add(-h.retention))
		return err
	})
}

func scanSearchRun(row pgx.Row) (*domain.SearchRun, error) {
	var run domain.SearchRun
	var status, trigger string
	var statsJSON []byte

	if err := row.Scan(
		&run.ID, &run.ProjectID, &run.CorrelationID, &run.QueryTerms, &run.Domain,
		&run.Requested, &run.Returned, &status, &trigger, &statsJSON, &run.Error,
		&run.StartedAt, &run.CompletedAt,
	); err != nil {
		return nil, err
	}

	run.Status = domain.SearchStatus(status)
	run.Trigger = domain.Trigger(trigger)
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &run.Stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run stats: %w", err)
		}
	}
	return &run, nil
}
