package repository

import (
	"context"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
)

// ContentRepository is the catalog of stored full-text objects.
type ContentRepository interface {
	// Upsert records ref, replacing any row with the same file name.
	Upsert(ctx context.Context, ref *domain.ContentReference) error

	// GetByFileName returns domain.ErrNotFound for unknown names.
	GetByFileName(ctx context.Context, fileName string) (*domain.ContentReference, error)

	// DeleteByFileName reports whether a row was removed.
	DeleteByFileName(ctx context.Context, fileName string) (bool, error)

	// List returns a page of references, newest first, and the total match count.
	List(ctx context.Context, filter ContentFilter) ([]*domain.ContentReference, int64, error)

	// Summary returns the object count and total stored bytes.
	Summary(ctx context.Context) (ContentSummary, error)
}

// ContentFilter narrows a List call.
type ContentFilter struct {
	// DOI matches exactly when set.
	DOI string

	// Limit defaults to 100 and is capped at 1000.
	Limit  int
	Offset int
}

// Validate applies pagination defaults.
func (f *ContentFilter) Validate() error {
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}

// ContentSummary aggregates the catalog.
type ContentSummary struct {
	Objects    int64 `json:"objects"`
	TotalBytes int64 `json:"totalBytes"`
}

// SearchRunRepository stores the history of finished searches.
type SearchRunRepository interface {
	// Record inserts run.
	Record(ctx context.Context, run *domain.SearchRun) error

	// ListRecent returns up to limit runs, newest first. An empty projectID
	// matches every project.
	ListRecent(ctx context.Context, projectID string, limit int) ([]*domain.SearchRun, error)

	// Prune deletes runs completed before cutoff and returns how many went.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}
