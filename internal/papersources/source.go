// Package papersources provides the provider gateway set: a uniform search
// capability over external academic sources, the registry that builds the
// active set at startup, and the shared HTTP plumbing the clients use.
package papersources

import (
	"context"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Filters carries provider-specific search restrictions derived from the
// research domain. Zero values mean "no restriction".
type Filters struct {
	// YearFrom and YearTo bound the publication year (inclusive).
	YearFrom int
	YearTo   int

	// Category is a provider subject category, e.g. "cs.*" for arXiv or
	// "Computer Science" for CORE.
	Category string

	// Field is a provider field-of-study slug, e.g. "computer-science" for OpenAlex.
	Field string

	// OpenAccessOnly restricts results to open access works.
	OpenAccessOnly bool

	// FullTextOnly restricts results to works with full text available.
	FullTextOnly bool

	// Sort is a provider-native sort expression.
	Sort string
}

// Provider is the uniform search capability every source exposes.
//
// Implementations must be safe for concurrent use and must honour ctx
// cancellation. Throttling must be reported as an error matching
// domain.ErrRateLimited so callers can apply their retry policy.
type Provider interface {
	// Search returns up to limit papers matching query.
	Search(ctx context.Context, query string, limit int, filters Filters) ([]*domain.Paper, error)

	// Name identifies the provider.
	Name() domain.Provider
}

// DetailFetcher is implemented by providers that can resolve a single work
// by identifier. It backs metadata enrichment.
type DetailFetcher interface {
	GetByID(ctx context.Context, id string) (*domain.Paper, error)
}
