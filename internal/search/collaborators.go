// Package search implements the search orchestrator: multi-round fan-out over
// the active providers, deduplication, refinement, enrichment, ranking and
// mandatory content enforcement.
package search

import (
	"context"

	"github.com/helixir/paper-search-service/internal/content"
	"github.com/helixir/paper-search-service/internal/domain"
)

// RefinementInput is what the refiner sees when asked for follow-up queries.
type RefinementInput struct {
	OriginalTerms []string
	Domain        string
	SamplePapers  []*domain.Paper
	MaxQueries    int
}

// Refiner proposes new queries when a round falls short of its target.
// An empty result stops further rounds.
type Refiner interface {
	RefineQueries(ctx context.Context, input RefinementInput) ([]string, error)
	Ready() bool
}

// Enricher fills missing metadata. It must return every paper it was given.
type Enricher interface {
	EnrichPapers(ctx context.Context, papers []*domain.Paper) []*domain.Paper
}

// ContentEnforcer keeps only papers that end up with a durable content
// reference. A returned error is a failure of the stage itself, not of a
// single paper.
type ContentEnforcer interface {
	Enforce(ctx context.Context, papers []*domain.Paper, batchSize int) ([]*domain.Paper, content.Report, error)
}
