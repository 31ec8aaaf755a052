package search

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
)

// Searcher is the orchestrator surface used by entry points.
type Searcher interface {
	SearchPapers(ctx context.Context, queryTerms []string, researchDomain string, targetSize int) (*Outcome, error)
}

// RunRecorder stores finished runs.
type RunRecorder interface {
	Record(ctx context.Context, run *domain.SearchRun) error
}

// Service turns a SearchRequest into a SearchResponse. It is shared by the
// broker consumer, the HTTP API and the CLI.
type Service struct {
	searcher Searcher
	recorder RunRecorder
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a Service. recorder may be nil.
func NewService(searcher Searcher, recorder RunRecorder, logger zerolog.Logger) *Service {
	return &Service{
		searcher: searcher,
		recorder: recorder,
		logger:   logger.With().Str("component", "search_service").Logger(),
		now:      time.Now,
	}
}

// Execute validates req and runs it. Invalid requests return a
// *domain.ValidationError and never reach the orchestrator. A failed content
// stage yields a FAILED response with no papers and a nil error.
func (s *Service) Execute(ctx context.Context, req *domain.SearchRequest, trigger domain.Trigger) (*domain.SearchResponse, error) {
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx = observability.WithProjectID(ctx, req.ProjectID)
	if req.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, req.CorrelationID)
	}
	logger := observability.LoggerWithContext(ctx, s.logger)

	started := s.now()
	outcome, err := s.searcher.SearchPapers(ctx, req.QueryTerms, req.Domain, req.BatchSize)

	var resp *domain.SearchResponse
	switch {
	case err != nil && outcome == nil:
		// Rejected before running; only argument errors take this path.
		return nil, err
	case err != nil:
		logger.Error().Err(err).Msg("search run failed")
		resp = domain.NewSearchResponse(req, nil, outcome.Stats, err)
	case outcome == nil:
		resp = domain.NewSearchResponse(req, nil, domain.RunStats{}, nil)
	default:
		resp = domain.NewSearchResponse(req, outcome.Papers, outcome.Stats, nil)
	}

	if s.recorder != nil {
		if rerr := s.recorder.Record(ctx, domain.NewSearchRun(req, resp, trigger, started)); rerr != nil {
			logger.Warn().Err(rerr).Msg("failed to record search run")
		}
	}
	return resp, nil
}
