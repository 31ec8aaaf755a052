package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
)

// DefaultBatchSize bounds concurrent acquisitions.
const DefaultBatchSize = 8

// ErrNotConfigured is returned when the enforcer lacks a store or acquirer.
var ErrNotConfigured = fmt.Errorf("content: enforcer is not configured: %w", domain.ErrPermanent)

// paperResult is the per-paper outcome inside a batch.
type paperResult struct {
	paper  *domain.Paper
	reused bool
	err    error
}

// Enforcer drops every paper it cannot attach durable full text to.
type Enforcer struct {
	store    Store
	acquirer Acquirer
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewEnforcer creates an Enforcer. metrics may be nil.
func NewEnforcer(store Store, acquirer Acquirer, logger zerolog.Logger, metrics *observability.Metrics) *Enforcer {
	return &Enforcer{
		store:    store,
		acquirer: acquirer,
		logger:   logger.With().Str("component", "content_enforcer").Logger(),
		metrics:  metrics,
	}
}

// Store returns the underlying content store.
func (e *Enforcer) Store() Store {
	return e.store
}

// Enforce processes papers in sequential batches of batchSize, concurrently
// within a batch, and returns the survivors in input order with ContentRef
// set. A failure on one paper only drops that paper. An error is returned
// only when the stage cannot run at all or ctx is done.
func (e *Enforcer) Enforce(ctx context.Context, papers []*domain.Paper, batchSize int) ([]*domain.Paper, Report, error) {
	var report Report
	if e.store == nil || e.acquirer == nil {
		return nil, report, ErrNotConfigured
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	kept := make([]*domain.Paper, 0, len(papers))
	for start := 0; start < len(papers); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, report, fmt.Errorf("content enforcement interrupted: %w", err)
		}

		end := min(start+batchSize, len(papers))
		results := e.runBatch(ctx, papers[start:end])

		for _, r := range results {
			if r.err != nil {
				report.Discarded++
				continue
			}
			report.Kept++
			if r.reused {
				report.Reused++
			}
			kept = append(kept, r.paper)
		}

		e.logger.Debug().
			Int("batch_start", start).
			Int("batch_size", end-start).
			Int("kept", report.Kept).
			Int("discarded", report.Discarded).
			Msg("content batch processed")
	}

	e.metrics.RecordContent(report.Kept, report.Discarded, report.Reused)
	e.logger.Info().
		Int("candidates", len(papers)).
		Int("kept", report.Kept).
		Int("discarded", report.Discarded).
		Int("reused", report.Reused).
		Msg("content enforcement complete")

	return kept, report, nil
}

func (e *Enforcer) runBatch(ctx context.Context, batch []*domain.Paper) []paperResult {
	results := make([]paperResult, len(batch))

	var g errgroup.Group
	for i, p := range batch {
		g.Go(func() error {
			results[i] = e.processSafely(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Enforcer) processSafely(ctx context.Context, p *domain.Paper) (res paperResult) {
	defer func() {
		if r := recover(); r != nil {
			res = paperResult{err: fmt.Errorf("content acquisition panicked: %v", r)}
			e.logger.Error().Interface("panic", r).Msg("recovered from panic during content acquisition")
		}
	}()

	if p == nil {
		return paperResult{err: errors.New("nil paper")}
	}
	logger := observability.WithPaperContext(e.logger, FileName(p), p.Title)
	res = e.process(ctx, logger, p)
	if res.err != nil {
		logger.Debug().Err(res.err).Msg("paper discarded without content")
	}
	return res
}

func (e *Enforcer) process(ctx context.Context, logger zerolog.Logger, p *domain.Paper) paperResult {
	ref, ok, err := e.store.ExistingReference(ctx, p)
	if err != nil {
		logger.Warn().Err(err).Msg("existing reference lookup failed")
	} else if ok && ref != "" {
		p.ContentRef = ref
		return paperResult{paper: p, reused: true}
	}

	c, err := e.acquirer.Acquire(ctx, p)
	if err != nil {
		return paperResult{err: err}
	}
	if c == nil || len(c.Data) == 0 {
		return paperResult{err: domain.ErrContentUnavailable}
	}

	ref, err = e.store.Persist(ctx, p, c)
	if err != nil {
		return paperResult{err: fmt.Errorf("persist content: %w", err)}
	}
	if ref == "" {
		return paperResult{err: errors.New("persist content: empty reference")}
	}

	p.ContentRef = ref
	return paperResult{paper: p}
}
