package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/paper-search-service/internal/dedup"
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/papersources"
)

// Config holds orchestrator tuning knobs.
type Config struct {
	// PapersPerSource is the limit passed to each provider call.
	PapersPerSource int

	// MaxRounds bounds the number of fan-out rounds, including the first.
	MaxRounds int

	// CompensationFactor inflates the target to offset content discards.
	CompensationFactor float64

	// MaxRefinedQueries bounds the queries requested from the refiner.
	MaxRefinedQueries int

	// RefinementSampleSize bounds the papers shown to the refiner.
	RefinementSampleSize int

	// ProviderTimeout bounds one provider call.
	ProviderTimeout time.Duration

	// SlowProviderTimeout applies to providers listed in SlowProviders.
	SlowProviderTimeout time.Duration
	SlowProviders       []domain.Provider

	// MaxRateLimitRetries is the number of retries after a rate-limit signal.
	MaxRateLimitRetries int

	// RateLimitBackoff is the fixed delay between rate-limited attempts.
	RateLimitBackoff time.Duration

	// ContentBatchSize is passed to the content enforcer.
	ContentBatchSize int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PapersPerSource:      5,
		MaxRounds:            2,
		CompensationFactor:   2.0,
		MaxRefinedQueries:    3,
		RefinementSampleSize: 10,
		ProviderTimeout:      30 * time.Second,
		SlowProviderTimeout:  60 * time.Second,
		SlowProviders:        []domain.Provider{domain.ProviderSemanticScholar},
		MaxRateLimitRetries:  1,
		RateLimitBackoff:     2 * time.Second,
		ContentBatchSize:     8,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.PapersPerSource <= 0 {
		c.PapersPerSource = d.PapersPerSource
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = d.MaxRounds
	}
	if c.CompensationFactor < 1 {
		c.CompensationFactor = d.CompensationFactor
	}
	if c.MaxRefinedQueries <= 0 {
		c.MaxRefinedQueries = d.MaxRefinedQueries
	}
	if c.RefinementSampleSize <= 0 {
		c.RefinementSampleSize = d.RefinementSampleSize
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = d.ProviderTimeout
	}
	if c.SlowProviderTimeout <= 0 {
		c.SlowProviderTimeout = d.SlowProviderTimeout
	}
	if c.SlowProviders == nil {
		c.SlowProviders = d.SlowProviders
	}
	// Negative values disable rate-limit retries and backoff.
	switch {
	case c.MaxRateLimitRetries == 0:
		c.MaxRateLimitRetries = d.MaxRateLimitRetries
	case c.MaxRateLimitRetries < 0:
		c.MaxRateLimitRetries = 0
	}
	switch {
	case c.RateLimitBackoff == 0:
		c.RateLimitBackoff = d.RateLimitBackoff
	case c.RateLimitBackoff < 0:
		c.RateLimitBackoff = 0
	}
	if c.ContentBatchSize <= 0 {
		c.ContentBatchSize = d.ContentBatchSize
	}
}

// Dependencies are the collaborators an Orchestrator is built from.
// Refiner and Enricher are optional.
type Dependencies struct {
	Providers *papersources.ActiveSet
	Filters   *papersources.FilterBuilder
	Dedup     *dedup.Engine
	Enforcer  ContentEnforcer
	Refiner   Refiner
	Enricher  Enricher
}

// Orchestrator runs searches. Runs on one Orchestrator are serialized
// because they share a single deduplication session.
type Orchestrator struct {
	cfg     Config
	deps    Dependencies
	slow    map[domain.Provider]bool
	logger  zerolog.Logger
	metrics *observability.Metrics

	runMu sync.Mutex
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator validates deps and returns a ready Orchestrator.
// metrics may be nil.
func NewOrchestrator(cfg Config, deps Dependencies, logger zerolog.Logger, metrics *observability.Metrics) (*Orchestrator, error) {
	if deps.Providers == nil {
		return nil, errors.New("search: provider set is required")
	}
	if deps.Dedup == nil {
		return nil, errors.New("search: deduplication engine is required")
	}
	if deps.Enforcer == nil {
		return nil, errors.New("search: content enforcer is required")
	}
	cfg.applyDefaults()
	if deps.Filters == nil {
		deps.Filters = papersources.NewFilterBuilder(papersources.DefaultRecentYears)
	}

	slow := make(map[domain.Provider]bool, len(cfg.SlowProviders))
	for _, p := range cfg.SlowProviders {
		slow[p] = true
	}

	return &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		slow:    slow,
		logger:  logger.With().Str("component", "search_orchestrator").Logger(),
		metrics: metrics,
		sleep:   sleepContext,
	}, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Providers returns the active provider set.
func (o *Orchestrator) Providers() *papersources.ActiveSet {
	return o.deps.Providers
}

// RefinementReady reports whether a usable refiner is configured.
func (o *Orchestrator) RefinementReady() bool {
	return o.deps.Refiner != nil && o.deps.Refiner.Ready()
}

// Description summarizes the orchestrator for the stats endpoint and CLI.
type Description struct {
	Providers            []string `json:"providers"`
	PapersPerSource      int      `json:"papersPerSource"`
	MaxRounds            int      `json:"maxRounds"`
	CompensationFactor   float64  `json:"compensationFactor"`
	MaxRefinedQueries    int      `json:"maxRefinedQueries"`
	ProviderTimeout      string   `json:"providerTimeout"`
	SlowProviderTimeout  string   `json:"slowProviderTimeout"`
	MaxRateLimitRetries  int      `json:"maxRateLimitRetries"`
	ContentBatchSize     int      `json:"contentBatchSize"`
	RefinementReady      bool     `json:"aiRefinementReady"`
	EnrichmentConfigured bool     `json:"enrichmentConfigured"`
}

// Describe returns the active providers and effective knobs.
func (o *Orchestrator) Describe() Description {
	return Description{
		Providers:            o.deps.Providers.NameStrings(),
		PapersPerSource:      o.cfg.PapersPerSource,
		MaxRounds:            o.cfg.MaxRounds,
		CompensationFactor:   o.cfg.CompensationFactor,
		MaxRefinedQueries:    o.cfg.MaxRefinedQueries,
		ProviderTimeout:      o.cfg.ProviderTimeout.String(),
		SlowProviderTimeout:  o.cfg.SlowProviderTimeout.String(),
		MaxRateLimitRetries:  o.cfg.MaxRateLimitRetries,
		ContentBatchSize:     o.cfg.ContentBatchSize,
		RefinementReady:      o.RefinementReady(),
		EnrichmentConfigured: o.deps.Enricher != nil,
	}
}

// EnhancedTarget returns the candidate count collected for a target size.
func (o *Orchestrator) EnhancedTarget(targetSize int) int {
	t := int(float64(targetSize) * o.cfg.CompensationFactor)
	if t < targetSize {
		t = targetSize
	}
	return t
}

// SearchPapers runs one search and returns at most targetSize papers, each
// carrying a content reference. Provider and per-paper failures are folded
// into the returned stats. A non-nil error means the content stage itself
// failed; the outcome then holds no papers.
func (o *Orchestrator) SearchPapers(ctx context.Context, queryTerms []string, researchDomain string, targetSize int) (*Outcome, error) {
	if len(queryTerms) == 0 {
		return nil, domain.NewValidationError("queryTerms", "must be a non-empty list")
	}
	if targetSize <= 0 {
		return nil, domain.NewValidationError("targetSize", "must be positive")
	}

	o.runMu.Lock()
	defer o.runMu.Unlock()

	start := time.Now()
	logger := observability.LoggerWithContext(ctx, o.logger)
	o.metrics.RecordSearchStarted()

	// INIT
	o.deps.Dedup.Reset()
	enhanced := o.EnhancedTarget(targetSize)
	stats := domain.RunStats{EnhancedTarget: enhanced}
	queries := []string{strings.Join(queryTerms, " ")}

	logger.Info().
		Strs("query_terms", queryTerms).
		Str("domain", researchDomain).
		Int("target_size", targetSize).
		Int("enhanced_target", enhanced).
		Int("providers", o.deps.Providers.Len()).
		Msg("search started")

	attempted := make(map[domain.Provider]bool)
	succeeded := make(map[domain.Provider]bool)

	// ROUND(n)
	for round := 1; round <= o.cfg.MaxRounds; round++ {
		stats.RoundsExecuted = round
		for _, q := range queries {
			outcomes := o.fanOut(ctx, q, researchDomain)
			stats.QueriesExecuted++
			for _, out := range outcomes {
				attempted[out.Provider] = true
				if !out.Succeeded() {
					stats.ProviderFailures = append(stats.ProviderFailures, out.failure())
					continue
				}
				succeeded[out.Provider] = true
				before := o.deps.Dedup.Stats().DuplicatesRejected
				added := o.deps.Dedup.AddPapers(out.Papers)
				o.metrics.RecordDuplicates(o.deps.Dedup.Stats().DuplicatesRejected - before)
				logger.Debug().
					Str("provider", string(out.Provider)).
					Str("query", q).
					Int("returned", len(out.Papers)).
					Int("added", added).
					Msg("merged provider results")
			}
		}

		unique := o.deps.Dedup.PaperCount()
		logger.Info().Int("round", round).Int("unique_papers", unique).Msg("round complete")

		if unique >= enhanced || round == o.cfg.MaxRounds {
			break
		}

		// REFINE
		refined := o.refine(ctx, logger, queryTerms, researchDomain)
		if len(refined) == 0 {
			break
		}
		queries = refined
	}

	stats.ProvidersAttempted = len(attempted)
	stats.ProvidersSucceeded = len(succeeded)
	stats.DuplicatesRemoved = o.deps.Dedup.Stats().DuplicatesRejected

	candidates := o.deps.Dedup.Papers()
	if len(candidates) > enhanced {
		candidates = candidates[:enhanced]
	}
	stats.CandidatesCollected = len(candidates)

	if o.deps.Enricher != nil && len(candidates) > 0 {
		candidates = o.deps.Enricher.EnrichPapers(ctx, candidates)
	}
	ranked := Rank(candidates, queryTerms)

	// ENFORCE_CONTENT
	kept, report, err := o.deps.Enforcer.Enforce(ctx, ranked, o.cfg.ContentBatchSize)
	stats.ContentKept = report.Kept
	stats.ContentDiscarded = report.Discarded
	stats.ContentReused = report.Reused
	if err != nil {
		stats.DurationMillis = time.Since(start).Milliseconds()
		o.metrics.RecordSearchFailed(time.Since(start).Seconds())
		logger.Error().Err(err).Int("candidates", len(ranked)).Msg("content enforcement failed")
		return &Outcome{Papers: []*domain.Paper{}, Stats: stats}, fmt.Errorf("%w: %w", domain.ErrContentEnforcement, err)
	}

	// COMPLETE
	if len(kept) > targetSize {
		kept = kept[:targetSize]
	}
	if kept == nil {
		kept = []*domain.Paper{}
	}
	stats.DurationMillis = time.Since(start).Milliseconds()
	o.metrics.RecordSearchCompleted(len(kept), time.Since(start).Seconds())

	logger.Info().
		Int("papers", len(kept)).
		Int("rounds", stats.RoundsExecuted).
		Int("providers_attempted", stats.ProvidersAttempted).
		Int("providers_succeeded", stats.ProvidersSucceeded).
		Int("duplicates_removed", stats.DuplicatesRemoved).
		Int("content_kept", stats.ContentKept).
		Int("content_discarded", stats.ContentDiscarded).
		Int64("duration_ms", stats.DurationMillis).
		Msg("search completed")

	return &Outcome{Papers: kept, Stats: stats}, nil
}

// refine asks the refiner for follow-up queries. Any failure yields none.
func (o *Orchestrator) refine(ctx context.Context, logger zerolog.Logger, terms []string, researchDomain string) []string {
	if !o.RefinementReady() {
		return nil
	}

	sample := o.deps.Dedup.Papers()
	if len(sample) > o.cfg.RefinementSampleSize {
		sample = sample[:o.cfg.RefinementSampleSize]
	}

	queries, err := o.deps.Refiner.RefineQueries(ctx, RefinementInput{
		OriginalTerms: terms,
		Domain:        researchDomain,
		SamplePapers:  sample,
		MaxQueries:    o.cfg.MaxRefinedQueries,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("query refinement failed")
		o.metrics.RecordRefinement("error")
		return nil
	}

	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
		if len(out) == o.cfg.MaxRefinedQueries {
			break
		}
	}
	if len(out) == 0 {
		o.metrics.RecordRefinement("empty")
		return nil
	}
	o.metrics.RecordRefinement("queries")
	logger.Info().Strs("queries", out).Msg("refined queries")
	return out
}

// fanOut dispatches query to every active provider in parallel and waits for
// all of them. Outcomes are returned in provider order.
func (o *Orchestrator) fanOut(ctx context.Context, query, researchDomain string) []ProviderOutcome {
	providers := o.deps.Providers.Providers()
	outcomes := make([]ProviderOutcome, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			outcomes[i] = o.dispatch(ctx, p, query, researchDomain)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// dispatch runs one provider call under the retry and timeout policy.
func (o *Orchestrator) dispatch(ctx context.Context, p papersources.Provider, query, researchDomain string) ProviderOutcome {
	name := p.Name()
	filters := o.deps.Filters.Build(name, researchDomain, query)
	timeout := o.cfg.ProviderTimeout
	if o.slow[name] {
		timeout = o.cfg.SlowProviderTimeout
	}

	logger := observability.WithSearchContext(o.logger, query, string(name))
	out := ProviderOutcome{Provider: name, Query: query}
	start := time.Now()

	for attempt := 0; ; attempt++ {
		out.Attempts = attempt + 1
		papers, timedOut, err := o.call(ctx, p, query, filters, timeout)
		if err == nil {
			out.Kind = OutcomeSucceeded
			out.Papers = stampSource(papers, name)
			out.Err = nil
			break
		}
		out.Err = err

		if ctx.Err() != nil {
			out.Kind = OutcomeCanceled
			break
		}
		if timedOut {
			out.Kind = OutcomeTimedOut
			break
		}
		if domain.IsRateLimited(err) {
			o.metrics.RecordProviderRateLimited(string(name))
			if attempt < o.cfg.MaxRateLimitRetries {
				logger.Debug().
					Int("attempt", out.Attempts).
					Dur("backoff", o.cfg.RateLimitBackoff).
					Msg("provider rate limited, backing off")
				if o.sleep(ctx, o.cfg.RateLimitBackoff) != nil {
					out.Kind = OutcomeCanceled
					break
				}
				continue
			}
			out.Kind = OutcomeRateLimited
			break
		}
		out.Kind = OutcomeFailed
		break
	}

	out.Duration = time.Since(start)
	reason := ""
	if !out.Succeeded() {
		reason = out.Kind.String()
		logger.Warn().
			Err(out.Err).
			Str("reason", reason).
			Int("attempts", out.Attempts).
			Msg("provider search failed")
	}
	o.metrics.RecordProviderRequest(string(name), len(out.Papers), out.Duration.Seconds(), reason)
	return out
}

// callResult carries one provider reply back to call.
type callResult struct {
	papers []*domain.Paper
	err    error
}

// call performs a single provider search under its own deadline. The search
// runs in its own goroutine so a provider that ignores its context cannot hold
// the round past the deadline; a late reply is discarded. A panic in the
// provider is converted into an error.
func (o *Orchestrator) call(ctx context.Context, p papersources.Provider, query string, filters papersources.Filters, timeout time.Duration) ([]*domain.Paper, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		var res callResult
		defer func() {
			if r := recover(); r != nil {
				res = callResult{err: fmt.Errorf("provider %s panicked: %v", p.Name(), r)}
			}
			done <- res
		}()
		res.papers, res.err = p.Search(callCtx, query, o.cfg.PapersPerSource, filters)
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, true, res.err
		}
		return res.papers, false, res.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("provider %s: %w", p.Name(), context.DeadlineExceeded)
	}
}

func stampSource(papers []*domain.Paper, name domain.Provider) []*domain.Paper {
	out := make([]*domain.Paper, 0, len(papers))
	for _, p := range papers {
		if p == nil {
			continue
		}
		if p.Source == "" {
			p.Source = name
		}
		out = append(out, p)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
