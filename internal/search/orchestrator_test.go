package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/content"
	"github.com/helixir/paper-search-service/internal/dedup"
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

// stubProvider answers every search through fn.
type stubProvider struct {
	name  domain.Provider
	calls atomic.Int32
	fn    func(ctx context.Context, query string, call int) ([]*domain.Paper, error)

	mu      sync.Mutex
	queries []string
}

func (s *stubProvider) Name() domain.Provider { return s.name }

func (s *stubProvider) Search(ctx context.Context, query string, _ int, _ papersources.Filters) ([]*domain.Paper, error) {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	return s.fn(ctx, query, n)
}

func (s *stubProvider) seenQueries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func returning(papers ...*domain.Paper) func(context.Context, string, int) ([]*domain.Paper, error) {
	return func(context.Context, string, int) ([]*domain.Paper, error) {
		return domain.ClonePapers(papers), nil
	}
}

func failing(err error) func(context.Context, string, int) ([]*domain.Paper, error) {
	return func(context.Context, string, int) ([]*domain.Paper, error) {
		return nil, err
	}
}

// passEnforcer attaches a reference to every paper, or drops all of them.
type passEnforcer struct {
	dropAll bool
	err     error
	got     []*domain.Paper
}

func (e *passEnforcer) Enforce(_ context.Context, papers []*domain.Paper, _ int) ([]*domain.Paper, content.Report, error) {
	e.got = papers
	if e.err != nil {
		return nil, content.Report{}, e.err
	}
	if e.dropAll {
		return []*domain.Paper{}, content.Report{Discarded: len(papers)}, nil
	}
	for _, p := range papers {
		p.ContentRef = "https://files.example.org/" + content.FileName(p)
	}
	return papers, content.Report{Kept: len(papers)}, nil
}

type stubRefiner struct {
	ready   bool
	queries []string
	err     error
	inputs  []RefinementInput
}

func (r *stubRefiner) Ready() bool { return r.ready }

func (r *stubRefiner) RefineQueries(_ context.Context, in RefinementInput) ([]string, error) {
	r.inputs = append(r.inputs, in)
	return r.queries, r.err
}

func paper(title, doi string) *domain.Paper {
	return &domain.Paper{Title: title, DOI: doi, Abstract: title}
}

func numbered(prefix string, n int) []*domain.Paper {
	out := make([]*domain.Paper, n)
	for i := range out {
		out[i] = paper(fmt.Sprintf("%s %d", prefix, i), fmt.Sprintf("10.9/%s.%d", prefix, i))
	}
	return out
}

func newTestOrchestrator(t *testing.T, cfg Config, enforcer ContentEnforcer, refiner Refiner, providers ...papersources.Provider) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(cfg, Dependencies{
		Providers: papersources.NewActiveSet(providers...),
		Dedup:     dedup.NewEngine(zerolog.Nop()),
		Enforcer:  enforcer,
		Refiner:   refiner,
	}, zerolog.Nop(), nil)
	require.NoError(t, err)
	o.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return o
}

func TestNewOrchestrator_RequiresCollaborators(t *testing.T) {
	_, err := NewOrchestrator(Config{}, Dependencies{}, zerolog.Nop(), nil)
	assert.Error(t, err)

	_, err = NewOrchestrator(Config{}, Dependencies{
		Providers: papersources.NewActiveSet(),
		Dedup:     dedup.NewEngine(zerolog.Nop()),
	}, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestOrchestrator_Describe(t *testing.T) {
	a := &stubProvider{name: domain.ProviderArXiv, fn: returning()}
	o := newTestOrchestrator(t, Config{MaxRounds: 3}, &passEnforcer{}, &stubRefiner{ready: true}, a)

	d := o.Describe()
	assert.Equal(t, []string{string(domain.ProviderArXiv)}, d.Providers)
	assert.Equal(t, 3, d.MaxRounds)
	assert.Equal(t, 2.0, d.CompensationFactor)
	assert.True(t, d.RefinementReady)
	assert.False(t, d.EnrichmentConfigured)
}

func TestSearchPapers_RejectsInvalidInput(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, &passEnforcer{}, nil)

	_, err := o.SearchPapers(context.Background(), nil, "Computer Science", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = o.SearchPapers(context.Background(), []string{"x"}, "Computer Science", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSearchPapers_DeduplicatesAcrossProviders(t *testing.T) {
	aiayn := paper("Attention Is All You Need", "10.1/abc")
	other := paper("Efficient Transformers: A Survey", "10.2/xyz")

	a := &stubProvider{name: domain.ProviderArXiv, fn: returning(aiayn)}
	b := &stubProvider{name: domain.ProviderOpenAlex, fn: returning(aiayn, other)}
	enforcer := &passEnforcer{}
	o := newTestOrchestrator(t, Config{}, enforcer, nil, a, b)

	out, err := o.SearchPapers(context.Background(), []string{"transformer", "attention"}, "Computer Science", 3)
	require.NoError(t, err)

	assert.Len(t, enforcer.got, 2, "two unique papers reach content enforcement")
	assert.Equal(t, 1, out.Stats.DuplicatesRemoved)
	assert.Equal(t, 1, o.deps.Dedup.Stats().DuplicatesRejected)
	assert.Equal(t, 2, out.Stats.ProvidersAttempted)
	assert.Equal(t, 2, out.Stats.ProvidersSucceeded)
	assert.Equal(t, 1, out.Stats.RoundsExecuted)
	assert.Equal(t, 6, out.Stats.EnhancedTarget)
	assert.Equal(t, []string{"transformer attention"}, a.seenQueries())
	assert.Len(t, out.Papers, 2)
}

func TestSearchPapers_ProviderIsolation(t *testing.T) {
	broken := &stubProvider{name: domain.ProviderCORE, fn: failing(errors.New("connection refused"))}
	healthy := &stubProvider{name: domain.ProviderArXiv, fn: returning(numbered("arxiv", 3)...)}
	o := newTestOrchestrator(t, Config{}, &passEnforcer{}, nil, broken, healthy)

	out, err := o.SearchPapers(context.Background(), []string{"graph"}, "Computer Science", 5)
	require.NoError(t, err)

	require.Len(t, out.Papers, 3)
	for _, p := range out.Papers {
		assert.Equal(t, domain.ProviderArXiv, p.Source)
	}
	require.Len(t, out.Stats.ProviderFailures, 1)
	assert.Equal(t, domain.ProviderCORE, out.Stats.ProviderFailures[0].Provider)
	assert.Equal(t, "error", out.Stats.ProviderFailures[0].Reason)
	assert.Equal(t, 2, out.Stats.ProvidersAttempted)
	assert.Equal(t, 1, out.Stats.ProvidersSucceeded)
	assert.Equal(t, int32(1), broken.calls.Load(), "plain errors are not retried")
}

func TestSearchPapers_PanickingProviderIsIsolated(t *testing.T) {
	bad := &stubProvider{name: domain.ProviderPubMed, fn: func(context.Context, string, int) ([]*domain.Paper, error) {
		panic("boom")
	}}
	good := &stubProvider{name: domain.ProviderArXiv, fn: returning(numbered("ok", 2)...)}
	o := newTestOrchestrator(t, Config{}, &passEnforcer{}, nil, bad, good)

	out, err := o.SearchPapers(context.Background(), []string{"q"}, "", 2)
	require.NoError(t, err)
	assert.Len(t, out.Papers, 2)
	require.Len(t, out.Stats.ProviderFailures, 1)
	assert.Contains(t, out.Stats.ProviderFailures[0].Error, "panicked")
}

func TestSearchPapers_BoundedOutput(t *testing.T) {
	p := &stubProvider{name: domain.ProviderOpenAlex, fn: returning(numbered("many", 20)...)}
	enforcer := &passEnforcer{}
	o := newTestOrchestrator(t, Config{}, enforcer, nil, p)

	for _, target := range []int{1, 3, 10, 50} {
		out, err := o.SearchPapers(context.Background(), []string{"many"}, "", target)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(out.Papers), target)
		assert.LessOrEqual(t, len(enforcer.got), o.EnhancedTarget(target))
	}
}

func TestSearchPapers_RateLimitRetry(t *testing.T) {
	t.Run("retries once then succeeds", func(t *testing.T) {
		p := &stubProvider{name: domain.ProviderSemanticScholar, fn: func(_ context.Context, _ string, call int) ([]*domain.Paper, error) {
			if call == 1 {
				return nil, domain.NewRateLimitError("semantic_scholar", 0)
			}
			return []*domain.Paper{paper("Recovered", "10.5/r")}, nil
		}}
		o := newTestOrchestrator(t, Config{}, &passEnforcer{}, nil, p)

		out, err := o.SearchPapers(context.Background(), []string{"r"}, "", 1)
		require.NoError(t, err)
		assert.Len(t, out.Papers, 1)
		assert.Empty(t, out.Stats.ProviderFailures)
		assert.Equal(t, int32(2), p.calls.Load())
	})

	t.Run("exhausted retries yield zero results", func(t *testing.T) {
		p := &stubProvider{name: domain.ProviderSemanticScholar, fn: failing(errors.New("HTTP 429 Too Many Requests"))}
		o := newTestOrchestrator(t, Config{MaxRateLimitRetries: 1}, &passEnforcer{}, nil, p)

		out, err := o.SearchPapers(context.Background(), []string{"r"}, "", 1)
		require.NoError(t, err)
		assert.Empty(t, out.Papers)
		require.Len(t, out.Stats.ProviderFailures, 1)
		assert.Equal(t, "rate_limited", out.Stats.ProviderFailures[0].Reason)
		assert.Equal(t, int32(2), p.calls.Load())
	})
}

func TestSearchPapers_TimeoutDoesNotBlockSiblings(t *testing.T) {
	slow := &stubProvider{name: domain.ProviderDBLP, fn: func(ctx context.Context, _ string, _ int) ([]*domain.Paper, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	fast := &stubProvider{name: domain.ProviderArXiv, fn: returning(paper("Fast", "10.7/f"))}
	o := newTestOrchestrator(t, Config{ProviderTimeout: 20 * time.Millisecond}, &passEnforcer{}, nil, slow, fast)

	out, err := o.SearchPapers(context.Background(), []string{"f"}, "", 1)
	require.NoError(t, err)
	assert.Len(t, out.Papers, 1)
	require.Len(t, out.Stats.ProviderFailures, 1)
	assert.Equal(t, "timeout", out.Stats.ProviderFailures[0].Reason)
}

func TestSearchPapers_ProviderIgnoringContextTimesOut(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	stuck := &stubProvider{name: domain.ProviderDBLP, fn: func(context.Context, string, int) ([]*domain.Paper, error) {
		<-release
		return numbered("late", 3), nil
	}}
	fast := &stubProvider{name: domain.ProviderArXiv, fn: returning(paper("Fast", "10.7/f"))}
	o := newTestOrchestrator(t, Config{ProviderTimeout: 20 * time.Millisecond}, &passEnforcer{}, nil, stuck, fast)

	start := time.Now()
	out, err := o.SearchPapers(context.Background(), []string{"f"}, "", 1)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, out.Papers, 1)
	assert.Equal(t, "Fast", out.Papers[0].Title)
	require.Len(t, out.Stats.ProviderFailures, 1)
	assert.Equal(t, domain.ProviderDBLP, out.Stats.ProviderFailures[0].Provider)
	assert.Equal(t, "timeout", out.Stats.ProviderFailures[0].Reason)
}

func TestSearchPapers_Refinement(t *testing.T) {
	t.Run("refined queries drive the next round", func(t *testing.T) {
		p := &stubProvider{name: domain.ProviderArXiv, fn: func(_ context.Context, q string, _ int) ([]*domain.Paper, error) {
			return numbered(q, 2), nil
		}}
		refiner := &stubRefiner{ready: true, queries: []string{"alpha", " ", "beta", "gamma", "delta"}}
		o := newTestOrchestrator(t, Config{MaxRounds: 2}, &passEnforcer{}, refiner, p)

		out, err := o.SearchPapers(context.Background(), []string{"seed"}, "Computer Science", 10)
		require.NoError(t, err)

		assert.Equal(t, 2, out.Stats.RoundsExecuted)
		assert.Equal(t, []string{"seed", "alpha", "beta", "gamma"}, p.seenQueries())
		require.Len(t, refiner.inputs, 1)
		assert.Equal(t, 3, refiner.inputs[0].MaxQueries)
		assert.Equal(t, []string{"seed"}, refiner.inputs[0].OriginalTerms)
		assert.Len(t, refiner.inputs[0].SamplePapers, 2)
		assert.Len(t, out.Papers, 8)
	})

	t.Run("empty refinement stops rounds", func(t *testing.T) {
		p := &stubProvider{name: domain.ProviderArXiv, fn: returning(numbered("few", 1)...)}
		refiner := &stubRefiner{ready: true}
		o := newTestOrchestrator(t, Config{MaxRounds: 3}, &passEnforcer{}, refiner, p)

		out, err := o.SearchPapers(context.Background(), []string{"few"}, "", 5)
		require.NoError(t, err)
		assert.Equal(t, 1, out.Stats.RoundsExecuted)
		assert.Len(t, refiner.inputs, 1)
	})

	t.Run("unready refiner is never called", func(t *testing.T) {
		p := &stubProvider{name: domain.ProviderArXiv, fn: returning(numbered("few", 1)...)}
		refiner := &stubRefiner{ready: false, queries: []string{"x"}}
		o := newTestOrchestrator(t, Config{MaxRounds: 3}, &passEnforcer{}, refiner, p)

		_, err := o.SearchPapers(context.Background(), []string{"few"}, "", 5)
		require.NoError(t, err)
		assert.Empty(t, refiner.inputs)
	})

	t.Run("target reached skips refinement", func(t *testing.T) {
		p := &stubProvider{name: domain.ProviderArXiv, fn: returning(numbered("lots", 10)...)}
		refiner := &stubRefiner{ready: true, queries: []string{"x"}}
		o := newTestOrchestrator(t, Config{}, &passEnforcer{}, refiner, p)

		out, err := o.SearchPapers(context.Background(), []string{"lots"}, "", 2)
		require.NoError(t, err)
		assert.Equal(t, 1, out.Stats.RoundsExecuted)
		assert.Empty(t, refiner.inputs)
	})
}

func TestSearchPapers_AllContentFails(t *testing.T) {
	p := &stubProvider{name: domain.ProviderArXiv, fn: returning(numbered("nocontent", 4)...)}
	o := newTestOrchestrator(t, Config{}, &passEnforcer{dropAll: true}, nil, p)

	out, err := o.SearchPapers(context.Background(), []string{"nocontent"}, "", 2)
	require.NoError(t, err)
	assert.Empty(t, out.Papers)
	assert.Equal(t, 0, out.Stats.ContentKept)
	assert.Equal(t, 4, out.Stats.ContentDiscarded)
}

func TestSearchPapers_EnforcementFailureReturnsEmpty(t *testing.T) {
	p := &stubProvider{name: domain.ProviderArXiv, fn: returning(numbered("x", 3)...)}
	o := newTestOrchestrator(t, Config{}, &passEnforcer{err: errors.New("store offline")}, nil, p)

	out, err := o.SearchPapers(context.Background(), []string{"x"}, "", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrContentEnforcement)
	require.NotNil(t, out)
	assert.Empty(t, out.Papers)
}

func TestSearchPapers_RankedByRelevance(t *testing.T) {
	weak := &domain.Paper{Title: "Unrelated", DOI: "10.3/a"}
	strong := &domain.Paper{Title: "Attention attention", Abstract: "attention transformer", DOI: "10.3/b"}
	p := &stubProvider{name: domain.ProviderArXiv, fn: returning(weak, strong)}
	o := newTestOrchestrator(t, Config{}, &passEnforcer{}, nil, p)

	out, err := o.SearchPapers(context.Background(), []string{"attention"}, "", 2)
	require.NoError(t, err)
	require.Len(t, out.Papers, 2)
	assert.Equal(t, "Attention attention", out.Papers[0].Title)
	for _, p := range out.Papers {
		assert.NotEmpty(t, p.ContentRef)
	}
}

func TestEnhancedTarget(t *testing.T) {
	o := newTestOrchestrator(t, Config{CompensationFactor: 2.0}, &passEnforcer{}, nil)
	assert.Equal(t, 20, o.EnhancedTarget(10))
	assert.Equal(t, 2, o.EnhancedTarget(1))

	o = newTestOrchestrator(t, Config{CompensationFactor: 1.5}, &passEnforcer{}, nil)
	assert.Equal(t, 4, o.EnhancedTarget(3))
}
