package dedup

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Stats summarises the current session.
type Stats struct {
	UniquePapers       int `json:"unique_papers"`
	TotalIdentifiers   int `json:"total_identifiers"`
	DuplicatesRejected int `json:"duplicates_rejected"`
}

// Engine owns the insertion-ordered collection of unique papers for one
// search session, indexed by a flat set of identity keys.
//
// An Engine serves one session at a time: callers Reset it before each
// search and never interleave two searches on the same instance. The mutex
// only keeps misuse from corrupting memory.
type Engine struct {
	mu         sync.Mutex
	papers     []*domain.Paper
	seen       map[string]struct{}
	duplicates int
	logger     zerolog.Logger
}

// NewEngine creates an empty deduplication engine.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		seen:   make(map[string]struct{}),
		logger: logger.With().Str("component", "dedup").Logger(),
	}
}

// Reset clears all session state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.papers = nil
	e.seen = make(map[string]struct{})
	e.duplicates = 0
}

// AddPapers merges papers into the session and returns how many were new.
// A paper whose identity keys intersect the seen set is dropped as a
// duplicate; a paper with no identity keys is always kept. The engine stores
// copies, so later changes to the inputs do not leak into the session.
func (e *Engine) AddPapers(papers []*domain.Paper) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	added := 0
	rejected := 0
	for _, p := range papers {
		if p == nil {
			continue
		}

		keys := IdentityKeys(p)
		if e.seenAny(keys) {
			rejected++
			continue
		}
		for _, k := range keys {
			e.seen[k] = struct{}{}
		}
		e.papers = append(e.papers, p.Clone())
		added++
	}
	e.duplicates += rejected

	e.logger.Debug().
		Int("added", added).
		Int("duplicates", rejected).
		Int("unique_total", len(e.papers)).
		Msg("merged papers into session")

	return added
}

func (e *Engine) seenAny(keys []string) bool {
	for _, k := range keys {
		if _, ok := e.seen[k]; ok {
			return true
		}
	}
	return false
}

// Papers returns copies of the unique papers in discovery order.
func (e *Engine) Papers() []*domain.Paper {
	e.mu.Lock()
	defer e.mu.Unlock()

	return domain.ClonePapers(e.papers)
}

// PaperCount returns the number of unique papers collected so far.
func (e *Engine) PaperCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.papers)
}

// Stats returns the session's deduplication statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		UniquePapers:       len(e.papers),
		TotalIdentifiers:   len(e.seen),
		DuplicatesRejected: e.duplicates,
	}
}
