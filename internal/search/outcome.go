package search

import (
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
)

// OutcomeKind classifies a single provider dispatch.
type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota
	OutcomeRateLimited
	OutcomeTimedOut
	OutcomeFailed
	OutcomeCanceled
)

// String returns the label used in logs, metrics and run stats.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTimedOut:
		return "timeout"
	case OutcomeFailed:
		return "error"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ProviderOutcome is the result of dispatching one query to one provider.
// Papers is empty unless Kind is OutcomeSucceeded.
type ProviderOutcome struct {
	Provider domain.Provider
	Query    string
	Kind     OutcomeKind
	Papers   []*domain.Paper
	Err      error
	Attempts int
	Duration time.Duration
}

// Succeeded reports whether the dispatch returned normally.
func (o ProviderOutcome) Succeeded() bool {
	return o.Kind == OutcomeSucceeded
}

// failure converts a non-successful outcome into its run-stats record.
func (o ProviderOutcome) failure() domain.ProviderFailure {
	f := domain.ProviderFailure{
		Provider: o.Provider,
		Query:    o.Query,
		Reason:   o.Kind.String(),
	}
	if o.Err != nil {
		f.Error = o.Err.Error()
	}
	return f
}

// Outcome is the result of one orchestrator run.
type Outcome struct {
	Papers []*domain.Paper
	Stats  domain.RunStats
}
