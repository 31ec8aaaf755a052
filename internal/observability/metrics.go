package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message outcomes recorded by RecordMessage.
const (
	MessageAcked     = "acked"
	MessageRequeued  = "requeued"
	MessageDiscarded = "discarded"
)

// Metrics contains all Prometheus metrics for the paper search service.
// Metrics are organized by subsystem: searches, providers, deduplication,
// refinement, content, messaging, HTTP and LLM. All collectors are
// registered via promauto with the default Prometheus registry.
//
// Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// SearchesStarted counts orchestrator runs initiated.
	SearchesStarted prometheus.Counter

	// SearchesCompleted counts runs that reached COMPLETE without a structural error.
	SearchesCompleted prometheus.Counter

	// SearchesFailed counts runs that ended with a structural error.
	SearchesFailed prometheus.Counter

	// SearchDuration observes end-to-end run duration in seconds.
	SearchDuration prometheus.Histogram

	// PapersReturned observes the size of the final result set.
	PapersReturned prometheus.Histogram

	// ProviderRequests counts provider dispatch attempts, labeled by provider.
	ProviderRequests *prometheus.CounterVec

	// ProviderFailures counts provider dispatches that contributed zero
	// results due to an error, labeled by provider and reason.
	ProviderFailures *prometheus.CounterVec

	// ProviderRateLimited counts rate-limit signals, labeled by provider.
	ProviderRateLimited *prometheus.CounterVec

	// ProviderRequestDuration observes provider dispatch duration in seconds.
	ProviderRequestDuration *prometheus.HistogramVec

	// PapersDiscovered counts papers returned by providers before deduplication.
	PapersDiscovered *prometheus.CounterVec

	// DuplicatesRejected counts papers merged away by the deduplication engine.
	DuplicatesRejected prometheus.Counter

	// RefinementRequests counts refinement calls, labeled by outcome.
	RefinementRequests *prometheus.CounterVec

	// ContentKept counts candidates that ended with a content reference.
	ContentKept prometheus.Counter

	// ContentDiscarded counts candidates dropped for lack of content.
	ContentDiscarded prometheus.Counter

	// ContentReused counts candidates whose content was already stored.
	ContentReused prometheus.Counter

	// MessagesProcessed counts broker deliveries, labeled by outcome.
	MessagesProcessed *prometheus.CounterVec

	// HTTPRequests counts HTTP API requests, labeled by method, route and status.
	HTTPRequests *prometheus.CounterVec

	// HTTPRequestDuration observes HTTP API latency in seconds.
	HTTPRequestDuration *prometheus.HistogramVec

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed by LLM operations.
	LLMTokensUsed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Searches
		SearchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of paper searches started",
		}),
		SearchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of paper searches completed",
		}),
		SearchesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of paper searches that failed",
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of paper searches in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		PapersReturned: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "papers_returned",
			Help:      "Number of papers returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		}),

		// Providers
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of provider search dispatches",
		}, []string{"provider"}),
		ProviderFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Total number of provider dispatches that failed",
		}, []string{"provider", "reason"}),
		ProviderRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_rate_limited_total",
			Help:      "Total number of rate limit signals from providers",
		}, []string{"provider"}),
		ProviderRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of provider dispatches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		PapersDiscovered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_discovered_total",
			Help:      "Total number of papers returned by providers before deduplication",
		}, []string{"provider"}),

		// Deduplication and refinement
		DuplicatesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_rejected_total",
			Help:      "Total number of duplicate papers rejected",
		}),
		RefinementRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refinement_requests_total",
			Help:      "Total number of query refinement requests by outcome",
		}, []string{"outcome"}),

		// Content
		ContentKept: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_kept_total",
			Help:      "Total number of candidates kept with a content reference",
		}),
		ContentDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_discarded_total",
			Help:      "Total number of candidates discarded for lack of content",
		}),
		ContentReused: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_reused_total",
			Help:      "Total number of candidates whose content was already stored",
		}),

		// Messaging
		MessagesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Total number of broker deliveries by outcome",
		}, []string{"outcome"}),

		// HTTP
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests by operation",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM requests by operation",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by LLM operations",
		}, []string{"operation", "model", "token_type"}),
	}
}

// RecordSearchStarted records that a search has started.
func (m *Metrics) RecordSearchStarted() {
	if m == nil {
		return
	}
	m.SearchesStarted.Inc()
}

// RecordSearchCompleted records a finished search and its result size.
func (m *Metrics) RecordSearchCompleted(paperCount int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesCompleted.Inc()
	m.SearchDuration.Observe(durationSeconds)
	m.PapersReturned.Observe(float64(paperCount))
}

// RecordSearchFailed records a search that ended with a structural error.
func (m *Metrics) RecordSearchFailed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesFailed.Inc()
	m.SearchDuration.Observe(durationSeconds)
}

// RecordProviderRequest records one provider dispatch and its outcome.
// An empty reason means the dispatch succeeded.
func (m *Metrics) RecordProviderRequest(provider string, paperCount int, durationSeconds float64, reason string) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider).Observe(durationSeconds)
	if reason != "" {
		m.ProviderFailures.WithLabelValues(provider, reason).Inc()
		return
	}
	m.PapersDiscovered.WithLabelValues(provider).Add(float64(paperCount))
}

// RecordProviderRateLimited records a rate-limit signal from a provider.
func (m *Metrics) RecordProviderRateLimited(provider string) {
	if m == nil {
		return
	}
	m.ProviderRateLimited.WithLabelValues(provider).Inc()
}

// RecordDuplicates records duplicates rejected in one merge.
func (m *Metrics) RecordDuplicates(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.DuplicatesRejected.Add(float64(count))
}

// RecordRefinement records a refinement call outcome ("queries", "empty", "error").
func (m *Metrics) RecordRefinement(outcome string) {
	if m == nil {
		return
	}
	m.RefinementRequests.WithLabelValues(outcome).Inc()
}

// RecordContent records the result of one enforcement pass.
func (m *Metrics) RecordContent(kept, discarded, reused int) {
	if m == nil {
		return
	}
	m.ContentKept.Add(float64(kept))
	m.ContentDiscarded.Add(float64(discarded))
	m.ContentReused.Add(float64(reused))
}

// RecordMessage records a delivery outcome (MessageAcked, MessageRequeued, MessageDiscarded).
func (m *Metrics) RecordMessage(outcome string) {
	if m == nil {
		return
	}
	m.MessagesProcessed.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP API request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed LLM request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	if m == nil {
		return
	}
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}
