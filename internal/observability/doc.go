// Package observability provides logging and metrics support for the
// paper search service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//
// Stamp request identifiers carried on a context:
//
//	ctx = observability.WithProjectID(ctx, req.ProjectID)
//	logger = observability.LoggerWithContext(ctx, logger)
//
// # Metrics
//
//	metrics := observability.NewMetrics("paper_search")
//	metrics.RecordProviderRequest("arxiv", 5, 0.8, "")
//
// A nil *Metrics is valid and records nothing.
//
// # Standard Fields
//
//   - request_id: server-generated request identifier
//   - correlation_id: caller-supplied correlation identifier
//   - project_id: project the search was issued for
//   - provider: paper provider (arxiv, openalex, ...)
//   - query: query string dispatched to providers
//   - component: emitting component
package observability
