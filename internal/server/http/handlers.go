package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
)

const (
	defaultRunsLimit   = 20
	maxRunsLimit       = 100
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
	serviceName        = "paper-search-service"
)

// searchHandler handles POST /websearch/search. The run is synchronous; the
// response body is the same document the broker consumer publishes.
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerWithContext(ctx, s.logger)

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req domain.SearchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}
	if req.CorrelationID == "" {
		req.CorrelationID = observability.CorrelationIDFromContext(ctx)
	}

	resp, err := s.deps.Search.Execute(ctx, &req, domain.TriggerHTTP)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, validationErrorResponse{Error: verr.Message, Field: verr.Field})
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			logger.Error().Err(err).Msg("search request failed")
			writeError(w, http.StatusInternalServerError, "search failed")
		}
		return
	}

	if err := s.deps.Events.PublishSearchCompleted(ctx, resp); err != nil {
		logger.Warn().Err(err).Msg("failed to emit search event")
	}

	writeJSON(w, http.StatusOK, resp)
}

// statsHandler handles GET /websearch/stats.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	out := statsResponse{Service: serviceName}
	if s.deps.Describer != nil {
		d := s.deps.Describer.Describe()
		out.Search = &d
	}
	if s.deps.Storage != nil {
		stats, err := s.deps.Storage.Stats(r.Context())
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to read storage stats")
			out.Error = err.Error()
		}
		out.Storage = stats
	}
	writeJSON(w, http.StatusOK, out)
}

// runsHandler handles GET /websearch/runs?projectId=&limit=.
func (s *Server) runsHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusNotFound, "run history is not enabled")
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.deps.Runs.ListRecent(r.Context(), r.URL.Query().Get("projectId"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list search runs")
		writeError(w, http.StatusInternalServerError, "failed to list search runs")
		return
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: runs, Count: len(runs)})
}

// contentHandler handles GET /content/{fileName}, serving the stored bytes
// behind a content reference.
func (s *Server) contentHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Content == nil {
		writeError(w, http.StatusNotFound, "content serving is not enabled")
		return
	}

	fileName := chi.URLParam(r, "fileName")
	data, ref, err := s.deps.Content.Open(fileName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "content not found")
			return
		}
		s.logger.Error().Err(err).Str("file_name", fileName).Msg("failed to open content")
		writeError(w, http.StatusInternalServerError, "failed to read content")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if ref != nil && ref.SHA256 != "" {
		w.Header().Set("ETag", strconv.Quote(ref.SHA256))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
