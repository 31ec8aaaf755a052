package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/events"
	"github.com/helixir/paper-search-service/internal/observability"
)

// SearchExecutor runs one validated search request.
type SearchExecutor interface {
	Execute(ctx context.Context, req *domain.SearchRequest, trigger domain.Trigger) (*domain.SearchResponse, error)
}

// ResultPublisher publishes a JSON payload with a routing key.
type ResultPublisher interface {
	PublishJSON(ctx context.Context, routingKey, correlationID string, v any) error
}

// SearchHandler decodes websearch requests, runs them and publishes the
// response to the response routing key.
type SearchHandler struct {
	executor    SearchExecutor
	publisher   ResultPublisher
	events      events.Publisher
	responseKey string
	logger      zerolog.Logger
}

// NewSearchHandler creates a SearchHandler. eventPublisher may be nil.
func NewSearchHandler(executor SearchExecutor, publisher ResultPublisher, eventPublisher events.Publisher, responseKey string, logger zerolog.Logger) *SearchHandler {
	if eventPublisher == nil {
		eventPublisher = events.NopPublisher{}
	}
	if responseKey == "" {
		responseKey = DefaultResponseRoutingKey
	}
	return &SearchHandler{
		executor:    executor,
		publisher:   publisher,
		events:      eventPublisher,
		responseKey: responseKey,
		logger:      logger.With().Str("component", "search_handler").Logger(),
	}
}

// DecodeSearchRequest parses a request body. Decode failures are permanent.
func DecodeSearchRequest(body []byte) (*domain.SearchRequest, error) {
	var req domain.SearchRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: decode search request: %w", domain.ErrPermanent, err)
	}
	return &req, nil
}

func (h *SearchHandler) Handle(ctx context.Context, msg Message) error {
	if h.executor == nil || h.publisher == nil {
		return fmt.Errorf("%w: search handler is not wired", domain.ErrPermanent)
	}

	req, err := DecodeSearchRequest(msg.Body)
	if err != nil {
		return err
	}
	if req.CorrelationID == "" {
		req.CorrelationID = msg.CorrelationID
	}

	ctx = observability.WithCorrelationID(observability.WithProjectID(ctx, req.ProjectID), req.CorrelationID)
	logger := observability.WithRequestContext(h.logger, msg.MessageID, req.CorrelationID, req.ProjectID)
	logger.Info().Strs("query_terms", req.QueryTerms).Msg("processing websearch request")

	resp, err := h.executor.Execute(ctx, req, domain.TriggerBroker)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			logger.Warn().Str("field", verr.Field).Str("reason", verr.Message).Msg("invalid websearch request")
		}
		return err
	}

	if err := h.publisher.PublishJSON(ctx, h.responseKey, resp.CorrelationID, resp); err != nil {
		return fmt.Errorf("publish search response: %w", err)
	}

	if err := h.events.PublishSearchCompleted(ctx, resp); err != nil {
		logger.Warn().Err(err).Msg("failed to emit search event")
	}

	logger.Info().
		Str("status", string(resp.Status)).
		Int("papers", len(resp.Papers)).
		Msg("websearch response published")
	return nil
}
