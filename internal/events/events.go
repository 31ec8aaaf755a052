// Package events publishes search lifecycle events for downstream consumers.
//
// Each finished search produces one SearchCompletedEvent. The Kafka publisher
// keys messages by project id so a project's events stay ordered within a
// partition. When Kafka is disabled NopPublisher is used.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/paper-search-service/internal/domain"
)

// EventTypeSearchCompleted is the type header of SearchCompletedEvent.
const EventTypeSearchCompleted = "paper_search.search_completed"

// SearchCompletedEvent summarizes one finished search.
type SearchCompletedEvent struct {
	EventID       string              `json:"eventId"`
	EventType     string              `json:"eventType"`
	Source        string              `json:"source"`
	ProjectID     string              `json:"projectId"`
	CorrelationID string              `json:"correlationId,omitempty"`
	QueryTerms    []string            `json:"queryTerms"`
	PaperCount    int                 `json:"paperCount"`
	Status        domain.SearchStatus `json:"status"`
	Stats         domain.RunStats     `json:"stats"`
	OccurredAt    time.Time           `json:"occurredAt"`
}

// NewSearchCompletedEvent builds the event for resp.
func NewSearchCompletedEvent(source string, resp *domain.SearchResponse) SearchCompletedEvent {
	return SearchCompletedEvent{
		EventID:       uuid.NewString(),
		EventType:     EventTypeSearchCompleted,
		Source:        source,
		ProjectID:     resp.ProjectID,
		CorrelationID: resp.CorrelationID,
		QueryTerms:    resp.QueryTerms,
		PaperCount:    len(resp.Papers),
		Status:        resp.Status,
		Stats:         resp.Stats,
		OccurredAt:    time.Now().UTC(),
	}
}

// Publisher emits search events.
type Publisher interface {
	PublishSearchCompleted(ctx context.Context, resp *domain.SearchResponse) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) PublishSearchCompleted(context.Context, *domain.SearchResponse) error { return nil }
func (NopPublisher) Close() error                                                        { return nil }
