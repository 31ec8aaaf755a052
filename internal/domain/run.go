package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trigger names the entry point that started a run.
type Trigger string

const (
	TriggerBroker Trigger = "amqp"
	TriggerHTTP   Trigger = "http"
	TriggerCLI    Trigger = "cli"
)

// SearchRun is the persisted record of one finished search.
type SearchRun struct {
	ID            uuid.UUID    `json:"id"`
	ProjectID     string       `json:"projectId"`
	CorrelationID string       `json:"correlationId,omitempty"`
	QueryTerms    []string     `json:"queryTerms"`
	Domain        string       `json:"domain"`
	Requested     int          `json:"requested"`
	Returned      int          `json:"returned"`
	Status        SearchStatus `json:"status"`
	Trigger       Trigger      `json:"trigger"`
	Stats         RunStats     `json:"stats"`
	Error         string       `json:"error,omitempty"`
	StartedAt     time.Time    `json:"startedAt"`
	CompletedAt   time.Time    `json:"completedAt"`
}

// NewSearchRun builds the run record for a request and its response.
func NewSearchRun(req *SearchRequest, resp *SearchResponse, trigger Trigger, startedAt time.Time) *SearchRun {
	return &SearchRun{
		ID:            uuid.New(),
		ProjectID:     req.ProjectID,
		CorrelationID: req.CorrelationID,
		QueryTerms:    req.QueryTerms,
		Domain:        req.Domain,
		Requested:     req.BatchSize,
		Returned:      len(resp.Papers),
		Status:        resp.Status,
		Trigger:       trigger,
		Stats:         resp.Stats,
		Error:         resp.Error,
		StartedAt:     startedAt.UTC(),
		CompletedAt:   time.Now().UTC(),
	}
}
