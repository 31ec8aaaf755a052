package domain

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultSearchDomain is used when a request does not name a research domain.
	DefaultSearchDomain = "Computer Science"

	// DefaultBatchSize is the target result count when a request leaves it unset.
	DefaultBatchSize = 10

	// MaxBatchSize bounds the target result count a caller may ask for.
	MaxBatchSize = 200
)

// SearchRequest is the payload that starts one search run, whether it arrives
// on the broker or through the direct HTTP endpoint.
type SearchRequest struct {
	ProjectID     string   `json:"projectId" validate:"required"`
	QueryTerms    []string `json:"queryTerms" validate:"required,min=1,dive,required"`
	Domain        string   `json:"domain,omitempty"`
	BatchSize     int      `json:"batchSize,omitempty" validate:"gte=0,lte=200"`
	CorrelationID string   `json:"correlationId,omitempty"`
}

// ApplyDefaults fills optional fields with their defaults.
func (r *SearchRequest) ApplyDefaults() {
	if strings.TrimSpace(r.Domain) == "" {
		r.Domain = DefaultSearchDomain
	}
	if r.BatchSize == 0 {
		r.BatchSize = DefaultBatchSize
	}
}

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks the request and returns a *ValidationError naming the first
// offending field.
func (r *SearchRequest) Validate() error {
	err := requestValidator.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewValidationError("request", err.Error())
	}

	fe := verrs[0]
	switch {
	case strings.HasPrefix(fe.Field(), "queryTerms["):
		return NewValidationError("queryTerms", "must not contain empty terms")
	case fe.Field() == "queryTerms":
		return NewValidationError("queryTerms", "must be a non-empty list")
	case fe.Tag() == "required":
		return NewValidationError(fe.Field(), "is required")
	default:
		return NewValidationError(fe.Field(), "failed "+fe.Tag()+" validation")
	}
}

// ProviderFailure records one provider call that contributed no results.
type ProviderFailure struct {
	Provider Provider `json:"provider"`
	Query    string   `json:"query"`
	Reason   string   `json:"reason"`
	Error    string   `json:"error"`
}

// RunStats explains how a result set was produced and why it may fall short
// of the requested size.
type RunStats struct {
	ProvidersAttempted  int               `json:"providersAttempted"`
	ProvidersSucceeded  int               `json:"providersSucceeded"`
	ProviderFailures    []ProviderFailure `json:"providerFailures,omitempty"`
	DuplicatesRemoved   int               `json:"duplicatesRemoved"`
	RoundsExecuted      int               `json:"roundsExecuted"`
	QueriesExecuted     int               `json:"queriesExecuted"`
	EnhancedTarget      int               `json:"enhancedTarget"`
	CandidatesCollected int               `json:"candidatesCollected"`
	ContentKept         int               `json:"contentKept"`
	ContentDiscarded    int               `json:"contentDiscarded"`
	ContentReused       int               `json:"contentReused"`
	DurationMillis      int64             `json:"durationMs"`
}

// SearchResponse mirrors the request identifiers and carries the ranked,
// content-verified papers for one run.
type SearchResponse struct {
	ProjectID      string       `json:"projectId"`
	CorrelationID  string       `json:"correlationId,omitempty"`
	Papers         []*Paper     `json:"papers"`
	BatchSize      int          `json:"batchSize"`
	QueryTerms     []string     `json:"queryTerms"`
	Domain         string       `json:"domain"`
	Status         SearchStatus `json:"status"`
	SearchStrategy string       `json:"searchStrategy"`
	Stats          RunStats     `json:"stats"`
	Error          string       `json:"error,omitempty"`
}

// NewSearchResponse assembles a response for req from the run's papers and stats.
// A non-nil runErr marks the response FAILED; papers are reported as given.
func NewSearchResponse(req *SearchRequest, papers []*Paper, stats RunStats, runErr error) *SearchResponse {
	if papers == nil {
		papers = []*Paper{}
	}
	resp := &SearchResponse{
		ProjectID:      req.ProjectID,
		CorrelationID:  req.CorrelationID,
		Papers:         papers,
		BatchSize:      len(papers),
		QueryTerms:     req.QueryTerms,
		Domain:         req.Domain,
		Status:         SearchStatusCompleted,
		SearchStrategy: SearchStrategy,
		Stats:          stats,
	}
	if runErr != nil {
		resp.Status = SearchStatusFailed
		resp.Error = runErr.Error()
	}
	return resp
}
