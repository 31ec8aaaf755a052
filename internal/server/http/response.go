package httpserver

import (
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/search"
)

type statsResponse struct {
	Service string              `json:"service"`
	Search  *search.Description `json:"search,omitempty"`
	Storage map[string]any      `json:"storage,omitempty"`
	Error   string              `json:"storageError,omitempty"`
}

type runsResponse struct {
	Runs  []*domain.SearchRun `json:"runs"`
	Count int                 `json:"count"`
}

type validationErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
