// Package semanticscholar provides a client for the Semantic Scholar Graph API.
//
// API Documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

// SearchResponse represents the response from the paper search endpoint.
type SearchResponse struct {
	Total int           `json:"total"`
	Data  []PaperResult `json:"data"`
}

// PaperResult represents a single paper in the Semantic Scholar API response.
type PaperResult struct {
	PaperID         string         `json:"paperId"`
	Title           string         `json:"title"`
	Abstract        string         `json:"abstract"`
	Year            int            `json:"year"`
	PublicationDate string         `json:"publicationDate"`
	Venue           string         `json:"venue"`
	Journal         *Journal       `json:"journal,omitempty"`
	Authors         []Author       `json:"authors"`
	CitationCount   int            `json:"citationCount"`
	IsOpenAccess    bool           `json:"isOpenAccess"`
	OpenAccessPDF   *OpenAccessPDF `json:"openAccessPdf,omitempty"`
	ExternalIDs     *ExternalIDs   `json:"externalIds,omitempty"`
	URL             string         `json:"url,omitempty"`
}

// ExternalIDs contains external identifiers for a paper.
type ExternalIDs struct {
	DOI           string `json:"DOI,omitempty"`
	ArXiv         string `json:"ArXiv,omitempty"`
	PubMed        string `json:"PubMed,omitempty"`
	PubMedCentral string `json:"PubMedCentral,omitempty"`
	DBLP          string `json:"DBLP,omitempty"`
}

// Journal contains journal-specific information.
type Journal struct {
	Name string `json:"name,omitempty"`
}

// Author represents a paper author.
type Author struct {
	AuthorID string `json:"authorId,omitempty"`
	Name     string `json:"name"`
}

// OpenAccessPDF contains information about an open access PDF.
type OpenAccessPDF struct {
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
}

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
