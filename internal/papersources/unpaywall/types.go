// Package unpaywall provides a client for the Unpaywall v2 API, an index of
// legal open access copies of scholarly articles.
//
// API Documentation: https://unpaywall.org/products/api
package unpaywall

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// SearchResult wraps one matching record with its relevance score.
type SearchResult struct {
	Response Record  `json:"response"`
	Score    float64 `json:"score"`
}

// Record is an Unpaywall DOI object.
type Record struct {
	DOI            string      `json:"doi"`
	DOIURL         string      `json:"doi_url"`
	Title          string      `json:"title"`
	Year           int         `json:"year"`
	PublishedDate  string      `json:"published_date"`
	JournalName    string      `json:"journal_name"`
	Publisher      string      `json:"publisher"`
	IsOA           bool        `json:"is_oa"`
	OAStatus       string      `json:"oa_status"`
	Authors        []Author    `json:"z_authors"`
	BestOALocation *OALocation `json:"best_oa_location"`
}

// Author is an entry of z_authors.
type Author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

// OALocation is one place an open access copy is hosted.
type OALocation struct {
	URL       string `json:"url"`
	URLForPDF string `json:"url_for_pdf"`
	HostType  string `json:"host_type"`
	License   string `json:"license"`
}
