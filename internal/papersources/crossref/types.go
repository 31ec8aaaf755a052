// Package crossref provides a client for the Crossref REST API, the DOI
// registration agency's bibliographic metadata service.
//
// API Documentation: https://api.crossref.org/swagger-ui/index.html
package crossref

// SearchResponse is the envelope of GET /works.
type SearchResponse struct {
	Status  string     `json:"status"`
	Message WorksPage `json:"message"`
}

// WorksPage holds one page of works.
type WorksPage struct {
	TotalResults int    `json:"total-results"`
	Items        []Work `json:"items"`
}

// WorkResponse is the envelope of GET /works/{doi}.
type WorkResponse struct {
	Status  string `json:"status"`
	Message Work   `json:"message"`
}

// Work is a single Crossref record.
type Work struct {
	DOI                 string    `json:"DOI"`
	URL                 string    `json:"URL"`
	Title               []string  `json:"title"`
	Abstract            string    `json:"abstract"`
	ContainerTitle      []string  `json:"container-title"`
	Publisher           string    `json:"publisher"`
	Type                string    `json:"type"`
	Author              []Author  `json:"author"`
	Published           DateParts `json:"published"`
	PublishedPrint      DateParts `json:"published-print"`
	PublishedOnline     DateParts `json:"published-online"`
	IsReferencedByCount int       `json:"is-referenced-by-count"`
	Link                []Link    `json:"link"`
	License             []License `json:"license"`
}

// Author is a Crossref contributor.
type Author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

// DateParts is Crossref's partial date: [[year, month, day]] with trailing
// parts optional.
type DateParts struct {
	DateParts [][]int `json:"date-parts"`
}

// Link is a full-text link deposited by the publisher.
type Link struct {
	URL                 string `json:"URL"`
	ContentType         string `json:"content-type"`
	IntendedApplication string `json:"intended-application"`
}

// License is a license deposited for the work.
type License struct {
	URL string `json:"URL"`
}
