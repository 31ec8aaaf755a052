// Package core provides a client for the CORE v3 open access aggregator.
//
// API Documentation: https://api.core.ac.uk/docs/v3
package core

// SearchResponse is the body of GET /search/works.
type SearchResponse struct {
	TotalHits int    `json:"totalHits"`
	Results   []Work `json:"results"`
}

// Work is a single CORE output.
type Work struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Abstract      string    `json:"abstract"`
	Authors       []Author  `json:"authors"`
	DOI           string    `json:"doi"`
	YearPublished int       `json:"yearPublished"`
	PublishedDate string    `json:"publishedDate"`
	DownloadURL   string    `json:"downloadUrl"`
	CitationCount int       `json:"citationCount"`
	Publisher     string    `json:"publisher"`
	Journals      []Journal `json:"journals"`
	Links         []Link    `json:"links"`
}

// Author is a CORE author entry.
type Author struct {
	Name string `json:"name"`
}

// Journal is a CORE journal reference.
type Journal struct {
	Title string `json:"title"`
}

// Link is a typed URL attached to a work ("download", "display", ...).
type Link struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}
