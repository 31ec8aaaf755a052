// Package europepmc provides a client for the Europe PMC REST search API.
//
// The same client serves two provider variants: the full Europe PMC index
// and a bioRxiv view restricted to preprints from that server.
//
// API Documentation: https://europepmc.org/RestfulWebService
package europepmc

// SearchResponse represents the top-level Europe PMC search response.
type SearchResponse struct {
	HitCount   int        `json:"hitCount"`
	ResultList ResultList `json:"resultList"`
}

// ResultList wraps the array of article results.
type ResultList struct {
	Result []Article `json:"result"`
}

// Article represents a single article in the Europe PMC response.
type Article struct {
	ID                   string `json:"id"`
	Source               string `json:"source"` // "MED", "PMC", "PPR", ...
	PMID                 string `json:"pmid"`
	PMCID                string `json:"pmcid"`
	DOI                  string `json:"doi"`
	Title                string `json:"title"`
	AuthorString         string `json:"authorString"` // "Author A, Author B"
	JournalTitle         string `json:"journalTitle"`
	PubYear              string `json:"pubYear"`
	AbstractText         string `json:"abstractText"`
	IsOpenAccess         string `json:"isOpenAccess"` // "Y"/"N"
	CitedByCount         int    `json:"citedByCount"`
	FirstPublicationDate string `json:"firstPublicationDate"` // "2024-01-15"
	PublisherName        string `json:"publisherName"`
}
