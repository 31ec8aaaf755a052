// Package pubmed provides a client for the NCBI E-utilities PubMed API.
//
// A search is two calls: ESearch resolves the query to PMIDs and EFetch
// returns the article records for them.
//
// API Documentation: https://www.ncbi.nlm.nih.gov/books/NBK25500/
package pubmed

import "encoding/xml"

// ESearchResult is the ESearch response.
type ESearchResult struct {
	XMLName   xml.Name   `xml:"eSearchResult"`
	Count     int        `xml:"Count"`
	IDList    IDList     `xml:"IdList"`
	ErrorList *ErrorList `xml:"ErrorList,omitempty"`
}

// IDList holds the PMIDs matched by ESearch.
type IDList struct {
	IDs []string `xml:"Id"`
}

// ErrorList reports query terms PubMed could not resolve.
type ErrorList struct {
	PhraseNotFound []string `xml:"PhraseNotFound,omitempty"`
}

// PubmedArticleSet is the EFetch response.
type PubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []PubmedArticle `xml:"PubmedArticle"`
}

type PubmedArticle struct {
	MedlineCitation MedlineCitation `xml:"MedlineCitation"`
	PubmedData      PubmedData      `xml:"PubmedData"`
}

type MedlineCitation struct {
	PMID    string  `xml:"PMID"`
	Article Article `xml:"Article"`
}

type Article struct {
	Journal      Journal       `xml:"Journal"`
	ArticleTitle string        `xml:"ArticleTitle"`
	ELocationID  []ELocationID `xml:"ELocationID,omitempty"`
	Abstract     *Abstract     `xml:"Abstract,omitempty"`
	AuthorList   *AuthorList   `xml:"AuthorList,omitempty"`
	ArticleDate  []ArticleDate `xml:"ArticleDate,omitempty"`
}

type Journal struct {
	Title           string       `xml:"Title,omitempty"`
	ISOAbbreviation string       `xml:"ISOAbbreviation,omitempty"`
	JournalIssue    JournalIssue `xml:"JournalIssue"`
}

type JournalIssue struct {
	PubDate PubDate `xml:"PubDate"`
}

type PubDate struct {
	Year        string `xml:"Year,omitempty"`
	Month       string `xml:"Month,omitempty"`
	Day         string `xml:"Day,omitempty"`
	MedlineDate string `xml:"MedlineDate,omitempty"`
}

type ELocationID struct {
	EIdType string `xml:"EIdType,attr"`
	Valid   string `xml:"ValidYN,attr,omitempty"`
	Value   string `xml:",chardata"`
}

type Abstract struct {
	AbstractTexts []AbstractText `xml:"AbstractText"`
}

type AbstractText struct {
	Label string `xml:"Label,attr,omitempty"`
	Value string `xml:",chardata"`
}

type AuthorList struct {
	Authors []Author `xml:"Author"`
}

type Author struct {
	ValidYN         string            `xml:"ValidYN,attr,omitempty"`
	LastName        string            `xml:"LastName,omitempty"`
	ForeName        string            `xml:"ForeName,omitempty"`
	CollectiveName  string            `xml:"CollectiveName,omitempty"`
	Identifiers     []Identifier      `xml:"Identifier,omitempty"`
	AffiliationInfo []AffiliationInfo `xml:"AffiliationInfo,omitempty"`
}

type Identifier struct {
	Source string `xml:"Source,attr"`
	Value  string `xml:",chardata"`
}

type AffiliationInfo struct {
	Affiliation string `xml:"Affiliation"`
}

type ArticleDate struct {
	DateType string `xml:"DateType,attr,omitempty"`
	Year     string `xml:"Year"`
	Month    string `xml:"Month,omitempty"`
	Day      string `xml:"Day,omitempty"`
}

type PubmedData struct {
	ArticleIdList ArticleIdList `xml:"ArticleIdList"`
}

type ArticleIdList struct {
	ArticleIds []ArticleId `xml:"ArticleId"`
}

type ArticleId struct {
	IdType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}
