package domain

import (
	"strings"
	"time"
)

// Author represents a paper author with optional affiliation and ORCID.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

// String returns a formatted string representation of the author.
func (a Author) String() string {
	var sb strings.Builder
	sb.WriteString(a.Name)

	if a.Affiliation != "" {
		sb.WriteString(" (")
		sb.WriteString(a.Affiliation)
		sb.WriteString(")")
	}

	if a.ORCID != "" {
		sb.WriteString(" [")
		sb.WriteString(a.ORCID)
		sb.WriteString("]")
	}

	return sb.String()
}

// Paper is a single search result as it flows through the pipeline.
//
// ProviderIDs holds provider-native identifiers keyed by provider; PubMed
// Central ids are stored under ProviderEuropePMC. ContentRef is set by content
// enforcement and points at the durable copy of the full text.
type Paper struct {
	Title           string              `json:"title"`
	Abstract        string              `json:"abstract,omitempty"`
	Authors         []Author            `json:"authors,omitempty"`
	PublicationDate *time.Time          `json:"publicationDate,omitempty"`
	PublicationYear int                 `json:"publicationYear,omitempty"`
	DOI             string              `json:"doi,omitempty"`
	ProviderIDs     map[Provider]string `json:"providerIds,omitempty"`
	Venue           string              `json:"venue,omitempty"`
	CitationCount   int                 `json:"citationCount"`
	Source          Provider            `json:"source,omitempty"`
	URL             string              `json:"url,omitempty"`
	PDFURL          string              `json:"pdfUrl,omitempty"`
	OpenAccess      bool                `json:"openAccess,omitempty"`
	ContentRef      string              `json:"pdfContentUrl,omitempty"`
}

// ProviderID returns the provider-native identifier for p, or "".
func (p *Paper) ProviderID(provider Provider) string {
	if p.ProviderIDs == nil {
		return ""
	}
	return p.ProviderIDs[provider]
}

// SetProviderID records a provider-native identifier. Empty ids are ignored.
func (p *Paper) SetProviderID(provider Provider, id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	if p.ProviderIDs == nil {
		p.ProviderIDs = make(map[Provider]string)
	}
	p.ProviderIDs[provider] = id
}

// HasContent reports whether the paper carries a durable content reference.
func (p *Paper) HasContent() bool {
	return strings.TrimSpace(p.ContentRef) != ""
}

// FirstAuthor returns the first listed author name, or "".
func (p *Paper) FirstAuthor() string {
	if len(p.Authors) == 0 {
		return ""
	}
	return p.Authors[0].Name
}

// Clone returns a deep copy of the paper.
func (p *Paper) Clone() *Paper {
	if p == nil {
		return nil
	}
	c := *p
	if p.Authors != nil {
		c.Authors = make([]Author, len(p.Authors))
		copy(c.Authors, p.Authors)
	}
	if p.PublicationDate != nil {
		d := *p.PublicationDate
		c.PublicationDate = &d
	}
	if p.ProviderIDs != nil {
		c.ProviderIDs = make(map[Provider]string, len(p.ProviderIDs))
		for k, v := range p.ProviderIDs {
			c.ProviderIDs[k] = v
		}
	}
	return &c
}

// ClonePapers deep-copies a slice of papers, skipping nil entries.
func ClonePapers(papers []*Paper) []*Paper {
	out := make([]*Paper, 0, len(papers))
	for _, p := range papers {
		if p != nil {
			out = append(out, p.Clone())
		}
	}
	return out
}
