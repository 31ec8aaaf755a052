package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
)

type mapFetcher struct {
	calls atomic.Int32
	byID  map[string]*domain.Paper
}

func (f *mapFetcher) GetByID(_ context.Context, id string) (*domain.Paper, error) {
	f.calls.Add(1)
	if p, ok := f.byID[id]; ok {
		return p.Clone(), nil
	}
	return nil, domain.NewNotFoundError("paper", id)
}

func TestNeedsEnrichment(t *testing.T) {
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	complete := &domain.Paper{
		DOI:             "10.1/a",
		Abstract:        "abs",
		Authors:         []domain.Author{{Name: "A"}},
		PublicationDate: &date,
	}
	assert.False(t, NeedsEnrichment(complete))

	missing := complete.Clone()
	missing.Abstract = "  "
	assert.True(t, NeedsEnrichment(missing))
}

func TestMergeMissing(t *testing.T) {
	date := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	dst := &domain.Paper{Title: "Kept", Venue: "Original Venue"}
	dst.SetProviderID(domain.ProviderArXiv, "2301.00001")
	src := &domain.Paper{
		Title:           "Other",
		DOI:             "10.1/x",
		Abstract:        "filled",
		Authors:         []domain.Author{{Name: "Ada Lovelace"}},
		PublicationDate: &date,
		Venue:           "Other Venue",
		PDFURL:          "https://example.org/x.pdf",
	}
	src.SetProviderID(domain.ProviderOpenAlex, "W1")
	src.SetProviderID(domain.ProviderArXiv, "9999.99999")

	MergeMissing(dst, src)

	assert.Equal(t, "Kept", dst.Title)
	assert.Equal(t, "10.1/x", dst.DOI)
	assert.Equal(t, "filled", dst.Abstract)
	assert.Equal(t, "Original Venue", dst.Venue)
	assert.Equal(t, "https://example.org/x.pdf", dst.PDFURL)
	assert.Equal(t, "W1", dst.ProviderID(domain.ProviderOpenAlex))
	assert.Equal(t, "2301.00001", dst.ProviderID(domain.ProviderArXiv))
	require.NotNil(t, dst.PublicationDate)
	assert.NotSame(t, src.PublicationDate, dst.PublicationDate)
}

func TestMetadataEnricher_EnrichPapers(t *testing.T) {
	date := time.Date(2022, 3, 4, 0, 0, 0, 0, time.UTC)
	byDOI := &mapFetcher{byID: map[string]*domain.Paper{
		"10.1/a": {Abstract: "from doi", Authors: []domain.Author{{Name: "X"}}, PublicationDate: &date},
	}}
	byArXiv := &mapFetcher{byID: map[string]*domain.Paper{
		"2201.1": {DOI: "10.1/b", Abstract: "from arxiv", Authors: []domain.Author{{Name: "Y"}}, PublicationYear: 2022},
	}}

	withDOI := &domain.Paper{Title: "one", DOI: "10.1/a"}
	withArXiv := &domain.Paper{Title: "two"}
	withArXiv.SetProviderID(domain.ProviderArXiv, "2201.1")
	unknown := &domain.Paper{Title: "three", DOI: "10.1/missing"}
	complete := &domain.Paper{Title: "four", DOI: "10.1/c", Abstract: "x", Authors: []domain.Author{{Name: "Z"}}, PublicationYear: 2020}

	e := NewMetadataEnricher(zerolog.Nop(), 2, time.Second,
		NewDOILookup("openalex", byDOI),
		NewProviderIDLookup(domain.ProviderArXiv, byArXiv),
	)

	in := []*domain.Paper{withDOI, withArXiv, unknown, complete}
	out := e.EnrichPapers(context.Background(), in)

	require.Len(t, out, 4, "enrichment never drops papers")
	assert.Equal(t, "from doi", out[0].Abstract)
	assert.Equal(t, "from arxiv", out[1].Abstract)
	assert.Equal(t, "10.1/b", out[1].DOI)
	assert.Empty(t, out[2].Abstract)
	assert.Equal(t, "x", out[3].Abstract)
	assert.Equal(t, int32(2), byDOI.calls.Load(), "complete papers are not looked up")
}

type errLookup struct{}

func (errLookup) Name() string { return "broken" }

func (errLookup) Lookup(context.Context, *domain.Paper) (*domain.Paper, bool, error) {
	return nil, true, errors.New("upstream down")
}

func TestMetadataEnricher_LookupErrorsAreIgnored(t *testing.T) {
	e := NewMetadataEnricher(zerolog.Nop(), 0, 0, errLookup{})
	p := &domain.Paper{Title: "t"}

	out := e.EnrichPapers(context.Background(), []*domain.Paper{p})
	require.Len(t, out, 1)
	assert.Same(t, p, out[0])
}
