package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

// DefaultEnrichmentConcurrency bounds concurrent detail lookups.
const DefaultEnrichmentConcurrency = 5

// DetailLookup resolves fuller metadata for a paper from one source.
// ok is false when the lookup has no identifier to work with.
type DetailLookup interface {
	Name() string
	Lookup(ctx context.Context, p *domain.Paper) (detail *domain.Paper, ok bool, err error)
}

// FetcherLookup adapts a provider's DetailFetcher into a DetailLookup keyed
// by an identifier extracted from the paper.
type FetcherLookup struct {
	name    string
	fetcher papersources.DetailFetcher
	idOf    func(p *domain.Paper) string
}

// NewDOILookup looks papers up by DOI.
func NewDOILookup(name string, fetcher papersources.DetailFetcher) *FetcherLookup {
	return &FetcherLookup{
		name:    name,
		fetcher: fetcher,
		idOf:    func(p *domain.Paper) string { return p.DOI },
	}
}

// NewProviderIDLookup looks papers up by their identifier at provider.
func NewProviderIDLookup(provider domain.Provider, fetcher papersources.DetailFetcher) *FetcherLookup {
	return &FetcherLookup{
		name:    string(provider),
		fetcher: fetcher,
		idOf:    func(p *domain.Paper) string { return p.ProviderID(provider) },
	}
}

func (l *FetcherLookup) Name() string { return l.name }

func (l *FetcherLookup) Lookup(ctx context.Context, p *domain.Paper) (*domain.Paper, bool, error) {
	id := strings.TrimSpace(l.idOf(p))
	if id == "" {
		return nil, false, nil
	}
	detail, err := l.fetcher.GetByID(ctx, id)
	if err != nil {
		return nil, true, err
	}
	return detail, true, nil
}

// MetadataEnricher fills missing DOI, abstract, authors and publication date
// from a chain of detail lookups. It never removes or reorders papers.
type MetadataEnricher struct {
	lookups     []DetailLookup
	concurrency int
	timeout     time.Duration
	logger      zerolog.Logger
}

// NewMetadataEnricher creates an enricher that tries lookups in order.
func NewMetadataEnricher(logger zerolog.Logger, concurrency int, timeout time.Duration, lookups ...DetailLookup) *MetadataEnricher {
	if concurrency <= 0 {
		concurrency = DefaultEnrichmentConcurrency
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MetadataEnricher{
		lookups:     lookups,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger.With().Str("component", "metadata_enricher").Logger(),
	}
}

// NeedsEnrichment reports whether any mandatory field is missing.
func NeedsEnrichment(p *domain.Paper) bool {
	return p.DOI == "" ||
		strings.TrimSpace(p.Abstract) == "" ||
		len(p.Authors) == 0 ||
		(p.PublicationDate == nil && p.PublicationYear == 0)
}

// EnrichPapers fills gaps in place and returns the same slice.
func (e *MetadataEnricher) EnrichPapers(ctx context.Context, papers []*domain.Paper) []*domain.Paper {
	if len(e.lookups) == 0 {
		return papers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, p := range papers {
		if p == nil || !NeedsEnrichment(p) {
			continue
		}
		g.Go(func() error {
			e.enrichOne(gctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return papers
}

func (e *MetadataEnricher) enrichOne(ctx context.Context, p *domain.Paper) {
	for _, l := range e.lookups {
		if !NeedsEnrichment(p) {
			return
		}
		lctx, cancel := context.WithTimeout(ctx, e.timeout)
		detail, ok, err := l.Lookup(lctx, p)
		cancel()
		if !ok {
			continue
		}
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				e.logger.Debug().Err(err).Str("lookup", l.Name()).Str("title", p.Title).Msg("detail lookup failed")
			}
			continue
		}
		MergeMissing(p, detail)
	}
}

// MergeMissing copies fields from src into dst only where dst is empty.
func MergeMissing(dst, src *domain.Paper) {
	if dst == nil || src == nil {
		return
	}
	if dst.DOI == "" {
		dst.DOI = src.DOI
	}
	if strings.TrimSpace(dst.Abstract) == "" {
		dst.Abstract = src.Abstract
	}
	if len(dst.Authors) == 0 && len(src.Authors) > 0 {
		dst.Authors = append([]domain.Author(nil), src.Authors...)
	}
	if dst.PublicationDate == nil && src.PublicationDate != nil {
		t := *src.PublicationDate
		dst.PublicationDate = &t
	}
	if dst.PublicationYear == 0 {
		dst.PublicationYear = src.PublicationYear
	}
	if dst.Venue == "" {
		dst.Venue = src.Venue
	}
	if dst.CitationCount == 0 {
		dst.CitationCount = src.CitationCount
	}
	if dst.PDFURL == "" {
		dst.PDFURL = src.PDFURL
	}
	if dst.URL == "" {
		dst.URL = src.URL
	}
	if !dst.OpenAccess {
		dst.OpenAccess = src.OpenAccess
	}
	for prov, id := range src.ProviderIDs {
		if dst.ProviderID(prov) == "" {
			dst.SetProviderID(prov, id)
		}
	}
}
