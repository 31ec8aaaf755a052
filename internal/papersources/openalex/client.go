package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// OpenAlex polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPerPage is the OpenAlex page size limit.
	MaxPerPage = 200

	sourceName = "OpenAlex"

	doiPrefix        = "https://doi.org/"
	openAlexIDPrefix = "https://openalex.org/"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	BaseURL string

	// Email is the contact email for the polite pool.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

	Timeout   time.Duration
	RateLimit float64
	BurstSize int
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// Client searches the OpenAlex works endpoint.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var (
	_ papersources.Provider      = (*Client)(nil)
	_ papersources.DetailFetcher = (*Client)(nil)
)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	userAgent := papersources.DefaultUserAgent
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    sourceName,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: userAgent,
	}))
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() domain.Provider {
	return domain.ProviderOpenAlex
}

// Search queries OpenAlex for up to limit works matching query.
func (c *Client) Search(ctx context.Context, query string, limit int, filters papersources.Filters) ([]*domain.Paper, error) {
	searchURL, err := c.buildSearchURL(query, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var searchResp SearchResponse
	if err := c.getJSON(ctx, searchURL, "", &searchResp); err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(searchResp.Results))
	for i := range searchResp.Results {
		if paper := workToPaper(&searchResp.Results[i]); paper != nil {
			papers = append(papers, paper)
		}
	}
	return papers, nil
}

// GetByID retrieves a work by its OpenAlex ID or DOI.
func (c *Client) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	fetchURL, err := c.buildGetByIDURL(id)
	if err != nil {
		return nil, fmt.Errorf("building fetch URL: %w", err)
	}

	var work Work
	if err := c.getJSON(ctx, fetchURL, id, &work); err != nil {
		return nil, err
	}

	paper := workToPaper(&work)
	if paper == nil {
		return nil, domain.NewNotFoundError("paper", id)
	}
	return paper, nil
}

// getJSON fetches target and decodes the body into out. A non-empty id turns
// a 404 into a not-found error.
func (c *Client) getJSON(ctx context.Context, target, id string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && id != "" {
		return domain.NewNotFoundError("paper", id)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	// Limit body to 10MB.
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) buildSearchURL(query string, limit int, filters papersources.Filters) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = "/works"

	q := url.Values{}
	if query != "" {
		q.Set("search", query)
	}
	if f := buildFilters(filters); len(f) > 0 {
		q.Set("filter", strings.Join(f, ","))
	}
	if filters.Sort != "" {
		q.Set("sort", filters.Sort)
	}

	if limit <= 0 || limit > MaxPerPage {
		limit = MaxPerPage
	}
	q.Set("per_page", strconv.Itoa(limit))

	if c.config.Email != "" {
		q.Set("mailto", c.config.Email)
	}

	baseURL.RawQuery = q.Encode()
	return baseURL.String(), nil
}

func buildFilters(f papersources.Filters) []string {
	var out []string

	if f.YearFrom > 0 {
		out = append(out, fmt.Sprintf("from_publication_date:%04d-01-01", f.YearFrom))
	}
	if f.YearTo > 0 {
		out = append(out, fmt.Sprintf("to_publication_date:%04d-12-31", f.YearTo))
	}
	if f.OpenAccessOnly {
		out = append(out, "is_oa:true")
	}
	if f.FullTextOnly {
		out = append(out, "has_fulltext:true")
	}
	if f.Field != "" {
		out = append(out, "primary_topic.field.display_name.search:"+strings.ReplaceAll(f.Field, "-", " "))
	}
	return out
}

// buildGetByIDURL accepts an OpenAlex ID (short or URL) or a DOI in any of
// the usual spellings.
func (c *Client) buildGetByIDURL(id string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	id = strings.TrimSpace(id)
	var workID string
	switch {
	case strings.HasPrefix(id, openAlexIDPrefix):
		workID = strings.TrimPrefix(id, openAlexIDPrefix)
	case strings.HasPrefix(id, doiPrefix):
		workID = id
	case strings.HasPrefix(id, "10."):
		workID = doiPrefix + id
	case strings.HasPrefix(id, "doi:"):
		workID = doiPrefix + strings.TrimPrefix(id, "doi:")
	default:
		workID = id
	}

	// OpenAlex expects the DOI URL as-is in the path.
	baseURL.Path = "/works/" + workID

	if c.config.Email != "" {
		q := url.Values{}
		q.Set("mailto", c.config.Email)
		baseURL.RawQuery = q.Encode()
	}
	return baseURL.String(), nil
}

func workToPaper(work *Work) *domain.Paper {
	title := work.DisplayName
	if title == "" {
		title = work.Title
	}
	openAlexID := normalizeOpenAlexID(work.ID)
	if openAlexID == "" {
		openAlexID = normalizeOpenAlexID(work.IDs.OpenAlex)
	}
	if strings.TrimSpace(title) == "" || openAlexID == "" {
		return nil
	}

	doi := normalizeDOI(work.DOI)
	if doi == "" {
		doi = normalizeDOI(work.IDs.DOI)
	}

	paper := &domain.Paper{
		Title:           strings.TrimSpace(title),
		Abstract:        reconstructAbstract(work.AbstractInvertedIndex),
		PublicationYear: work.PublicationYear,
		DOI:             doi,
		CitationCount:   work.CitedByCount,
		Source:          domain.ProviderOpenAlex,
		URL:             openAlexIDPrefix + openAlexID,
		OpenAccess:      work.IsOpenAccess,
	}
	paper.SetProviderID(domain.ProviderOpenAlex, openAlexID)
	paper.SetProviderID(domain.ProviderPubMed, normalizePMID(work.IDs.PMID))
	paper.SetProviderID(domain.ProviderEuropePMC, strings.TrimPrefix(work.IDs.PMCID, "https://www.ncbi.nlm.nih.gov/pmc/articles/"))

	if work.PublicationDate != "" {
		if t, err := time.Parse("2006-01-02", work.PublicationDate); err == nil {
			paper.PublicationDate = &t
		}
	}

	for _, authorship := range work.Authorships {
		name := strings.TrimSpace(authorship.Author.DisplayName)
		if name == "" {
			continue
		}
		author := domain.Author{
			Name:  name,
			ORCID: normalizeORCID(authorship.Author.Orcid),
		}
		if len(authorship.Institutions) > 0 {
			author.Affiliation = authorship.Institutions[0].DisplayName
		}
		paper.Authors = append(paper.Authors, author)
	}

	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		paper.Venue = work.PrimaryLocation.Source.DisplayName
	}

	if work.OpenAccess != nil {
		paper.OpenAccess = work.OpenAccess.IsOA
		paper.PDFURL = work.OpenAccess.OAURL
	}
	if paper.PDFURL == "" && work.PrimaryLocation != nil {
		paper.PDFURL = work.PrimaryLocation.PDFURL
	}

	return paper
}

// normalizeDOI strips URL prefixes from DOIs and lowercases them.
func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, doiPrefix)
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}

func normalizeOpenAlexID(id string) string {
	return strings.TrimSpace(strings.TrimPrefix(id, openAlexIDPrefix))
}

func normalizePMID(pmid string) string {
	return strings.TrimSpace(strings.TrimPrefix(pmid, "https://pubmed.ncbi.nlm.nih.gov/"))
}

func normalizeORCID(orcid string) string {
	return strings.TrimSpace(strings.TrimPrefix(orcid, "https://orcid.org/"))
}

// reconstructAbstract rebuilds abstract text from OpenAlex's inverted index,
// which maps each word to its positions.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000

	total := 0
	for _, positions := range invertedIndex {
		total += len(positions)
	}
	if total > maxAbstractWords {
		return ""
	}

	pairs := make([]posWord, 0, total)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	var b strings.Builder
	b.Grow(total * 7)
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.word)
	}
	return b.String()
}
