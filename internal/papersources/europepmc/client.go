package europepmc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

const (
	// DefaultBaseURL is the Europe PMC REST base URL.
	DefaultBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPageSize is the Europe PMC page size limit.
	MaxPageSize = 1000
)

// Config holds configuration for the Europe PMC client.
type Config struct {
	BaseURL string

	// Provider selects the variant: domain.ProviderEuropePMC (default) or
	// domain.ProviderBioRxiv, which restricts results to bioRxiv preprints.
	Provider domain.Provider

	Timeout   time.Duration
	RateLimit float64
	BurstSize int
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Provider == "" {
		c.Provider = domain.ProviderEuropePMC
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

// Client searches Europe PMC.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var (
	_ papersources.Provider      = (*Client)(nil)
	_ papersources.DetailFetcher = (*Client)(nil)
)

// New creates a new Europe PMC client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    cfg.Provider.DisplayName(),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	}))
}

// NewWithHTTPClient creates a new client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Name returns the provider identifier of the configured variant.
func (c *Client) Name() domain.Provider {
	return c.config.Provider
}

func (c *Client) biorxiv() bool {
	return c.config.Provider == domain.ProviderBioRxiv
}

// Search queries Europe PMC for up to limit articles matching query.
func (c *Client) Search(ctx context.Context, query string, limit int, filters papersources.Filters) ([]*domain.Paper, error) {
	parts := []string{"(" + query + ")"}
	if c.biorxiv() {
		parts = append(parts, "(SRC:PPR)", `(PUBLISHER:"bioRxiv")`)
	}
	if df := buildDateFilter(filters.YearFrom, filters.YearTo); df != "" {
		parts = append(parts, df)
	}
	if filters.OpenAccessOnly {
		parts = append(parts, "(OPEN_ACCESS:y)")
	}

	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	searchResp, err := c.search(ctx, strings.Join(parts, " AND "), limit)
	if err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(searchResp.ResultList.Result))
	for i := range searchResp.ResultList.Result {
		if p := c.articleToPaper(&searchResp.ResultList.Result[i]); p != nil {
			papers = append(papers, p)
		}
	}
	return papers, nil
}

// GetByID looks up an article by DOI, PMID or PMCID.
func (c *Client) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	id = strings.TrimSpace(id)
	var query string
	switch {
	case strings.HasPrefix(strings.ToUpper(id), "PMC"):
		query = "PMCID:" + strings.ToUpper(id)
	case strings.HasPrefix(id, "10."), strings.HasPrefix(id, "doi:"):
		query = fmt.Sprintf("DOI:%q", strings.TrimPrefix(id, "doi:"))
	default:
		query = "EXT_ID:" + id
	}
	if c.biorxiv() {
		query += " AND (SRC:PPR)"
	}

	searchResp, err := c.search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(searchResp.ResultList.Result) == 0 {
		return nil, domain.NewNotFoundError("paper", id)
	}
	p := c.articleToPaper(&searchResp.ResultList.Result[0])
	if p == nil {
		return nil, domain.NewNotFoundError("paper", id)
	}
	return p, nil
}

func (c *Client) search(ctx context.Context, query string, pageSize int) (*SearchResponse, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/search"

	q := url.Values{}
	q.Set("query", query)
	q.Set("format", "json")
	q.Set("resultType", "core")
	q.Set("pageSize", strconv.Itoa(pageSize))
	baseURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(c.config.Provider.DisplayName(), resp.StatusCode, string(body), nil)
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &searchResp, nil
}

// buildDateFilter constructs the Europe PMC first-publication date range.
func buildDateFilter(from, to int) string {
	if from == 0 && to == 0 {
		return ""
	}
	fromStr, toStr := "*", "*"
	if from > 0 {
		fromStr = fmt.Sprintf("%04d-01-01", from)
	}
	if to > 0 {
		toStr = fmt.Sprintf("%04d-12-31", to)
	}
	return fmt.Sprintf("(FIRST_PDATE:[%s TO %s])", fromStr, toStr)
}

func (c *Client) articleToPaper(article *Article) *domain.Paper {
	title := strings.TrimSpace(article.Title)
	if title == "" || strings.TrimSpace(article.ID) == "" {
		return nil
	}

	doi := strings.ToLower(strings.TrimSpace(article.DOI))
	pmcid := strings.TrimSpace(article.PMCID)

	p := &domain.Paper{
		Title:         title,
		Abstract:      strings.TrimSpace(article.AbstractText),
		Authors:       parseAuthorString(article.AuthorString),
		DOI:           doi,
		Venue:         strings.TrimSpace(article.JournalTitle),
		CitationCount: article.CitedByCount,
		Source:        c.config.Provider,
		OpenAccess:    article.IsOpenAccess == "Y",
		URL:           fmt.Sprintf("https://europepmc.org/article/%s/%s", article.Source, article.ID),
	}

	if article.FirstPublicationDate != "" {
		if t, err := time.Parse("2006-01-02", article.FirstPublicationDate); err == nil {
			p.PublicationDate = &t
			p.PublicationYear = t.Year()
		}
	}
	if p.PublicationYear == 0 {
		p.PublicationYear, _ = strconv.Atoi(article.PubYear)
	}

	p.SetProviderID(domain.ProviderPubMed, article.PMID)
	p.SetProviderID(domain.ProviderEuropePMC, pmcid)

	switch {
	case c.biorxiv():
		p.SetProviderID(domain.ProviderBioRxiv, doi)
		// Preprints are open access unless flagged otherwise.
		p.OpenAccess = article.IsOpenAccess != "N"
		if doi != "" {
			p.PDFURL = "https://www.biorxiv.org/content/" + doi + ".full.pdf"
		}
		if p.Venue == "" {
			p.Venue = "bioRxiv"
		}
	case pmcid != "":
		p.PDFURL = "https://europepmc.org/articles/" + pmcid + "?pdf=render"
	}
	return p
}

// parseAuthorString splits the Europe PMC authorString field, which lists
// authors separated by ", " and ends with a period.
func parseAuthorString(authorString string) []domain.Author {
	authorString = strings.TrimSuffix(strings.TrimSpace(authorString), ".")
	if authorString == "" {
		return nil
	}

	parts := strings.Split(authorString, ", ")
	authors := make([]domain.Author, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			authors = append(authors, domain.Author{Name: name})
		}
	}
	return authors
}
