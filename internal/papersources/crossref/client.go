package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

const (
	// DefaultBaseURL is the Crossref REST API base URL.
	DefaultBaseURL = "https://api.crossref.org"

	// DefaultRateLimit stays well inside the polite pool allowance.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRows is the Crossref page size limit.
	MaxRows = 1000

	sourceName = "Crossref"
)

// jatsTagRegex matches the JATS markup Crossref abstracts are wrapped in.
var jatsTagRegex = regexp.MustCompile(`<[^>]+>`)

// Config holds configuration for the Crossref client.
type Config struct {
	BaseURL string
	// Email joins the polite pool via the mailto parameter.
	Email     string
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

// Client searches Crossref works and resolves DOIs.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var (
	_ papersources.Provider      = (*Client)(nil)
	_ papersources.DetailFetcher = (*Client)(nil)
)

// New creates a Crossref client.
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

// NewWithHTTPClient creates a Crossref client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Name returns the provider identifier.
func (c *Client) Name() domain.Provider {
	return domain.ProviderCrossref
}

// Search queries Crossref for up to limit works matching query.
func (c *Client) Search(ctx context.Context, query string, limit int, filters papersources.Filters) ([]*domain.Paper, error) {
	searchURL, err := c.buildSearchURL(query, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var page SearchResponse
	if err := c.getJSON(ctx, searchURL, "", &page); err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(page.Message.Items))
	for i := range page.Message.Items {
		if p := workToPaper(&page.Message.Items[i]); p != nil {
			papers = append(papers, p)
		}
	}
	return papers, nil
}

// GetByID resolves a DOI to its Crossref record.
func (c *Client) GetByID(ctx context.Context, doi string) (*domain.Paper, error) {
	doi = cleanDOI(doi)
	if doi == "" {
		return nil, domain.NewNotFoundError("paper", doi)
	}

	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/works/" + doi
	if c.config.Email != "" {
		baseURL.RawQuery = url.Values{"mailto": {c.config.Email}}.Encode()
	}

	var work WorkResponse
	if err := c.getJSON(ctx, baseURL.String(), doi, &work); err != nil {
		return nil, err
	}
	p := workToPaper(&work.Message)
	if p == nil {
		return nil, domain.NewNotFoundError("paper", doi)
	}
	return p, nil
}

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
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/works"

	if limit <= 0 || limit > MaxRows {
		limit = MaxRows
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("rows", strconv.Itoa(limit))
	q.Set("sort", "relevance")
	q.Set("order", "desc")
	if f := buildFilters(filters); len(f) > 0 {
		q.Set("filter", strings.Join(f, ","))
	}
	if c.config.Email != "" {
		q.Set("mailto", c.config.Email)
	}
	baseURL.RawQuery = q.Encode()
	return baseURL.String(), nil
}

func buildFilters(f papersources.Filters) []string {
	var out []string
	if f.YearFrom > 0 {
		out = append(out, fmt.Sprintf("from-pub-date:%04d", f.YearFrom))
	}
	if f.YearTo > 0 {
		out = append(out, fmt.Sprintf("until-pub-date:%04d", f.YearTo))
	}
	if f.FullTextOnly {
		out = append(out, "has-full-text:true")
	}
	if f.OpenAccessOnly {
		out = append(out, "has-license:true")
	}
	return out
}

func cleanDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "http://dx.doi.org/", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return doi
}

func workToPaper(w *Work) *domain.Paper {
	if len(w.Title) == 0 {
		return nil
	}
	title := strings.TrimSpace(w.Title[0])
	if title == "" {
		return nil
	}

	doi := strings.ToLower(strings.TrimSpace(w.DOI))
	p := &domain.Paper{
		Title:         title,
		Abstract:      cleanAbstract(w.Abstract),
		DOI:           doi,
		CitationCount: w.IsReferencedByCount,
		Source:        domain.ProviderCrossref,
		URL:           w.URL,
		Venue:         w.Publisher,
		OpenAccess:    len(w.License) > 0,
	}
	if doi != "" {
		p.SetProviderID(domain.ProviderCrossref, doi)
	}
	if len(w.ContainerTitle) > 0 && w.ContainerTitle[0] != "" {
		p.Venue = w.ContainerTitle[0]
	}

	for _, d := range []DateParts{w.Published, w.PublishedPrint, w.PublishedOnline} {
		if t, ok := d.time(); ok {
			p.PublicationDate = &t
			p.PublicationYear = t.Year()
			break
		}
	}

	for _, a := range w.Author {
		name := strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family))
		if name == "" {
			name = strings.TrimSpace(a.Name)
		}
		if name != "" {
			p.Authors = append(p.Authors, domain.Author{Name: name})
		}
	}

	for _, l := range w.Link {
		if l.ContentType == "application/pdf" {
			p.PDFURL = l.URL
			break
		}
	}
	return p
}

// time converts the first date-parts entry; missing month or day default to 1.
func (d DateParts) time() (time.Time, bool) {
	if len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 || d.DateParts[0][0] <= 0 {
		return time.Time{}, false
	}
	parts := d.DateParts[0]
	month, day := 1, 1
	if len(parts) > 1 && parts[1] > 0 {
		month = parts[1]
	}
	if len(parts) > 2 && parts[2] > 0 {
		day = parts[2]
	}
	return time.Date(parts[0], time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

func cleanAbstract(s string) string {
	s = jatsTagRegex.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}
