package core

import (
	"context"
	"encoding/json"
	"errors"
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
	// DefaultBaseURL is the CORE v3 API base URL.
	DefaultBaseURL = "https://api.core.ac.uk/v3"

	// DefaultRateLimit keeps within the registered-key quota.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 2

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxLimit is the CORE page size limit.
	MaxLimit = 100

	sourceName = "CORE"
)

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("core: api key is required")

// Config holds configuration for the CORE client.
type Config struct {
	BaseURL   string
	APIKey    string
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

// Client searches CORE works.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.Provider = (*Client)(nil)

// New creates a CORE client. The API key is sent as a bearer token.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	cfg.applyDefaults()

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:       sourceName,
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		BurstSize:    cfg.BurstSize,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "Authorization",
		APIKeyPrefix: "Bearer ",
	})), nil
}

// NewWithHTTPClient creates a CORE client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Name returns the provider identifier.
func (c *Client) Name() domain.Provider {
	return domain.ProviderCORE
}

// Search queries CORE for up to limit works matching query.
func (c *Client) Search(ctx context.Context, query string, limit int, filters papersources.Filters) ([]*domain.Paper, error) {
	searchURL, err := c.buildSearchURL(query, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
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
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	papers := make([]*domain.Paper, 0, len(searchResp.Results))
	for i := range searchResp.Results {
		if p := workToPaper(&searchResp.Results[i]); p != nil {
			papers = append(papers, p)
		}
	}
	return papers, nil
}

func (c *Client) buildSearchURL(query string, limit int, filters papersources.Filters) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/search/works"

	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}

	q := url.Values{}
	q.Set("q", buildQuery(query, filters))
	q.Set("limit", strconv.Itoa(limit))
	if filters.Sort != "" {
		q.Set("sort", filters.Sort)
	}
	baseURL.RawQuery = q.Encode()
	return baseURL.String(), nil
}

// buildQuery folds filters into CORE's query language.
func buildQuery(query string, f papersources.Filters) string {
	clauses := []string{"(" + query + ")"}
	if f.YearFrom > 0 {
		clauses = append(clauses, fmt.Sprintf("yearPublished>=%d", f.YearFrom))
	}
	if f.YearTo > 0 {
		clauses = append(clauses, fmt.Sprintf("yearPublished<=%d", f.YearTo))
	}
	if f.Category != "" {
		clauses = append(clauses, fmt.Sprintf("subjects:%q", f.Category))
	}
	if f.FullTextOnly {
		clauses = append(clauses, "_exists_:fullText")
	}
	return strings.Join(clauses, " AND ")
}

func workToPaper(w *Work) *domain.Paper {
	title := strings.TrimSpace(w.Title)
	if title == "" || w.ID == 0 {
		return nil
	}

	p := &domain.Paper{
		Title:           title,
		Abstract:        strings.TrimSpace(w.Abstract),
		PublicationYear: w.YearPublished,
		DOI:             strings.ToLower(strings.TrimSpace(w.DOI)),
		CitationCount:   w.CitationCount,
		Source:          domain.ProviderCORE,
		URL:             "https://core.ac.uk/works/" + strconv.FormatInt(w.ID, 10),
		PDFURL:          w.DownloadURL,
		OpenAccess:      true,
		Venue:           w.Publisher,
	}
	p.SetProviderID(domain.ProviderCORE, strconv.FormatInt(w.ID, 10))

	if len(w.Journals) > 0 && w.Journals[0].Title != "" {
		p.Venue = w.Journals[0].Title
	}
	if p.PDFURL == "" {
		for _, l := range w.Links {
			if l.Type == "download" {
				p.PDFURL = l.URL
				break
			}
		}
	}
	if w.PublishedDate != "" {
		if t, err := time.Parse(time.RFC3339, w.PublishedDate); err == nil {
			p.PublicationDate = &t
			if p.PublicationYear == 0 {
				p.PublicationYear = t.Year()
			}
		}
	}
	for _, a := range w.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			p.Authors = append(p.Authors, domain.Author{Name: name})
		}
	}
	return p
}
