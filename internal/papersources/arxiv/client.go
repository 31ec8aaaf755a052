package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
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
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit is the default rate limit (3 requests per second).
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults caps the results of a single request.
	DefaultMaxResults = 100

	sourceName = "arXiv"
)

// arxivIDRegex extracts the arXiv ID from the full URL.
// Matches patterns like "http://arxiv.org/abs/2301.12345v1" or "http://arxiv.org/abs/hep-th/9901001v1".
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	BurstSize  int
	MaxResults int
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
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client searches the arXiv Atom API.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var (
	_ papersources.Provider      = (*Client)(nil)
	_ papersources.DetailFetcher = (*Client)(nil)
)

// New creates a new arXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    sourceName,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	}))
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() domain.Provider {
	return domain.ProviderArXiv
}

// Search queries arXiv for up to limit papers matching query.
func (c *Client) Search(ctx context.Context, query string, limit int, filters papersources.Filters) ([]*domain.Paper, error) {
	searchURL, err := c.buildSearchURL(query, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	feed, err := c.fetch(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(feed.Entries))
	for i := range feed.Entries {
		if paper := entryToPaper(&feed.Entries[i]); paper != nil {
			papers = append(papers, paper)
		}
	}
	return papers, nil
}

// GetByID retrieves a specific paper by its arXiv ID.
func (c *Client) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"
	q := url.Values{}
	q.Set("id_list", strings.TrimPrefix(strings.TrimSpace(id), "arXiv:"))
	baseURL.RawQuery = q.Encode()

	feed, err := c.fetch(ctx, baseURL.String())
	if err != nil {
		return nil, err
	}

	if len(feed.Entries) == 0 {
		return nil, domain.NewNotFoundError("paper", id)
	}
	paper := entryToPaper(&feed.Entries[0])
	if paper == nil {
		return nil, domain.NewNotFoundError("paper", id)
	}
	return paper, nil
}

func (c *Client) fetch(ctx context.Context, target string) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
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

	// Limit body to 10MB.
	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &feed, nil
}

func (c *Client) buildSearchURL(query string, limit int, filters papersources.Filters) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	clauses := []string{"all:" + query}
	if filters.Category != "" {
		clauses = append(clauses, "cat:"+filters.Category)
	}
	if df := buildDateFilter(filters.YearFrom, filters.YearTo); df != "" {
		clauses = append(clauses, df)
	}

	if limit <= 0 || limit > c.config.MaxResults {
		limit = c.config.MaxResults
	}

	q := url.Values{}
	q.Set("search_query", strings.Join(clauses, " AND "))
	q.Set("max_results", strconv.Itoa(limit))
	q.Set("sortBy", "relevance")
	q.Set("sortOrder", "descending")

	baseURL.RawQuery = q.Encode()
	return baseURL.String(), nil
}

// buildDateFilter constructs the arXiv submittedDate range for a year window.
func buildDateFilter(from, to int) string {
	if from == 0 && to == 0 {
		return ""
	}
	fromStr, toStr := "*", "*"
	if from > 0 {
		fromStr = fmt.Sprintf("%04d01010000", from)
	}
	if to > 0 {
		toStr = fmt.Sprintf("%04d12312359", to)
	}
	return fmt.Sprintf("submittedDate:[%s TO %s]", fromStr, toStr)
}

func entryToPaper(entry *Entry) *domain.Paper {
	arxivID := extractArXivID(entry.ID)
	title := normalizeWhitespace(entry.Title)
	if arxivID == "" || title == "" {
		return nil
	}

	paper := &domain.Paper{
		Title:      title,
		Abstract:   normalizeWhitespace(entry.Summary),
		DOI:        strings.TrimSpace(entry.DOI),
		Venue:      strings.TrimSpace(entry.JournalRef),
		Source:     domain.ProviderArXiv,
		URL:        "https://arxiv.org/abs/" + arxivID,
		OpenAccess: true,
	}
	paper.SetProviderID(domain.ProviderArXiv, arxivID)

	if entry.Published != "" {
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			paper.PublicationDate = &t
			paper.PublicationYear = t.Year()
		}
	}

	for _, a := range entry.Authors {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		paper.Authors = append(paper.Authors, domain.Author{
			Name:        name,
			Affiliation: strings.TrimSpace(a.Affiliation),
		})
	}

	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			paper.PDFURL = link.Href
			break
		}
	}
	if paper.PDFURL == "" {
		paper.PDFURL = "https://arxiv.org/pdf/" + arxivID
	}

	return paper
}

// extractArXivID extracts the arXiv ID from the full entry URL.
// Input: "http://arxiv.org/abs/2301.12345v1" -> "2301.12345"
func extractArXivID(entryURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
