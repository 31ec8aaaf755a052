package semanticscholar

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
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default rate limit for unauthenticated requests.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is longer than other providers; the search endpoint is slow under load.
	DefaultTimeout = 60 * time.Second

	// MaxLimit is the search endpoint's page size limit.
	MaxLimit = 100

	apiKeyHeader = "x-api-key"

	paperFields = "paperId,externalIds,title,abstract,year,publicationDate,venue,journal,authors,citationCount,isOpenAccess,openAccessPdf,url"

	sourceName = "Semantic Scholar"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	BaseURL string

	// APIKey is optional. Authenticated requests get higher rate limits.
	APIKey string

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

// Client searches the Semantic Scholar Graph API.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

var (
	_ papersources.Provider      = (*Client)(nil)
	_ papersources.DetailFetcher = (*Client)(nil)
)

// NewClient creates a new Semantic Scholar client. If httpClient is nil one
// is built from cfg.
func NewClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	if httpClient == nil {
		httpClient = papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:       sourceName,
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
		})
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() domain.Provider {
	return domain.ProviderSemanticScholar
}

// Search queries Semantic Scholar for up to limit papers matching query.
func (c *Client) Search(ctx context.Context, query string, limit int, filters papersources.Filters) ([]*domain.Paper, error) {
	searchURL, err := c.buildSearchURL(query, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var searchResp SearchResponse
	if err := c.getJSON(ctx, searchURL, "", &searchResp); err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(searchResp.Data))
	for _, result := range searchResp.Data {
		if p := convertToPaper(result); p != nil {
			papers = append(papers, p)
		}
	}
	return papers, nil
}

// GetByID retrieves a paper by Semantic Scholar ID or a prefixed external
// ID such as "DOI:10.1/x" or "ARXIV:2301.12345".
func (c *Client) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	paperURL := fmt.Sprintf("%s/paper/%s?fields=%s", c.config.BaseURL, url.PathEscape(id), paperFields)

	var result PaperResult
	if err := c.getJSON(ctx, paperURL, id, &result); err != nil {
		return nil, err
	}

	p := convertToPaper(result)
	if p == nil {
		return nil, domain.NewNotFoundError("paper", id)
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
	if err := handleErrorResponse(resp); err != nil {
		return err
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
	searchURL := baseURL.JoinPath("paper", "search")

	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}

	q := searchURL.Query()
	q.Set("query", query)
	q.Set("fields", paperFields)
	q.Set("limit", strconv.Itoa(limit))

	if filters.OpenAccessOnly {
		q.Set("openAccessPdf", "")
	}
	if filters.YearFrom > 0 || filters.YearTo > 0 {
		var from, to string
		if filters.YearFrom > 0 {
			from = strconv.Itoa(filters.YearFrom)
		}
		if filters.YearTo > 0 {
			to = strconv.Itoa(filters.YearTo)
		}
		q.Set("year", from+"-"+to)
	}
	if filters.Category != "" {
		q.Set("fieldsOfStudy", filters.Category)
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// handleErrorResponse maps non-2xx responses to ExternalAPIError, preferring
// the API's JSON error message.
func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read error response", err)
	}

	message := string(body)
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Error != "" {
			message = errResp.Error
		} else if errResp.Message != "" {
			message = errResp.Message
		}
	}
	return domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil)
}

func convertToPaper(result PaperResult) *domain.Paper {
	title := strings.TrimSpace(result.Title)
	if title == "" || result.PaperID == "" {
		return nil
	}

	paper := &domain.Paper{
		Title:           title,
		Abstract:        strings.TrimSpace(result.Abstract),
		PublicationYear: result.Year,
		Venue:           result.Venue,
		CitationCount:   result.CitationCount,
		OpenAccess:      result.IsOpenAccess,
		Source:          domain.ProviderSemanticScholar,
		URL:             result.URL,
	}
	paper.SetProviderID(domain.ProviderSemanticScholar, result.PaperID)

	if result.PublicationDate != "" {
		if pubDate, err := time.Parse("2006-01-02", result.PublicationDate); err == nil {
			paper.PublicationDate = &pubDate
		}
	}
	if paper.Venue == "" && result.Journal != nil {
		paper.Venue = result.Journal.Name
	}
	if result.OpenAccessPDF != nil {
		paper.PDFURL = result.OpenAccessPDF.URL
	}
	if ids := result.ExternalIDs; ids != nil {
		paper.DOI = strings.ToLower(strings.TrimSpace(ids.DOI))
		paper.SetProviderID(domain.ProviderArXiv, ids.ArXiv)
		paper.SetProviderID(domain.ProviderPubMed, ids.PubMed)
		paper.SetProviderID(domain.ProviderEuropePMC, ids.PubMedCentral)
		paper.SetProviderID(domain.ProviderDBLP, ids.DBLP)
	}

	for _, a := range result.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			paper.Authors = append(paper.Authors, domain.Author{Name: name})
		}
	}
	return paper
}
