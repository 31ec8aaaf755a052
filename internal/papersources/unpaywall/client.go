package unpaywall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

const (
	// DefaultBaseURL is the Unpaywall v2 API base URL.
	DefaultBaseURL = "https://api.unpaywall.org/v2"

	// DefaultRateLimit is well under the documented 100k calls per day.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// PageSize is the fixed number of results per search page.
	PageSize = 50

	sourceName = "Unpaywall"
)

// ErrMissingEmail is returned by New when no contact email is configured.
var ErrMissingEmail = errors.New("unpaywall: contact email is required")

// Config holds configuration for the Unpaywall client.
type Config struct {
	BaseURL string
	// Email is sent with every request, as Unpaywall requires.
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

// Client searches Unpaywall and resolves DOIs to open access locations.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var (
	_ papersources.Provider      = (*Client)(nil)
	_ papersources.DetailFetcher = (*Client)(nil)
)

// New creates an Unpaywall client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, ErrMissingEmail
	}
	cfg.applyDefaults()

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    sourceName,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	})), nil
}

// NewWithHTTPClient creates an Unpaywall client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Name returns the provider identifier.
func (c *Client) Name() domain.Provider {
	return domain.ProviderUnpaywall
}

// Search queries Unpaywall's title search. The API has no date filter, so
// the year window is applied to the returned page.
func (c *Client) Search(ctx context.Context, query string, limit int, filters papersources.Filters) ([]*domain.Paper, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("query", query)
	if filters.OpenAccessOnly {
		q.Set("is_oa", "true")
	}
	target, err := c.endpoint("/search", q)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var page SearchResponse
	if err := c.getJSON(ctx, target, "", &page); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > PageSize {
		limit = PageSize
	}
	papers := make([]*domain.Paper, 0, min(limit, len(page.Results)))
	for i := range page.Results {
		if len(papers) == limit {
			break
		}
		p := recordToPaper(&page.Results[i].Response)
		if p == nil || !inYearWindow(p.PublicationYear, filters) {
			continue
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// GetByID looks a DOI up. The result carries the best open access PDF
// location when one is known.
func (c *Client) GetByID(ctx context.Context, doi string) (*domain.Paper, error) {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(strings.TrimPrefix(doi, "https://doi.org/"), "doi:")
	if doi == "" {
		return nil, domain.NewNotFoundError("paper", doi)
	}

	target, err := c.endpoint("/"+doi, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("building fetch URL: %w", err)
	}

	var rec Record
	if err := c.getJSON(ctx, target, doi, &rec); err != nil {
		return nil, err
	}
	p := recordToPaper(&rec)
	if p == nil {
		return nil, domain.NewNotFoundError("paper", doi)
	}
	return p, nil
}

func (c *Client) endpoint(path string, q url.Values) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + path
	q.Set("email", c.config.Email)
	baseURL.RawQuery = q.Encode()
	return baseURL.String(), nil
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

func inYearWindow(year int, f papersources.Filters) bool {
	if year == 0 {
		return true
	}
	if f.YearFrom > 0 && year < f.YearFrom {
		return false
	}
	if f.YearTo > 0 && year > f.YearTo {
		return false
	}
	return true
}

func recordToPaper(r *Record) *domain.Paper {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return nil
	}

	doi := strings.ToLower(strings.TrimSpace(r.DOI))
	p := &domain.Paper{
		Title:           title,
		DOI:             doi,
		PublicationYear: r.Year,
		Venue:           r.JournalName,
		Source:          domain.ProviderUnpaywall,
		URL:             r.DOIURL,
		OpenAccess:      r.IsOA,
	}
	if doi != "" {
		p.SetProviderID(domain.ProviderUnpaywall, doi)
	}
	if p.Venue == "" {
		p.Venue = r.Publisher
	}
	if r.PublishedDate != "" {
		if t, err := time.Parse(time.DateOnly, r.PublishedDate); err == nil {
			p.PublicationDate = &t
			if p.PublicationYear == 0 {
				p.PublicationYear = t.Year()
			}
		}
	}
	if loc := r.BestOALocation; loc != nil {
		p.PDFURL = loc.URLForPDF
		if p.URL == "" {
			p.URL = loc.URL
		}
	}
	for _, a := range r.Authors {
		if name := strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family)); name != "" {
			p.Authors = append(p.Authors, domain.Author{Name: name})
		}
	}
	return p
}
