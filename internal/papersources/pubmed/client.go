package pubmed

import (
	"context"
	"encoding/xml"
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
	// DefaultBaseURL is the E-utilities base URL.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is NCBI's limit without an API key.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxResultsLimit is the ESearch retmax ceiling.
	MaxResultsLimit = 10000

	sourceName = "PubMed"
)

// Config holds configuration for the PubMed client.
type Config struct {
	BaseURL string

	// APIKey is optional; with a key NCBI allows 10 requests per second.
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

// Client searches PubMed.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var (
	_ papersources.Provider      = (*Client)(nil)
	_ papersources.DetailFetcher = (*Client)(nil)
)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    sourceName,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	}))
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Name returns the provider identifier.
func (c *Client) Name() domain.Provider {
	return domain.ProviderPubMed
}

// Search resolves query to PMIDs and fetches up to limit article records.
func (c *Client) Search(ctx context.Context, query string, limit int, filters papersources.Filters) ([]*domain.Paper, error) {
	searchResult, err := c.esearch(ctx, query, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("esearch failed: %w", err)
	}

	// PubMed answers unresolvable phrases with a best-effort match we don't want.
	if searchResult.ErrorList != nil && len(searchResult.ErrorList.PhraseNotFound) > 0 {
		return []*domain.Paper{}, nil
	}
	if len(searchResult.IDList.IDs) == 0 {
		return []*domain.Paper{}, nil
	}

	articles, err := c.efetch(ctx, searchResult.IDList.IDs)
	if err != nil {
		return nil, fmt.Errorf("efetch failed: %w", err)
	}

	papers := make([]*domain.Paper, 0, len(articles.Articles))
	for _, article := range articles.Articles {
		if p := articleToPaper(article); p != nil {
			papers = append(papers, p)
		}
	}
	return papers, nil
}

// GetByID fetches a single article by PMID.
func (c *Client) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	articles, err := c.efetch(ctx, []string{strings.TrimSpace(id)})
	if err != nil {
		return nil, fmt.Errorf("efetch failed: %w", err)
	}
	if len(articles.Articles) == 0 {
		return nil, domain.NewNotFoundError("paper", id)
	}
	p := articleToPaper(articles.Articles[0])
	if p == nil {
		return nil, domain.NewNotFoundError("paper", id)
	}
	return p, nil
}

func (c *Client) esearch(ctx context.Context, query string, limit int, filters papersources.Filters) (*ESearchResult, error) {
	if limit <= 0 || limit > MaxResultsLimit {
		limit = MaxResultsLimit
	}

	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", query)
	q.Set("retmode", "xml")
	q.Set("retmax", strconv.Itoa(limit))
	q.Set("sort", "relevance")

	if filters.YearFrom > 0 || filters.YearTo > 0 {
		q.Set("datetype", "pdat")
		if filters.YearFrom > 0 {
			q.Set("mindate", strconv.Itoa(filters.YearFrom))
		}
		if filters.YearTo > 0 {
			q.Set("maxdate", strconv.Itoa(filters.YearTo))
		}
	}

	var result ESearchResult
	if err := c.getXML(ctx, "/esearch.fcgi", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) efetch(ctx context.Context, pmids []string) (*PubmedArticleSet, error) {
	if len(pmids) == 0 {
		return &PubmedArticleSet{}, nil
	}

	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")

	var result PubmedArticleSet
	if err := c.getXML(ctx, "/efetch.fcgi", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) getXML(ctx context.Context, endpoint string, q url.Values, out any) error {
	u, err := url.Parse(c.config.BaseURL + endpoint)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
		return fmt.Errorf("failed to parse XML response: %w", err)
	}
	return nil
}

func articleToPaper(article PubmedArticle) *domain.Paper {
	citation := article.MedlineCitation
	pmid := strings.TrimSpace(citation.PMID)
	title := strings.TrimSpace(citation.Article.ArticleTitle)
	if pmid == "" || title == "" {
		return nil
	}

	p := &domain.Paper{
		Title:    title,
		Abstract: extractAbstract(citation.Article.Abstract),
		Authors:  extractAuthors(citation.Article.AuthorList),
		DOI:      strings.ToLower(extractDOI(citation.Article, article.PubmedData)),
		Venue:    citation.Article.Journal.Title,
		Source:   domain.ProviderPubMed,
		URL:      "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
	}
	if p.Venue == "" {
		p.Venue = citation.Article.Journal.ISOAbbreviation
	}
	p.PublicationDate, p.PublicationYear = extractPublicationDate(citation.Article)
	p.SetProviderID(domain.ProviderPubMed, pmid)

	for _, aid := range article.PubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "pmc" {
			pmcid := strings.TrimSpace(aid.Value)
			p.SetProviderID(domain.ProviderEuropePMC, pmcid)
			if pmcid != "" {
				p.OpenAccess = true
				p.PDFURL = "https://www.ncbi.nlm.nih.gov/pmc/articles/" + pmcid + "/pdf/"
			}
			break
		}
	}
	return p
}

// extractDOI prefers a valid ELocationID over the ArticleIdList entry.
func extractDOI(article Article, pubmedData PubmedData) string {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return strings.TrimSpace(eloc.Value)
		}
	}
	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "doi" {
			return strings.TrimSpace(aid.Value)
		}
	}
	return ""
}

// extractPublicationDate uses the electronic ArticleDate when present and
// falls back to the journal issue date.
func extractPublicationDate(article Article) (*time.Time, int) {
	for _, ad := range article.ArticleDate {
		if ad.DateType == "Electronic" || ad.DateType == "" {
			if t := parseDate(ad.Year, ad.Month, ad.Day); t != nil {
				return t, t.Year()
			}
		}
	}

	pubDate := article.Journal.JournalIssue.PubDate
	if pubDate.MedlineDate != "" {
		if year := extractYearFromMedlineDate(pubDate.MedlineDate); year > 0 {
			t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			return &t, year
		}
	}
	if t := parseDate(pubDate.Year, pubDate.Month, pubDate.Day); t != nil {
		return t, t.Year()
	}
	return nil, 0
}

func parseDate(year, month, day string) *time.Time {
	y, err := strconv.Atoi(year)
	if err != nil {
		return nil
	}
	d := 1
	if parsed, err := strconv.Atoi(day); err == nil && parsed >= 1 && parsed <= 31 {
		d = parsed
	}
	t := time.Date(y, parseMonth(month), d, 0, 0, 0, 0, time.UTC)
	return &t
}

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// parseMonth accepts numeric months and English names or abbreviations.
func parseMonth(month string) time.Month {
	if m, err := strconv.Atoi(month); err == nil && m >= 1 && m <= 12 {
		return time.Month(m)
	}
	if len(month) >= 3 {
		if m, ok := monthNames[strings.ToLower(month[:3])]; ok {
			return m
		}
	}
	return time.January
}

// extractYearFromMedlineDate handles forms like "2020 Jan-Feb" and "2020-2021".
func extractYearFromMedlineDate(medlineDate string) int {
	parts := strings.Fields(medlineDate)
	if len(parts) == 0 {
		return 0
	}
	year, err := strconv.Atoi(strings.Split(parts[0], "-")[0])
	if err != nil {
		return 0
	}
	return year
}

// extractAbstract joins structured abstract sections as "LABEL: text".
func extractAbstract(abstract *Abstract) string {
	if abstract == nil {
		return ""
	}

	parts := make([]string, 0, len(abstract.AbstractTexts))
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" && len(abstract.AbstractTexts) > 1 {
			text = at.Label + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

func extractAuthors(authorList *AuthorList) []domain.Author {
	if authorList == nil {
		return nil
	}

	authors := make([]domain.Author, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}

		name := a.CollectiveName
		if name == "" {
			name = strings.TrimSpace(a.ForeName + " " + a.LastName)
		}
		if name == "" {
			continue
		}

		author := domain.Author{Name: name}
		for _, id := range a.Identifiers {
			if strings.EqualFold(id.Source, "ORCID") {
				author.ORCID = strings.TrimPrefix(strings.TrimSpace(id.Value), "https://orcid.org/")
				break
			}
		}
		if len(a.AffiliationInfo) > 0 {
			author.Affiliation = a.AffiliationInfo[0].Affiliation
		}
		authors = append(authors, author)
	}
	return authors
}
