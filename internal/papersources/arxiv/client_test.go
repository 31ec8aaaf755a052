package arxiv

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <totalResults>2</totalResults>
  <entry>
    <id>http://arxiv.org/abs/2301.12345v2</id>
    <published>2023-01-15T18:30:00Z</published>
    <title>Attention Is
      All You Need Again</title>
    <summary>  We revisit attention.
    </summary>
    <author><name>Jane Doe</name><arxiv:affiliation>MIT</arxiv:affiliation></author>
    <author><name> </name></author>
    <arxiv:doi>10.48550/arXiv.2301.12345</arxiv:doi>
    <link href="http://arxiv.org/abs/2301.12345v2" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2301.12345v2" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>not-an-arxiv-url</id>
    <title>Dropped</title>
  </entry>
</feed>`

func newTestClient(serverURL string) *Client {
	return NewWithHTTPClient(Config{BaseURL: serverURL}, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     sourceName,
		Timeout:    5 * time.Second,
		RateLimit:  100,
		BurstSize:  100,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}))
}

func TestClient_Search(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	papers, err := client.Search(context.Background(), "transformers", 5, papersources.Filters{
		YearFrom: 2021,
		YearTo:   2026,
		Category: "cs.*",
	})
	require.NoError(t, err)
	require.Len(t, papers, 1)

	assert.Equal(t, "all:transformers AND cat:cs.* AND submittedDate:[202101010000 TO 202612312359]", gotQuery.Get("search_query"))
	assert.Equal(t, "5", gotQuery.Get("max_results"))

	p := papers[0]
	assert.Equal(t, "Attention Is All You Need Again", p.Title)
	assert.Equal(t, "We revisit attention.", p.Abstract)
	assert.Equal(t, "2301.12345", p.ProviderID(domain.ProviderArXiv))
	assert.Equal(t, "10.48550/arXiv.2301.12345", p.DOI)
	assert.Equal(t, 2023, p.PublicationYear)
	assert.Equal(t, "http://arxiv.org/pdf/2301.12345v2", p.PDFURL)
	assert.Equal(t, domain.ProviderArXiv, p.Source)
	assert.True(t, p.OpenAccess)
	require.Len(t, p.Authors, 1)
	assert.Equal(t, "Jane Doe", p.Authors[0].Name)
	assert.Equal(t, "MIT", p.Authors[0].Affiliation)
}

func TestClient_SearchClampsLimit(t *testing.T) {
	var maxResults string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		maxResults = r.URL.Query().Get("max_results")
		_, _ = w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	}))
	defer server.Close()

	papers, err := newTestClient(server.URL).Search(context.Background(), "q", 0, papersources.Filters{})
	require.NoError(t, err)
	assert.Empty(t, papers)
	assert.Equal(t, "100", maxResults)
}

func TestClient_SearchRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Search(context.Background(), "q", 5, papersources.Filters{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
}

func TestClient_GetByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2301.12345", r.URL.Query().Get("id_list"))
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	p, err := newTestClient(server.URL).GetByID(context.Background(), "arXiv:2301.12345")
	require.NoError(t, err)
	assert.Equal(t, "2301.12345", p.ProviderID(domain.ProviderArXiv))
}

func TestClient_GetByIDNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetByID(context.Background(), "9999.99999")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestExtractArXivID(t *testing.T) {
	assert.Equal(t, "2301.12345", extractArXivID("http://arxiv.org/abs/2301.12345v1"))
	assert.Equal(t, "hep-th/9901001", extractArXivID("http://arxiv.org/abs/hep-th/9901001v3"))
	assert.Equal(t, "", extractArXivID("https://example.com/x"))
}

func TestBuildDateFilter(t *testing.T) {
	assert.Equal(t, "", buildDateFilter(0, 0))
	assert.Equal(t, "submittedDate:[202001010000 TO *]", buildDateFilter(2020, 0))
}
