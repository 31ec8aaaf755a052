package pubmed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

const esearchResponseXML = `<?xml version="1.0" encoding="UTF-8" ?>
<!DOCTYPE eSearchResult PUBLIC "-//NLM//DTD esearch 20060628//EN" "https://eutils.ncbi.nlm.nih.gov/eutils/dtd/20060628/esearch.dtd">
<eSearchResult>
	<Count>2</Count>
	<IdList>
		<Id>12345678</Id>
		<Id>87654321</Id>
	</IdList>
</eSearchResult>`

const esearchPhraseNotFoundXML = `<?xml version="1.0" encoding="UTF-8" ?>
<eSearchResult>
	<Count>0</Count>
	<IdList></IdList>
	<ErrorList>
		<PhraseNotFound>nonexistent_term_xyz</PhraseNotFound>
	</ErrorList>
</eSearchResult>`

const efetchResponseXML = `<?xml version="1.0" encoding="UTF-8" ?>
<PubmedArticleSet>
	<PubmedArticle>
		<MedlineCitation Status="MEDLINE" Owner="NLM">
			<PMID Version="1">12345678</PMID>
			<Article PubModel="Print-Electronic">
				<Journal>
					<JournalIssue CitedMedium="Internet">
						<PubDate><Year>2023</Year><Month>Mar</Month></PubDate>
					</JournalIssue>
					<Title>Nature Medicine</Title>
				</Journal>
				<ArticleTitle>CRISPR screening in human cells</ArticleTitle>
				<ELocationID EIdType="doi" ValidYN="Y">10.1038/S41591-023-0001</ELocationID>
				<Abstract>
					<AbstractText Label="BACKGROUND">Gene editing.</AbstractText>
					<AbstractText Label="RESULTS">It works.</AbstractText>
				</Abstract>
				<AuthorList CompleteYN="Y">
					<Author ValidYN="Y">
						<LastName>Doudna</LastName>
						<ForeName>Jennifer</ForeName>
						<Identifier Source="ORCID">https://orcid.org/0000-0001-9161-999X</Identifier>
						<AffiliationInfo><Affiliation>UC Berkeley</Affiliation></AffiliationInfo>
					</Author>
					<Author ValidYN="N"><LastName>Ghost</LastName></Author>
					<Author><CollectiveName>CRISPR Consortium</CollectiveName></Author>
				</AuthorList>
			</Article>
		</MedlineCitation>
		<PubmedData>
			<ArticleIdList>
				<ArticleId IdType="pubmed">12345678</ArticleId>
				<ArticleId IdType="pmc">PMC9999999</ArticleId>
			</ArticleIdList>
		</PubmedData>
	</PubmedArticle>
	<PubmedArticle>
		<MedlineCitation>
			<PMID>87654321</PMID>
			<Article>
				<Journal>
					<JournalIssue><PubDate><MedlineDate>2021 Jan-Feb</MedlineDate></PubDate></JournalIssue>
					<ISOAbbreviation>J Biol</ISOAbbreviation>
				</Journal>
				<ArticleTitle>Second paper</ArticleTitle>
			</Article>
		</MedlineCitation>
	</PubmedArticle>
</PubmedArticleSet>`

func newTestClient(serverURL string) *Client {
	return NewWithHTTPClient(Config{BaseURL: serverURL, APIKey: "ncbi-key"}, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     sourceName,
		Timeout:    5 * time.Second,
		RateLimit:  100,
		BurstSize:  100,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}))
}

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "ncbi-key", q.Get("api_key"))
		switch r.URL.Path {
		case "/esearch.fcgi":
			assert.Equal(t, "crispr", q.Get("term"))
			assert.Equal(t, "5", q.Get("retmax"))
			assert.Equal(t, "2021", q.Get("mindate"))
			assert.Equal(t, "2026", q.Get("maxdate"))
			_, _ = w.Write([]byte(esearchResponseXML))
		case "/efetch.fcgi":
			assert.Equal(t, "12345678,87654321", q.Get("id"))
			_, _ = w.Write([]byte(efetchResponseXML))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	papers, err := newTestClient(server.URL).Search(context.Background(), "crispr", 5,
		papersources.Filters{YearFrom: 2021, YearTo: 2026})
	require.NoError(t, err)
	require.Len(t, papers, 2)

	p := papers[0]
	assert.Equal(t, "CRISPR screening in human cells", p.Title)
	assert.Equal(t, "10.1038/s41591-023-0001", p.DOI)
	assert.Equal(t, "BACKGROUND: Gene editing. RESULTS: It works.", p.Abstract)
	assert.Equal(t, "12345678", p.ProviderID(domain.ProviderPubMed))
	assert.Equal(t, "PMC9999999", p.ProviderID(domain.ProviderEuropePMC))
	assert.True(t, p.OpenAccess)
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC9999999/pdf/", p.PDFURL)
	assert.Equal(t, "Nature Medicine", p.Venue)
	assert.Equal(t, 2023, p.PublicationYear)
	require.NotNil(t, p.PublicationDate)
	assert.Equal(t, time.March, p.PublicationDate.Month())

	require.Len(t, p.Authors, 2)
	assert.Equal(t, "Jennifer Doudna", p.Authors[0].Name)
	assert.Equal(t, "0000-0001-9161-999X", p.Authors[0].ORCID)
	assert.Equal(t, "UC Berkeley", p.Authors[0].Affiliation)
	assert.Equal(t, "CRISPR Consortium", p.Authors[1].Name)

	assert.Equal(t, 2021, papers[1].PublicationYear)
	assert.Equal(t, "J Biol", papers[1].Venue)
}

func TestClient_SearchPhraseNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/esearch.fcgi", r.URL.Path)
		_, _ = w.Write([]byte(esearchPhraseNotFoundXML))
	}))
	defer server.Close()

	papers, err := newTestClient(server.URL).Search(context.Background(), "nonexistent_term_xyz", 5, papersources.Filters{})
	require.NoError(t, err)
	assert.Empty(t, papers)
}

func TestClient_GetByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "0" {
			_, _ = w.Write([]byte(`<PubmedArticleSet></PubmedArticleSet>`))
			return
		}
		_, _ = w.Write([]byte(efetchResponseXML))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	p, err := client.GetByID(context.Background(), "12345678")
	require.NoError(t, err)
	assert.Equal(t, "12345678", p.ProviderID(domain.ProviderPubMed))

	_, err = client.GetByID(context.Background(), "0")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestParseMonth(t *testing.T) {
	assert.Equal(t, time.March, parseMonth("3"))
	assert.Equal(t, time.September, parseMonth("September"))
	assert.Equal(t, time.January, parseMonth(""))
	assert.Equal(t, time.January, parseMonth("Spring"))
}
