package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/paper-search-service/internal/domain"
)

func TestFileName(t *testing.T) {
	withIDs := func(title, doi string, ids map[domain.Provider]string) *domain.Paper {
		return &domain.Paper{Title: title, DOI: doi, ProviderIDs: ids}
	}

	tests := []struct {
		name  string
		paper *domain.Paper
		want  string
	}{
		{
			name:  "doi wins over everything",
			paper: withIDs("T", "10.1000/abc:def", map[domain.Provider]string{domain.ProviderArXiv: "2301.00001"}),
			want:  "doi_10.1000_abc_def.pdf",
		},
		{
			name:  "arxiv id",
			paper: withIDs("T", "", map[domain.Provider]string{domain.ProviderArXiv: "arXiv:hep-th/9901001"}),
			want:  "arxiv_hep-th_9901001.pdf",
		},
		{
			name:  "arxiv id from abs url",
			paper: &domain.Paper{Title: "T", URL: "https://arxiv.org/abs/2301.00001v2"},
			want:  "arxiv_2301.00001v2.pdf",
		},
		{
			name:  "pubmed id",
			paper: withIDs("T", "", map[domain.Provider]string{domain.ProviderPubMed: "123456", domain.ProviderSemanticScholar: "abc"}),
			want:  "pmid_123456.pdf",
		},
		{
			name:  "semantic scholar id",
			paper: withIDs("T", "", map[domain.Provider]string{domain.ProviderSemanticScholar: "649def34"}),
			want:  "ss_649def34.pdf",
		},
		{
			name:  "title hash",
			paper: &domain.Paper{Title: "hello"},
			want:  "title_5d41402abc4b2a76b9719d911017c592.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.paper))
			assert.True(t, IsStableName(FileName(tt.paper)))
		})
	}

	t.Run("no identifiers gives a random name", func(t *testing.T) {
		a := FileName(&domain.Paper{})
		b := FileName(&domain.Paper{})
		assert.True(t, strings.HasPrefix(a, "unknown_"))
		assert.NotEqual(t, a, b)
		assert.False(t, IsStableName(a))
	})
}
