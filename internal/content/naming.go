package content

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/helixir/paper-search-service/internal/domain"
)

var arxivAbsPattern = regexp.MustCompile(`arxiv\.org/abs/([^/?#]+)`)

var unsafeChars = strings.NewReplacer("/", "_", ":", "_", " ", "_")

// FileName derives the storage key for a paper's full text. Identifiers are
// tried in the order DOI, arXiv, PubMed, Semantic Scholar, then a hash of the
// title. A paper with none of these gets a random name and can never be
// matched by ExistingReference.
func FileName(p *domain.Paper) string {
	if doi := strings.TrimSpace(p.DOI); doi != "" {
		return "doi_" + unsafeChars.Replace(doi) + ".pdf"
	}

	if id := arxivID(p); id != "" {
		return "arxiv_" + unsafeChars.Replace(id) + ".pdf"
	}

	if pmid := strings.TrimSpace(p.ProviderID(domain.ProviderPubMed)); pmid != "" {
		return "pmid_" + pmid + ".pdf"
	}

	if s2 := strings.TrimSpace(p.ProviderID(domain.ProviderSemanticScholar)); s2 != "" {
		return "ss_" + unsafeChars.Replace(s2) + ".pdf"
	}

	if title := strings.TrimSpace(p.Title); title != "" {
		sum := md5.Sum([]byte(p.Title))
		return "title_" + hex.EncodeToString(sum[:]) + ".pdf"
	}

	return "unknown_" + strings.ReplaceAll(uuid.NewString(), "-", "") + ".pdf"
}

// IsStableName reports whether name was derived from the paper rather than
// generated at random.
func IsStableName(name string) bool {
	return !strings.HasPrefix(name, "unknown_")
}

func arxivID(p *domain.Paper) string {
	id := strings.TrimSpace(p.ProviderID(domain.ProviderArXiv))
	if id == "" {
		if m := arxivAbsPattern.FindStringSubmatch(p.URL); m != nil {
			id = m[1]
		}
	}
	id = strings.TrimPrefix(id, "arXiv:")
	return strings.TrimPrefix(id, "arxiv:")
}
