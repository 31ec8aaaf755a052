// Package dedup resolves paper identity across providers and keeps the
// ordered set of unique papers for one search session.
package dedup

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Identity key namespaces.
const (
	keyPrefixDOI   = "doi:"
	keyPrefixTitle = "title:"
)

// doiPrefixes are resolver and scheme prefixes providers put in front of DOIs.
var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
	"doi:",
}

// arxivVersionRegex matches the trailing version marker of an arXiv id (v1, v12).
var arxivVersionRegex = regexp.MustCompile(`v\d+$`)

// IdentityKeys derives the identity key set for a paper. Two papers denote the
// same work iff their key sets intersect. The result is sorted so callers
// can compare sets directly; a paper with no DOI, no provider id and an empty
// title yields no keys.
func IdentityKeys(p *domain.Paper) []string {
	if p == nil {
		return nil
	}

	keys := make([]string, 0, 2+len(p.ProviderIDs))

	if doi := NormalizeDOI(p.DOI); doi != "" {
		keys = append(keys, keyPrefixDOI+doi)
	}

	for provider, id := range p.ProviderIDs {
		if nid := NormalizeProviderID(provider, id); nid != "" {
			keys = append(keys, string(provider)+":"+nid)
		}
	}

	if title := NormalizeTitle(p.Title); title != "" {
		keys = append(keys, keyPrefixTitle+title+"|"+Surname(p.FirstAuthor()))
	}

	sort.Strings(keys)
	return keys
}

// NormalizeDOI lowercases a DOI and strips resolver prefixes and whitespace.
func NormalizeDOI(doi string) string {
	doi = strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range doiPrefixes {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return strings.TrimSpace(doi)
}

// NormalizeProviderID canonicalises a provider-native id. arXiv ids lose their
// "arXiv:" scheme and version suffix so v1 and v2 of a preprint collapse.
func NormalizeProviderID(provider domain.Provider, id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return ""
	}
	switch provider {
	case domain.ProviderArXiv:
		id = strings.TrimPrefix(id, "arxiv:")
		id = arxivVersionRegex.ReplaceAllString(id, "")
	case domain.ProviderEuropePMC:
		id = strings.TrimPrefix(id, "pmc")
	case domain.ProviderOpenAlex:
		id = strings.TrimPrefix(id, "https://openalex.org/")
	}
	return id
}

// NormalizeTitle folds diacritics and case, turns every run of punctuation or
// whitespace into one space, and trims the result.
func NormalizeTitle(title string) string {
	title = strings.ToLower(foldDiacritics(title))

	var sb strings.Builder
	sb.Grow(len(title))
	pendingSpace := false
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			pendingSpace = false
			sb.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return sb.String()
}

// foldDiacritics strips combining marks after canonical decomposition, so
// "Müller" becomes "Muller".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
