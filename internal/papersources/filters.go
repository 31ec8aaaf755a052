package papersources

import (
	"strings"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
)

// DefaultRecentYears is the publication window applied when none is configured.
const DefaultRecentYears = 5

// arxivCategories maps domain phrases to arXiv subject categories. Entries are
// matched in order against the lowercased domain, so specific phrases come
// before the broad ones that contain them.
var arxivCategories = []struct {
	phrase   string
	category string
}{
	{"machine learning", "cs.LG"},
	{"artificial intelligence", "cs.AI"},
	{"computer vision", "cs.CV"},
	{"natural language processing", "cs.CL"},
	{"cryptography", "cs.CR"},
	{"databases", "cs.DB"},
	{"distributed computing", "cs.DC"},
	{"information retrieval", "cs.IR"},
	{"robotics", "cs.RO"},
	{"software engineering", "cs.SE"},
	{"computer science", "cs.*"},
	{"number theory", "math.NT"},
	{"combinatorics", "math.CO"},
	{"optimization", "math.OC"},
	{"probability", "math.PR"},
	{"mathematics", "math.*"},
	{"astrophysics", "astro-ph.*"},
	{"condensed matter", "cond-mat.*"},
	{"quantum", "quant-ph"},
	{"physics", "physics.*"},
	{"statistics", "stat.*"},
	{"genomics", "q-bio.GN"},
	{"quantitative biology", "q-bio.*"},
	{"economics", "econ.*"},
	{"signal processing", "eess.SP"},
	{"electrical engineering", "eess.*"},
}

// arxivFallbacks maps broad domain words to top-level arXiv archives.
var arxivFallbacks = []struct {
	words    []string
	category string
}{
	{[]string{"computer", "computing", "software", "algorithm"}, "cs.*"},
	{[]string{"math"}, "math.*"},
	{[]string{"physic"}, "physics.*"},
	{[]string{"biolog"}, "q-bio.*"},
}

// openAlexFields maps domain labels to OpenAlex field slugs.
var openAlexFields = map[string]string{
	"computer science":      "computer-science",
	"biology":               "biology",
	"medicine":              "medicine",
	"physics":               "physics",
	"chemistry":             "chemistry",
	"mathematics":           "mathematics",
	"engineering":           "engineering",
	"psychology":            "psychology",
	"economics":             "economics",
	"business":              "business",
	"environmental science": "environmental-science",
	"materials science":     "materials-science",
	"social science":        "sociology",
}

// coreSubjects lists the domain labels CORE accepts verbatim as subjects.
var coreSubjects = map[string]bool{
	"computer science": true, "biology": true, "medicine": true, "physics": true,
	"chemistry": true, "mathematics": true, "engineering": true, "psychology": true,
	"economics": true, "environmental science": true, "materials science": true,
	"business": true, "education": true, "history": true, "philosophy": true,
}

// FilterBuilder derives provider-specific filters from the research domain.
type FilterBuilder struct {
	recentYears int
	now         func() time.Time
}

// NewFilterBuilder creates a builder restricting results to the last
// recentYears years.
func NewFilterBuilder(recentYears int) *FilterBuilder {
	if recentYears <= 0 {
		recentYears = DefaultRecentYears
	}
	return &FilterBuilder{recentYears: recentYears, now: time.Now}
}

// Build returns the filters for one provider call. The query is accepted for
// providers that tune filters to the query text; none currently do.
func (b *FilterBuilder) Build(provider domain.Provider, researchDomain, query string) Filters {
	year := b.now().Year()
	f := Filters{
		YearFrom: year - b.recentYears,
		YearTo:   year,
	}

	d := strings.ToLower(strings.TrimSpace(researchDomain))
	if d == "" {
		return f
	}

	switch provider {
	case domain.ProviderArXiv:
		f.Category = arxivCategory(d)
	case domain.ProviderOpenAlex:
		f.Field = openAlexFields[d]
		f.OpenAccessOnly = true
		f.Sort = "cited_by_count:desc"
	case domain.ProviderCORE:
		if coreSubjects[d] {
			f.Category = researchDomain
		}
		f.FullTextOnly = true
		f.Sort = "relevance"
	case domain.ProviderUnpaywall, domain.ProviderDOAJ, domain.ProviderCrossref:
		f.OpenAccessOnly = true
	}
	return f
}

func arxivCategory(d string) string {
	for _, c := range arxivCategories {
		if strings.Contains(d, c.phrase) {
			return c.category
		}
	}
	for _, fb := range arxivFallbacks {
		for _, w := range fb.words {
			if strings.Contains(d, w) {
				return fb.category
			}
		}
	}
	return ""
}
