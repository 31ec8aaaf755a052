package search

import (
	"sort"
	"strings"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Score counts occurrences of each term in the lowercased title and abstract.
func Score(p *domain.Paper, terms []string) int {
	if p == nil {
		return 0
	}
	text := strings.ToLower(p.Title + " " + p.Abstract)
	score := 0
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		score += strings.Count(text, t)
	}
	return score
}

// Rank returns papers ordered by descending Score. Ties keep input order.
// The input slice is not modified.
func Rank(papers []*domain.Paper, terms []string) []*domain.Paper {
	type scored struct {
		paper *domain.Paper
		score int
	}
	items := make([]scored, len(papers))
	for i, p := range papers {
		items[i] = scored{paper: p, score: Score(p, terms)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	out := make([]*domain.Paper, len(items))
	for i, it := range items {
		out[i] = it.paper
	}
	return out
}
