package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/paper-search-service/internal/domain"
)

func TestScore(t *testing.T) {
	p := &domain.Paper{Title: "Graph Neural Networks", Abstract: "We study graph models on GRAPH data."}

	assert.Equal(t, 3, Score(p, []string{"graph"}))
	assert.Equal(t, 4, Score(p, []string{"Graph", "neural"}))
	assert.Equal(t, 0, Score(p, []string{"", "  "}))
	assert.Equal(t, 0, Score(nil, []string{"graph"}))
}

func TestRank(t *testing.T) {
	t.Run("orders by descending score", func(t *testing.T) {
		low := &domain.Paper{Title: "a"}
		high := &domain.Paper{Title: "transformer transformer"}
		mid := &domain.Paper{Title: "transformer"}

		got := Rank([]*domain.Paper{low, high, mid}, []string{"transformer"})
		assert.Equal(t, []*domain.Paper{high, mid, low}, got)
	})

	t.Run("equal scores keep discovery order", func(t *testing.T) {
		papers := []*domain.Paper{
			{Title: "first"}, {Title: "second"}, {Title: "third"}, {Title: "fourth"},
		}
		got := Rank(papers, []string{"unmatched"})
		assert.Equal(t, papers, got)
	})

	t.Run("does not modify input", func(t *testing.T) {
		a := &domain.Paper{Title: "x"}
		b := &domain.Paper{Title: "y y"}
		in := []*domain.Paper{a, b}

		_ = Rank(in, []string{"y"})
		assert.Same(t, a, in[0])
		assert.Same(t, b, in[1])
	})
}
