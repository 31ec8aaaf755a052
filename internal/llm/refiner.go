package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/search"
)

const (
	refineOperation = "refine_queries"

	// promptPaperLimit caps how many sample papers are described in the prompt.
	promptPaperLimit = 5
	// abstractLimit truncates abstracts in the prompt, in runes.
	abstractLimit = 300

	minQueryWords = 3
	maxQueryWords = 10
	minQueryChars = 11
)

// QueryRefiner asks a chat model for follow-up search queries based on the
// papers a round has found so far.
type QueryRefiner struct {
	client  *ChatClient
	logger  zerolog.Logger
	metrics *observability.Metrics
}

var _ search.Refiner = (*QueryRefiner)(nil)

// NewQueryRefiner creates a QueryRefiner. metrics may be nil.
func NewQueryRefiner(client *ChatClient, logger zerolog.Logger, metrics *observability.Metrics) *QueryRefiner {
	return &QueryRefiner{
		client:  client,
		logger:  logger.With().Str("component", "query_refiner").Logger(),
		metrics: metrics,
	}
}

// Ready reports whether the refiner can be called.
func (r *QueryRefiner) Ready() bool {
	return r != nil && r.client != nil && r.client.Configured()
}

// Status describes the refiner for the stats endpoint.
func (r *QueryRefiner) Status() map[string]any {
	status := map[string]any{"ready": r.Ready()}
	if r != nil && r.client != nil {
		status["model"] = r.client.Model()
	}
	return status
}

// RefineQueries returns at most input.MaxQueries new queries. It returns no
// queries and no error when there is nothing to refine from.
func (r *QueryRefiner) RefineQueries(ctx context.Context, input search.RefinementInput) ([]string, error) {
	if !r.Ready() || len(input.SamplePapers) == 0 || input.MaxQueries <= 0 {
		return nil, nil
	}

	system, user := BuildRefinementPrompt(input)

	start := time.Now()
	completion, err := r.client.Complete(ctx, system, user)
	if err != nil {
		r.metrics.RecordLLMRequestFailed(refineOperation, r.client.Model(), errorType(err))
		return nil, fmt.Errorf("query refinement: %w", err)
	}
	r.metrics.RecordLLMRequest(refineOperation, completion.Model, time.Since(start).Seconds(),
		completion.InputTokens, completion.OutputTokens)

	queries := ParseQueries(completion.Content, input.OriginalTerms, input.MaxQueries)
	if len(queries) == 0 {
		r.metrics.RecordLLMRequestFailed(refineOperation, completion.Model, errorType(ErrNoQueries))
		return nil, ErrNoQueries
	}

	r.logger.Info().
		Strs("queries", queries).
		Int("input_tokens", completion.InputTokens).
		Int("output_tokens", completion.OutputTokens).
		Msg("generated refined queries")
	return queries, nil
}

type refinementResponse struct {
	Queries []string `json:"queries"`
}

// BuildRefinementPrompt returns the system and user prompts for refinement.
func BuildRefinementPrompt(input search.RefinementInput) (systemPrompt, userPrompt string) {
	var sb strings.Builder
	sb.WriteString("You are an expert research assistant helping to find relevant academic papers. ")
	sb.WriteString("You propose new search queries for academic databases such as arXiv, ")
	sb.WriteString("OpenAlex, PubMed and Semantic Scholar.\n\n")
	sb.WriteString("You MUST respond with valid JSON in exactly this format:\n")
	sb.WriteString(`{"queries": ["first query", "second query"]}`)
	sb.WriteString("\n\nGuidelines:\n")
	sb.WriteString("1. Use different terminology and synonyms from the original terms.\n")
	sb.WriteString("2. Focus on specific aspects, methods or subtopics mentioned in the papers.\n")
	sb.WriteString("3. Consider related concepts and emerging trends in the field.\n")
	sb.WriteString("4. Keep queries concise (3-8 words each).\n")
	sb.WriteString("5. Do not repeat the exact original terms.\n")
	systemPrompt = sb.String()

	sb.Reset()
	fmt.Fprintf(&sb, "Original search terms: %s\n", strings.Join(input.OriginalTerms, ", "))
	if input.Domain != "" {
		fmt.Fprintf(&sb, "Research domain: %s\n", input.Domain)
	}

	papers := input.SamplePapers
	if len(papers) > promptPaperLimit {
		papers = papers[:promptPaperLimit]
	}
	fmt.Fprintf(&sb, "\nRelevant papers found so far:\n\n")
	for i, p := range papers {
		if p == nil {
			continue
		}
		sb.WriteString(describePaper(i+1, p))
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Generate %d refined search queries that could discover MORE relevant papers.", input.MaxQueries)
	userPrompt = sb.String()

	return systemPrompt, userPrompt
}

func describePaper(n int, p *domain.Paper) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d. %s\n", n, strings.TrimSpace(p.Title))

	if abstract := strings.TrimSpace(p.Abstract); abstract != "" {
		if utf8.RuneCountInString(abstract) > abstractLimit {
			abstract = string([]rune(abstract)[:abstractLimit]) + "..."
		}
		fmt.Fprintf(&sb, "   Abstract: %s\n", abstract)
	}

	if len(p.Authors) > 0 {
		names := make([]string, 0, 3)
		for _, a := range p.Authors {
			if len(names) == 3 {
				break
			}
			names = append(names, a.Name)
		}
		fmt.Fprintf(&sb, "   Authors: %s\n", strings.Join(names, ", "))
	}

	if p.PublicationYear > 0 {
		fmt.Fprintf(&sb, "   Year: %d\n", p.PublicationYear)
	}
	return sb.String()
}

// ParseQueries extracts queries from a model reply. JSON replies are
// preferred; otherwise each line is treated as a candidate. Candidates that
// are too short, too long, or equal to the original query are dropped.
func ParseQueries(reply string, originalTerms []string, maxQueries int) []string {
	var candidates []string

	var parsed refinementResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply)), &parsed); err == nil && len(parsed.Queries) > 0 {
		candidates = parsed.Queries
	} else {
		candidates = strings.Split(reply, "\n")
	}

	original := strings.ToLower(strings.Join(originalTerms, " "))
	seen := make(map[string]struct{})
	out := make([]string, 0, maxQueries)
	for _, c := range candidates {
		q := cleanQuery(c)
		words := len(strings.Fields(q))
		if words < minQueryWords || words > maxQueryWords || len(q) < minQueryChars {
			continue
		}
		key := strings.ToLower(q)
		if key == original {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
		if len(out) == maxQueries {
			break
		}
	}
	return out
}

// cleanQuery strips list markers and quotes from a candidate line.
func cleanQuery(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(s, "-"), strings.HasPrefix(s, "*"), strings.HasPrefix(s, "•"):
		s = strings.TrimSpace(s[len(string([]rune(s)[0])):])
	default:
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
			s = strings.TrimSpace(s[i+1:])
		}
	}

	s = strings.Trim(s, "\"'`,")
	return strings.Join(strings.Fields(s), " ")
}
