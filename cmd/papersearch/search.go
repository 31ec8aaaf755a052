package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/helixir/paper-search-service/internal/app"
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run one search and print the content-verified papers",
	Long: `search runs the full pipeline once: multi-round provider fan-out,
deduplication, optional AI query refinement, metadata enrichment, ranking and
content enforcement. Every printed paper has a stored full-text copy.`,
	Example: `  papersearch search --terms "graph neural networks" --terms "message passing" --size 5
  papersearch search --terms crispr --domain biology --json`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSlice("terms", nil, "query terms (repeat or comma-separate)")
	searchCmd.Flags().String("domain", domain.DefaultSearchDomain, "research domain used as a query hint")
	searchCmd.Flags().Int("size", domain.DefaultBatchSize, "number of papers wanted")
	searchCmd.Flags().String("project", "cli", "project id recorded with the run")
	searchCmd.Flags().Bool("json", false, "print the full response as JSON")
	searchCmd.Flags().Bool("in-memory", false, "keep fetched content in memory instead of the configured store")
	searchCmd.Flags().Bool("events", false, "publish the search-completed event when Kafka is configured")
	_ = searchCmd.MarkFlagRequired("terms")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)

	if inMemory, _ := cmd.Flags().GetBool("in-memory"); inMemory {
		cfg.Storage.InMemory = true
	}
	withEvents, _ := cmd.Flags().GetBool("events")

	terms, _ := cmd.Flags().GetStringSlice("terms")
	researchDomain, _ := cmd.Flags().GetString("domain")
	size, _ := cmd.Flags().GetInt("size")
	project, _ := cmd.Flags().GetString("project")

	ctx := cmd.Context()
	metrics := observability.NewMetrics(cfg.Metrics.Namespace)
	application, err := app.New(ctx, cfg, logger, metrics, app.Options{DisableEvents: !withEvents})
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to release resources")
		}
	}()

	req := &domain.SearchRequest{
		ProjectID:     project,
		QueryTerms:    terms,
		Domain:        researchDomain,
		BatchSize:     size,
		CorrelationID: uuid.NewString(),
	}
	resp, err := application.Service.Execute(ctx, req, domain.TriggerCLI)
	if err != nil {
		return err
	}
	if err := application.Events.PublishSearchCompleted(ctx, resp); err != nil {
		logger.Warn().Err(err).Msg("failed to emit search event")
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResponse(cmd.OutOrStdout(), resp)
	if resp.Status == domain.SearchStatusFailed {
		return fmt.Errorf("search failed: %s", resp.Error)
	}
	return nil
}

func printResponse(w io.Writer, resp *domain.SearchResponse) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tYEAR\tSOURCE\tTITLE\tCONTENT")
	for i, p := range resp.Papers {
		year := "-"
		if p.PublicationYear > 0 {
			year = fmt.Sprint(p.PublicationYear)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, year, p.Source.DisplayName(), truncate(p.Title, 80), p.ContentRef)
	}
	_ = tw.Flush()

	s := resp.Stats
	fmt.Fprintf(w, "\n%s: %d papers, %d rounds, %d queries, %d candidates, %d content kept, %d discarded\n",
		resp.Status, len(resp.Papers), s.RoundsExecuted, s.QueriesExecuted, s.CandidatesCollected, s.ContentKept, s.ContentDiscarded)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
