package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/enterprise-data-agent/server/internal/agent/data"
)

var (
	searchMode       string
	deleteByQuestion bool
)

// queriesCmd manages the cached query index
var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Manage validated cached queries",
}

var queriesLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Embed and index the cached queries of a YAML file",
	Long: `Loads question/query pairs from a YAML file into the cached query index.

The file is either a list of entries or a document with a "queries" list:

  queries:
    - question: How many orders were placed last month?
      query: SELECT COUNT(*) FROM orders WHERE ...
      reasoning: Counts orders in the previous calendar month.

Reloading the same file updates entries in place.`,
	Args: cobra.ExactArgs(1),
	RunE: runQueriesLoad,
}

var queriesSearchCmd = &cobra.Command{
	Use:   "search <question>",
	Short: "Search the cached query index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQueriesSearch,
}

var queriesDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Remove cached queries from the index",
	Long: `Removes cached queries by id. With --question the arguments are
questions and the ids are derived the same way "queries load" derives them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQueriesDelete,
}

func init() {
	queriesDeleteCmd.Flags().BoolVar(&deleteByQuestion, "question", false, "Treat arguments as questions")
	queriesSearchCmd.Flags().StringVar(&searchMode, "mode", data.ModeHybrid, "Search mode: hybrid, vector or keyword")

	queriesCmd.AddCommand(queriesLoadCmd)
	queriesCmd.AddCommand(queriesSearchCmd)
	queriesCmd.AddCommand(queriesDeleteCmd)
}

func runQueriesLoad(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	if _, ok := rt.cachedQueryIndex().(*data.MemoryIndex); ok {
		return fmt.Errorf("the memory index is not persistent; set QUERIES_SEED_FILE instead")
	}
	searcher, err := rt.cachedQuerySearcher(ctx)
	if err != nil {
		return err
	}
	emb, err := rt.embedder(ctx)
	if err != nil {
		return err
	}
	n, err := loadSeed(ctx, searcher, emb.ForDocuments(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d cached queries into %s\n", n, indexName(rt.cachedQueryIndex()))
	return nil
}

func runQueriesDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	ids := make([]string, 0, len(args))
	for _, a := range args {
		if deleteByQuestion {
			a = data.QueryID(a)
		}
		ids = append(ids, a)
	}
	idx := rt.cachedQueryIndex()
	if err := idx.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete cached queries: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d cached queries from %s\n", len(ids), indexName(idx))
	return nil
}

func indexName(idx data.Index) string {
	if q, ok := idx.(*data.QdrantIndex); ok {
		return "qdrant collection " + q.Collection()
	}
	return "memory index"
}

func runQueriesSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	searcher, err := rt.cachedQuerySearcher(ctx)
	if err != nil {
		return err
	}
	matches, err := searcher.Search(ctx, strings.Join(args, " "), searchMode)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintln(out, data.NoMatchesMessage)
		return nil
	}
	threshold := rt.cfg.Search.ConfidenceThreshold
	for i, m := range matches {
		mark := " "
		if m.Score >= threshold {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %d. [%.3f] %s\n", mark, i+1, m.Score, m.Question)
		fmt.Fprintf(out, "     %s\n", m.Query)
	}
	fmt.Fprintf(out, "\n* meets the confidence threshold %.2f\n", threshold)
	return nil
}
