package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/osintops/dragnet/internal/model"
	"github.com/osintops/dragnet/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one federated search",
	Long: `Selects sources for the query and jurisdiction, checks the advisory
catalogs, fetches every selected source concurrently, extracts structured
records, and prints the merged, ranked answer.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		jurisdiction, _ := cmd.Flags().GetString("jurisdiction")
		inputType, _ := cmd.Flags().GetString("type")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		sourceIDs, _ := cmd.Flags().GetStringSlice("source")
		maxSources, _ := cmd.Flags().GetInt("max-sources")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		asJSON, _ := cmd.Flags().GetBool("json")

		if maxSources == 0 {
			maxSources = cfg.Select.MaxSources
		}

		resp, err := env.Searcher.Search(ctx, search.Request{
			Query:          args[0],
			InputType:      model.InputType(inputType),
			Jurisdiction:   jurisdiction,
			ThematicFilter: tags,
			SourceIDs:      sourceIDs,
			MaxSources:     maxSources,
			Timeout:        timeout,
		})
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		formatResponse(os.Stdout, resp)
		return nil
	},
}

func init() {
	searchCmd.Flags().String("jurisdiction", model.JurisdictionGlobal, "ISO country code scoping the search (e.g. HU, DE)")
	searchCmd.Flags().String("type", string(model.InputCompanyName), "input type: company_name, person_name, registration_id, address, free_keyword")
	searchCmd.Flags().StringSlice("tag", nil, "thematic tags narrowing source selection")
	searchCmd.Flags().StringSlice("source", nil, "query exactly these source ids, skipping selection")
	searchCmd.Flags().Int("max-sources", 0, "max sources to query (default from config)")
	searchCmd.Flags().Duration("timeout", 0, "overall deadline for the round, e.g. 30s (zero: per-source timeouts only)")
	searchCmd.Flags().Bool("json", false, "print the full response as JSON")
	rootCmd.AddCommand(searchCmd)
}

// formatResponse writes the human-readable rendering of a search response.
func formatResponse(out io.Writer, resp *model.SearchResponse) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Query:\t%s\n", resp.Query)
	fmt.Fprintf(w, "Jurisdiction:\t%s\n", resp.Jurisdiction)
	fmt.Fprintf(w, "Sources:\t%d queried, %d succeeded\n", resp.SourcesQueried, resp.SourcesSucceeded)
	fmt.Fprintf(w, "Results:\t%d\n", resp.TotalResults)
	fmt.Fprintf(w, "Latency:\t%.2fs\n", resp.TotalLatencySeconds)
	w.Flush()

	if adv := resp.Advisory; adv != nil && adv.DeadEndReason != "" {
		fmt.Fprintf(out, "\nAdvisory: %s\n", adv.DeadEndReason)
		for _, alt := range adv.Alternatives {
			fmt.Fprintf(out, "  alternative: %s (%s, %s confidence)\n",
				alt.Route.SourceRegistry, alt.Route.SourceJurisdiction, alt.Confidence)
		}
	}

	if len(resp.Results) == 0 {
		fmt.Fprintln(out, "\nNo results.")
	}
	for i, r := range resp.Results {
		fmt.Fprintf(out, "\n[%d] %s (match %.2f)\n", i+1, r.SourceID, r.MatchScore)
		for _, f := range r.Fields {
			fmt.Fprintf(out, "    %s: %s\n", f.Name, f.Value)
		}
	}

	if len(resp.Errors) > 0 {
		fmt.Fprintln(out, "\nErrors:")
		for _, e := range resp.Errors {
			id := e.SourceID
			if id == "" {
				id = "-"
			}
			fmt.Fprintf(out, "  %s %s: %s\n", id, e.Type, e.Message)
		}
	}
}
