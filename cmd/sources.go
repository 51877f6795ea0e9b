package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/osintops/dragnet/internal/model"
	"github.com/osintops/dragnet/internal/search"
	"github.com/osintops/dragnet/internal/selector"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect the loaded source catalog",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources, ranked for a request when a jurisdiction is given",
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
		limit, _ := cmd.Flags().GetInt("limit")

		if jurisdiction != "" {
			ranked := env.Searcher.SelectSources(search.Request{
				InputType:      model.InputType(inputType),
				Jurisdiction:   jurisdiction,
				ThematicFilter: tags,
				MaxSources:     limit,
			})
			if len(ranked) == 0 {
				fmt.Fprintln(os.Stderr, "No sources matched.")
				return nil
			}
			formatRankedSources(os.Stdout, ranked)
			return nil
		}

		all := env.Registry.All()
		if len(all) == 0 {
			fmt.Fprintln(os.Stderr, "No sources loaded.")
			return nil
		}
		formatSourceTable(os.Stdout, all)
		return nil
	},
}

var sourcesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one source descriptor with its live reliability",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		src := env.Registry.ByID(args[0])
		if src == nil {
			return eris.Errorf("unknown source id: %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(src)
	},
}

func init() {
	sourcesListCmd.Flags().String("jurisdiction", "", "rank sources for this jurisdiction instead of listing all")
	sourcesListCmd.Flags().String("type", string(model.InputCompanyName), "input type used for ranking")
	sourcesListCmd.Flags().StringSlice("tag", nil, "thematic tags used for ranking")
	sourcesListCmd.Flags().Int("limit", 0, "cap the ranked list (zero: no cap)")

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesShowCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// formatRankedSources renders the selection preview for one request.
func formatRankedSources(out io.Writer, ranked []selector.ScoredSource) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tJURISDICTION\tTIER\tSCORE\tSUCCESS")
	fmt.Fprintln(w, "-\t--\t------------\t----\t-----\t-------")
	for i, sc := range ranked {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.3f\t%s\n",
			i+1,
			sc.Source.ID,
			sc.Source.Jurisdiction,
			sc.Source.AccessTier,
			sc.Score,
			successLabel(sc.Source),
		)
	}
	w.Flush()
}

// formatSourceTable renders the full catalog listing.
func formatSourceTable(out io.Writer, sources []*model.Source) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tJURISDICTION\tTYPE\tTIER\tTAGS")
	fmt.Fprintln(w, "--\t----\t------------\t----\t----\t----")
	for _, src := range sources {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			src.ID,
			truncate(src.Name, 32),
			src.Jurisdiction,
			src.InputType,
			src.AccessTier,
			truncate(strings.Join(src.ThematicTags, ","), 40),
		)
	}
	w.Flush()
}

// successLabel renders a source's observed success rate, or "-" before any
// fetch has been recorded.
func successLabel(src *model.Source) string {
	if src.Reliability == nil || !src.Reliability.HasHistory() {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", src.Reliability.SuccessRate*100)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
