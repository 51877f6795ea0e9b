package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/osintops/dragnet/internal/model"
)

var adviseCmd = &cobra.Command{
	Use:   "advise <query>",
	Short: "Run the pre-search advisory without searching",
	Long: `Checks the query and jurisdiction against the dead-end and arbitrage
catalogs and reports whether a search is worth running, with alternative
routes when the direct path is known to be closed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jurisdiction, _ := cmd.Flags().GetString("jurisdiction")
		asJSON, _ := cmd.Flags().GetBool("json")

		adv := loadAdvisor().AdviseBeforeAction(args[0], jurisdiction)

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(adv)
		}

		formatAdvisory(os.Stdout, adv)
		return nil
	},
}

func init() {
	adviseCmd.Flags().String("jurisdiction", model.JurisdictionGlobal, "ISO country code the query targets")
	adviseCmd.Flags().Bool("json", false, "print the advisory as JSON")
	rootCmd.AddCommand(adviseCmd)
}

func formatAdvisory(out io.Writer, adv *model.Advisory) {
	proceed := "yes"
	if !adv.Proceed {
		proceed = "no"
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Proceed:\t%s\n", proceed)
	fmt.Fprintf(w, "Estimated success:\t%s\n", adv.EstimatedSuccess)
	if adv.DeadEndReason != "" {
		fmt.Fprintf(w, "Dead end:\t%s\n", adv.DeadEndReason)
	}
	w.Flush()

	if len(adv.Alternatives) == 0 {
		return
	}

	fmt.Fprintln(out, "\nAlternatives:")
	aw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(aw, "REGISTRY\tJURISDICTION\tCONFIDENCE\tDISCLOSES")
	for _, alt := range adv.Alternatives {
		fmt.Fprintf(aw, "%s\t%s\t%s\t%s\n",
			alt.Route.SourceRegistry,
			alt.Route.SourceJurisdiction,
			alt.Confidence,
			strings.Join(alt.Route.InfoTypes, ","),
		)
	}
	aw.Flush()
}
