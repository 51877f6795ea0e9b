package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/osintops/dragnet/internal/advisor"
	"github.com/osintops/dragnet/internal/registry"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate the source and intel catalogs",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Dry-run load of every catalog, reporting problems",
	Long: `Loads the source catalog and the intel catalogs exactly as the
search commands would and reports counts, duplicate ids, and sources
that can never be selected. Exits non-zero when any catalog fails to
load.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateCatalogs(os.Stdout)
	},
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
	rootCmd.AddCommand(catalogCmd)
}

func validateCatalogs(out io.Writer) error {
	ok := true

	reg, err := registry.LoadPath(cfg.Catalog.SourcesPath)
	if err != nil {
		fmt.Fprintf(out, "sources: FAIL: %v\n", err)
		ok = false
	} else {
		executable := 0
		for _, src := range reg.All() {
			if src.Executable() {
				executable++
			}
		}
		fmt.Fprintf(out, "sources: %d loaded, %d executable, %d jurisdictions\n",
			reg.Len(), executable, len(reg.Jurisdictions()))
		for _, src := range reg.All() {
			if !src.Executable() {
				fmt.Fprintf(out, "  warn: %s has no url_template and will never be fetched\n", src.ID)
			}
		}
	}

	if deadEnds, err := advisor.LoadDeadEnds(cfg.Catalog.DeadEndsPath); err != nil {
		fmt.Fprintf(out, "dead_ends: FAIL: %v\n", err)
		ok = false
	} else {
		fmt.Fprintf(out, "dead_ends: %d entries\n", len(deadEnds))
	}

	if routes, err := advisor.LoadRoutes(cfg.Catalog.ArbitragePath); err != nil {
		fmt.Fprintf(out, "arbitrage: FAIL: %v\n", err)
		ok = false
	} else {
		fmt.Fprintf(out, "arbitrage: %d routes\n", len(routes))
	}

	if chains, err := advisor.LoadChains(cfg.Catalog.ChainsPath); err != nil {
		fmt.Fprintf(out, "chains: FAIL: %v\n", err)
		ok = false
	} else {
		fmt.Fprintf(out, "chains: %d chains\n", len(chains))
	}

	if !ok {
		return eris.New("catalog validation failed")
	}
	return nil
}
