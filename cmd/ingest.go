package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Consolidate stored responses into the entity table",
	Long: `Walks search responses recorded since the last checkpoint, groups
their results by identity and jurisdiction, and upserts consolidated
entities. Safe to re-run; the checkpoint makes each run incremental.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		batchSize, _ := cmd.Flags().GetInt("batch-size")
		if batchSize == 0 {
			batchSize = cfg.Ingest.BatchSize
		}

		stats, err := ingest.New(st, batchSize).Run(ctx)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		// Ingest doubles as the maintenance pass over the page cache.
		if n, err := st.DeleteExpiredPages(ctx); err != nil {
			zap.L().Warn("ingest: cache sweep failed", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("ingest: expired cache pages removed", zap.Int("count", n))
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Responses processed:\t%d\n", stats.Responses)
		fmt.Fprintf(w, "Batches:\t%d\n", stats.Batches)
		fmt.Fprintf(w, "Entity rows written:\t%d\n", stats.Entities)
		w.Flush()

		return nil
	},
}

func init() {
	ingestCmd.Flags().Int("batch-size", 0, "responses per batch (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
