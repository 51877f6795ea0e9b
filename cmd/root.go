package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dragnet",
	Short: "Federated search across public registries",
	Long: `dragnet routes investigative queries to the right public sources,
fetches them concurrently with a render fallback for script-heavy sites,
extracts structured records, and merges everything into one ranked answer.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
