package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/indicators-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "indicators-cli",
	Short: "Spatial urban indicator pipeline",
	Long:  "Aggregates sample point measurements onto hexagonal grids per study region, standardises them across cities and writes GeoJSON, XLSX and PostGIS outputs.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
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
