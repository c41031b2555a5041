package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/indicators-cli/internal/config"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate sample points onto one study region's hex grid",
	Example: `  indicators-cli aggregate --region Odense --hexes odense_hex.shp --points odense_points.csv --out output
  indicators-cli aggregate --region Odense --hexes https://example.org/odense.zip#hex.shp --points odense_points.geojson`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		region := config.Region{}
		region.Name, _ = cmd.Flags().GetString("region")
		region.Hexes, _ = cmd.Flags().GetString("hexes")
		region.Points, _ = cmd.Flags().GetString("points")
		if region.Name == "" || region.Hexes == "" || region.Points == "" {
			return eris.New("aggregate: --region, --hexes and --points are required")
		}
		applyOutputFlags(cmd)

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(ctx, []config.Region{region})
		if err != nil {
			return eris.Wrapf(err, "aggregate %s", region.Name)
		}
		printResult(res)
		return nil
	},
}

func init() {
	aggregateCmd.Flags().String("region", "", "study region name")
	aggregateCmd.Flags().String("hexes", "", "hex grid: local path, http(s) or ftp URL, optionally a .zip")
	aggregateCmd.Flags().String("points", "", "sample points: local path, http(s) or ftp URL, optionally a .zip")
	addOutputFlags(aggregateCmd)
	rootCmd.AddCommand(aggregateCmd)
}
