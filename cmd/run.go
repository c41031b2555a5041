package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/indicators-cli/internal/config"
	"github.com/sells-group/indicators-cli/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the indicator pipeline for every study region in a file",
	Long:  "Reads a YAML list of study regions (name, hexes, points), aggregates each region, computes cross-city z-scores and city rollups, then writes the configured outputs.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		regionsPath, _ := cmd.Flags().GetString("regions")
		regions, err := config.LoadRegions(regionsPath)
		if err != nil {
			return err
		}
		applyOutputFlags(cmd)

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(ctx, regions)
		if err != nil {
			return eris.Wrap(err, "run")
		}
		printResult(res)
		return nil
	},
}

func init() {
	runCmd.Flags().String("regions", "regions.yaml", "YAML file listing study regions")
	addOutputFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

// addOutputFlags registers the flags that override output settings.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("out", "", "GeoJSON output directory (default from config)")
	cmd.Flags().String("xlsx", "", "XLSX workbook path (default from config)")
	cmd.Flags().Bool("postgis", false, "also write layers to PostGIS")
	cmd.Flags().Int("concurrency", 0, "regions processed in parallel (default from config)")
}

func applyOutputFlags(cmd *cobra.Command) {
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		cfg.Output.Dir = out
	}
	if x, _ := cmd.Flags().GetString("xlsx"); x != "" {
		cfg.Output.XLSX = x
	}
	if cmd.Flags().Changed("postgis") {
		cfg.Output.PostGIS, _ = cmd.Flags().GetBool("postgis")
	}
	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		cfg.Pipeline.Concurrency = n
	}
}

func printResult(res *pipeline.Result) {
	for _, r := range res.Regions {
		fmt.Fprintf(os.Stdout, "%-30s %6d hexes  %d columns\n", r.Region, r.Layer.Len(), len(r.Layer.Columns))
	}
	if len(res.Cities) > 0 {
		fmt.Fprintf(os.Stdout, "%d city summaries\n", len(res.Cities))
	}
	for _, f := range res.Files {
		fmt.Fprintln(os.Stdout, "wrote", f)
	}
}
