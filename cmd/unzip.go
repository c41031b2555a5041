package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/indicators-cli/internal/fetcher"
)

var unzipCmd = &cobra.Command{
	Use:   "unzip <dir>",
	Short: "Extract every ZIP archive in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, _ := cmd.Flags().GetString("dest")
		if dest == "" {
			dest = args[0]
		}
		workers, _ := cmd.Flags().GetInt("workers")

		files, err := fetcher.ExtractAll(cmd.Context(), args[0], dest, workers)
		if err != nil {
			return eris.Wrap(err, "unzip")
		}

		zap.L().Info("unzip complete", zap.String("dir", args[0]), zap.Int("files", len(files)))
		for _, f := range files {
			fmt.Fprintln(os.Stdout, f)
		}
		return nil
	},
}

func init() {
	unzipCmd.Flags().String("dest", "", "extraction directory (default: the source directory)")
	unzipCmd.Flags().Int("workers", 4, "archives extracted in parallel")
	rootCmd.AddCommand(unzipCmd)
}
