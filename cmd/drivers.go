package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/ingest"
)

var loadDriversFile string

var loadDriversCmd = &cobra.Command{
	Use:   "load-drivers",
	Short: "Load the canonical driver snapshot from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		im := ingest.NewImporter(st, cfg.Ingest.BatchSize)
		sum, err := im.LoadDrivers(ctx, loadDriversFile)
		if err != nil {
			return eris.Wrap(err, "load drivers")
		}

		zap.L().Info("driver snapshot loaded",
			zap.String("file", loadDriversFile),
			zap.Int("rows", sum.Rows),
			zap.Int64("imported", sum.Imported),
			zap.Int("skipped", sum.Skipped),
		)
		return nil
	},
}

func init() {
	loadDriversCmd.Flags().StringVar(&loadDriversFile, "file", "", "path to driver extract (required)")
	_ = loadDriversCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(loadDriversCmd)
}
