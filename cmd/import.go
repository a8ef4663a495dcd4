package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/ingest"
)

var (
	importFile   string
	importSource string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an external extract (CSV or XLSX) for one source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		src, err := parseSource(importSource)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		im := ingest.NewImporter(st, cfg.Ingest.BatchSize)
		sum, err := im.ImportRecords(ctx, importFile, src)
		if err != nil {
			return eris.Wrap(err, "import extract")
		}

		zap.L().Info("import complete",
			zap.String("source", string(src)),
			zap.String("file", importFile),
			zap.Int("rows", sum.Rows),
			zap.Int64("imported", sum.Imported),
			zap.Int("skipped", sum.Skipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to extract file (required)")
	importCmd.Flags().StringVar(&importSource, "source", "", "extract source: lead, field_agent_registration, ledger_transaction (required)")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(importCmd)
}
