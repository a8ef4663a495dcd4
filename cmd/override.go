package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	overrideSource string
	overrideID     string
)

var clearOverrideCmd = &cobra.Command{
	Use:   "clear-override",
	Short: "Clear a manual match so the next run re-matches the record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		src, err := parseSource(overrideSource)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.ClearOverride(ctx, src, overrideID); err != nil {
			return eris.Wrap(err, "clear override")
		}

		zap.L().Info("manual override cleared",
			zap.String("source", string(src)),
			zap.String("external_id", overrideID),
		)
		return nil
	},
}

var deleteResultCmd = &cobra.Command{
	Use:   "delete-result",
	Short: "Delete one side of a reconciliation conflict",
	Long:  "Removes a single match result so the remaining sources' claims stand. The external record itself is kept and will be re-matched on the next run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		src, err := parseSource(overrideSource)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteMatchResult(ctx, src, overrideID); err != nil {
			return eris.Wrap(err, "delete result")
		}

		zap.L().Info("match result deleted",
			zap.String("source", string(src)),
			zap.String("external_id", overrideID),
		)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{clearOverrideCmd, deleteResultCmd} {
		c.Flags().StringVar(&overrideSource, "source", "", "record source (required)")
		c.Flags().StringVar(&overrideID, "id", "", "external record id (required)")
		_ = c.MarkFlagRequired("source")
		_ = c.MarkFlagRequired("id")
		rootCmd.AddCommand(c)
	}
}
