package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	assignSource string
	assignID     string
	assignDriver string
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Manually pin an external record to a driver",
	Long:  "Bypasses scoring: sets the driver with score 1.0 and marks the result manual so automatic re-matching never overwrites it.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		src, err := parseSource(assignSource)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SetManualMatch(ctx, src, assignID, assignDriver); err != nil {
			return eris.Wrap(err, "assign")
		}

		zap.L().Info("manual match assigned",
			zap.String("source", string(src)),
			zap.String("external_id", assignID),
			zap.String("driver_id", assignDriver),
		)
		return nil
	},
}

func init() {
	assignCmd.Flags().StringVar(&assignSource, "source", "", "record source (required)")
	assignCmd.Flags().StringVar(&assignID, "id", "", "external record id (required)")
	assignCmd.Flags().StringVar(&assignDriver, "driver", "", "canonical driver id (required)")
	_ = assignCmd.MarkFlagRequired("source")
	_ = assignCmd.MarkFlagRequired("id")
	_ = assignCmd.MarkFlagRequired("driver")
	rootCmd.AddCommand(assignCmd)
}
