package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	discardSource string
	discardID     string
)

var discardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Exclude a record from reconciliation and downstream use",
	Long:  "The record and its match result are retained for audit but excluded from reconciliation until undiscarded.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return setDiscarded(cmd, true)
	},
}

var undiscardCmd = &cobra.Command{
	Use:   "undiscard",
	Short: "Restore a previously discarded record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return setDiscarded(cmd, false)
	},
}

func setDiscarded(cmd *cobra.Command, discarded bool) error {
	ctx := cmd.Context()

	src, err := parseSource(discardSource)
	if err != nil {
		return err
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	if err := st.SetDiscarded(ctx, src, discardID, discarded); err != nil {
		return eris.Wrap(err, cmd.Name())
	}

	zap.L().Info("discard flag updated",
		zap.String("source", string(src)),
		zap.String("external_id", discardID),
		zap.Bool("discarded", discarded),
	)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{discardCmd, undiscardCmd} {
		c.Flags().StringVar(&discardSource, "source", "", "record source (required)")
		c.Flags().StringVar(&discardID, "id", "", "external record id (required)")
		_ = c.MarkFlagRequired("source")
		_ = c.MarkFlagRequired("id")
		rootCmd.AddCommand(c)
	}
}
