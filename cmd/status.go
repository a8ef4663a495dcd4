package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/engine"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/match"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/monitoring"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show match health per source and across sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng := engine.New(st, match.DefaultOptions(), cfg.Match.Workers, cfg.Match.FlushSize)
		collector := monitoring.NewCollector(st, eng)
		snap, err := collector.Collect(ctx)
		if err != nil {
			return eris.Wrap(err, "collect status")
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		formatStatus(os.Stdout, snap)
		return nil
	},
}

func formatStatus(w io.Writer, snap *monitoring.MetricsSnapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tRECORDS\tMATCHED\tUNMATCHED\tMANUAL\tDISCARDED\tRATE\tAVG SCORE")
	for _, src := range []model.Source{
		model.SourceLead, model.SourceFieldRegistration, model.SourceLedgerTransaction,
	} {
		m, ok := snap.Sources[src]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%.1f%%\t%.2f\n",
			src, m.Records, m.Matched, m.Unmatched, m.Manual, m.Discarded,
			m.MatchRate*100, m.AvgScore)
	}
	tw.Flush() //nolint:errcheck

	fmt.Fprintf(w, "\nTotal: %d records, %d matched (%.1f%%)\n",
		snap.Records, snap.Matched, snap.MatchRate*100)
	fmt.Fprintf(w, "Cross-source: %d matched both, %d pending single source, %d conflicting\n",
		snap.MatchedBoth, snap.SinglePending, snap.Conflicts)
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print raw JSON snapshot")
	rootCmd.AddCommand(statusCmd)
}
