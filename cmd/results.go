package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List match results",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		source, _ := cmd.Flags().GetString("source")
		driver, _ := cmd.Flags().GetString("driver")
		matchedOnly, _ := cmd.Flags().GetBool("matched")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		asJSON, _ := cmd.Flags().GetBool("json")

		filter := store.ResultFilter{
			DriverID:    driver,
			OnlyMatched: matchedOnly,
			Limit:       limit,
			Offset:      offset,
		}
		if source != "" {
			src, err := parseSource(source)
			if err != nil {
				return err
			}
			filter.Source = src
		}

		results, err := st.ListMatchResults(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list results")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}

		if len(results) == 0 {
			fmt.Fprintln(os.Stderr, "No match results found.")
			return nil
		}
		formatResults(os.Stdout, results)
		return nil
	},
}

func formatResults(w io.Writer, results []model.MatchResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tEXTERNAL ID\tDRIVER\tSCORE\tDAY DIFF\tFLAGS")
	for _, r := range results {
		driver := r.DriverID
		if driver == "" {
			driver = "-"
		}
		flags := ""
		if r.IsManual {
			flags += "manual"
		}
		if r.IsDiscarded {
			if flags != "" {
				flags += ","
			}
			flags += "discarded"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\t%s\n",
			r.Source, r.ExternalID, driver, r.Score, r.DayDiff, flags)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	resultsCmd.Flags().String("source", "", "filter by source")
	resultsCmd.Flags().String("driver", "", "filter by driver id")
	resultsCmd.Flags().Bool("matched", false, "only matched records")
	resultsCmd.Flags().Int("limit", 100, "max rows")
	resultsCmd.Flags().Int("offset", 0, "rows to skip")
	resultsCmd.Flags().Bool("json", false, "print raw JSON")
	rootCmd.AddCommand(resultsCmd)
}
