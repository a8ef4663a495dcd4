package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/engine"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/match"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/monitoring"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/reconcile"
)

var (
	reconcileConflictsOnly bool
	reconcileJSON          bool
	reconcileAlert         bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Classify cross-source agreement per external identity",
	Long:  "Groups match results by normalized identity (phone, else name) across sources and reports whether the sources agree, are pending, or conflict. Conflicts are surfaced for manual resolution, never auto-resolved.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng := engine.New(st, match.DefaultOptions(), cfg.Match.Workers, cfg.Match.FlushSize)
		groups, err := eng.Reconcile(ctx)
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}

		if reconcileConflictsOnly {
			conflicts := groups[:0]
			for _, g := range groups {
				if g.Status == model.ReconConflicting {
					conflicts = append(conflicts, g)
				}
			}
			groups = conflicts
		}

		if reconcileAlert {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st, eng),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			if _, alerts, err := checker.Check(ctx); err != nil {
				zap.L().Error("alert check failed", zap.Error(err))
			} else if len(alerts) == 0 {
				zap.L().Info("no alerts triggered")
			}
		}

		if reconcileJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(groups)
		}

		if len(groups) == 0 {
			fmt.Fprintln(os.Stderr, "No reconciliation groups found.")
			return nil
		}
		formatGroups(os.Stdout, groups)
		return nil
	},
}

func formatGroups(w io.Writer, groups []reconcile.Group) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tSTATUS\tDRIVER\tCLAIMS")
	for _, g := range groups {
		driver := g.DriverID
		if g.Status == model.ReconConflicting {
			driver = ""
			for i, id := range g.ConflictSides() {
				if i > 0 {
					driver += " vs "
				}
				driver += id
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", g.Key, g.Status, driver, len(g.Claims))
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileConflictsOnly, "conflicts-only", false, "show only conflicting groups")
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "print raw JSON groups")
	reconcileCmd.Flags().BoolVar(&reconcileAlert, "alert", false, "evaluate thresholds and send webhook alerts")
	rootCmd.AddCommand(reconcileCmd)
}
