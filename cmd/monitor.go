package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/engine"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/match"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/monitoring"
)

var monitorIntervalSecs int

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch match health and send webhook alerts on threshold breaches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng := engine.New(st, match.DefaultOptions(), cfg.Match.Workers, cfg.Match.FlushSize)
		checker := monitoring.NewChecker(
			monitoring.NewCollector(st, eng),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)

		checker.Run(ctx, time.Duration(monitorIntervalSecs)*time.Second)
		return nil
	},
}

func init() {
	monitorCmd.Flags().IntVar(&monitorIntervalSecs, "interval", 300, "seconds between checks")
	rootCmd.AddCommand(monitorCmd)
}
