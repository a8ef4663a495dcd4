package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/engine"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/ingest"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/job"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/store"
)

var (
	matchSource string
	matchAll    bool
	matchFile   string
)

var matchCmd = &cobra.Command{
	Use:     "match",
	Aliases: []string{"rematch"},
	Short:   "Run batch matching for one source or all sources",
	Long:    "Builds a driver index over the records' reference window and associates each external record with a canonical driver. Re-running is idempotent; manually overridden records are skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var sources []model.Source
		switch {
		case matchAll:
			sources = allSources()
		case matchSource != "":
			src, err := parseSource(matchSource)
			if err != nil {
				return err
			}
			sources = []model.Source{src}
		default:
			return eris.New("either --source or --all is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if matchFile != "" {
			if len(sources) != 1 {
				return eris.New("--file requires a single --source")
			}
			im := ingest.NewImporter(st, cfg.Ingest.BatchSize)
			sum, err := im.ImportRecords(ctx, matchFile, sources[0])
			if err != nil {
				return eris.Wrap(err, "import extract")
			}
			zap.L().Info("extract imported before matching",
				zap.String("file", matchFile),
				zap.Int64("imported", sum.Imported),
				zap.Int("skipped", sum.Skipped),
			)
		}

		jobs := job.NewRegistry()
		summaries := make(map[model.Source]*model.MatchSummary, len(sources))
		for _, src := range sources {
			sum, err := runMatchJob(ctx, st, jobs, src)
			if err != nil {
				return eris.Wrapf(err, "match %s", src)
			}
			summaries[src] = sum
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	},
}

// runMatchJob executes one source's batch run under a job handle, logging
// progress periodically so long runs are observable.
func runMatchJob(ctx context.Context, st store.Store, jobs *job.Registry, src model.Source) (*model.MatchSummary, error) {
	h := jobs.Create("match:" + string(src))
	if err := h.Start(); err != nil {
		return nil, err
	}

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go logProgress(progressCtx, h)

	eng := engine.New(st, cfg.Match.OptionsFor(src), cfg.Match.Workers, cfg.Match.FlushSize)
	sum, err := eng.Run(ctx, src, func(r model.MatchResult) {
		h.RecordResult(r.Matched())
	})
	if err != nil {
		_ = h.Fail(err)
		return nil, err
	}
	if err := h.Complete(); err != nil {
		return nil, err
	}

	snap := h.Snapshot()
	zap.L().Info("match run complete",
		zap.String("job_id", snap.ID),
		zap.String("source", string(src)),
		zap.Int("total", sum.Total),
		zap.Int("matched", sum.Matched),
		zap.Int("unmatched", sum.Unmatched),
		zap.Int("manual_skipped", sum.ManualSkipped),
	)
	return sum, nil
}

func logProgress(ctx context.Context, h *job.Handle) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := h.Snapshot()
			zap.L().Info("match run progress",
				zap.String("job_id", snap.ID),
				zap.Int64("processed", snap.Processed),
				zap.Int64("matched", snap.Matched),
				zap.Int64("unmatched", snap.Unmatched),
			)
		}
	}
}

func init() {
	matchCmd.Flags().StringVar(&matchSource, "source", "", "extract source to match")
	matchCmd.Flags().BoolVar(&matchAll, "all", false, "match every source")
	matchCmd.Flags().StringVar(&matchFile, "file", "", "import this extract before matching")
	rootCmd.AddCommand(matchCmd)
}
