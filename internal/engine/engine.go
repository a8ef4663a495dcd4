// Package engine orchestrates batch match runs: load the stored extract and
// the driver window, resolve every record, and persist verdicts in batches.
package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/match"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/reconcile"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/resilience"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/store"
)

// DefaultFlushSize is how many match results are persisted per bulk upsert.
const DefaultFlushSize = 500

// Engine runs the matching pipeline for one source at a time against a
// shared store.
type Engine struct {
	store     store.Store
	opts      match.Options
	workers   int
	flushSize int
	retry     resilience.RetryConfig
	log       *zap.Logger
}

func New(st store.Store, opts match.Options, workers, flushSize int) *Engine {
	if workers <= 0 {
		workers = 4
	}
	if flushSize <= 0 {
		flushSize = DefaultFlushSize
	}
	return &Engine{
		store:     st,
		opts:      opts,
		workers:   workers,
		flushSize: flushSize,
		retry:     resilience.DefaultRetryConfig(),
		log:       zap.L().With(zap.String("component", "engine")),
	}
}

// Run matches every stored record for the source and persists the verdicts.
// Records already pinned by a manual override are skipped and counted.
// onResult, when non-nil, observes each fresh verdict and may be called
// concurrently. Committed batches survive a mid-run failure; re-running is
// safe because persistence upserts on (source, external_id).
func (e *Engine) Run(ctx context.Context, source model.Source, onResult func(model.MatchResult)) (*model.MatchSummary, error) {
	log := e.log.With(zap.String("source", string(source)))

	records, err := e.store.ListExternalRecords(ctx, source)
	if err != nil {
		return nil, eris.Wrap(err, "engine: list records")
	}
	if len(records) == 0 {
		log.Info("nothing to match")
		return &model.MatchSummary{}, nil
	}

	manual, err := e.manualKeys(ctx, source)
	if err != nil {
		return nil, err
	}

	work := make([]model.ExternalRecord, 0, len(records))
	skipped := 0
	for _, rec := range records {
		if manual[rec.ExternalID] {
			skipped++
			continue
		}
		work = append(work, rec)
	}

	from, to := match.ReferenceWindow(work, e.opts.MarginDays)
	drivers, err := e.store.ListDriversByHireDate(ctx, from, to)
	if err != nil {
		return nil, eris.Wrap(err, "engine: list drivers")
	}
	log.Info("starting match run",
		zap.Int("records", len(work)),
		zap.Int("manual_skipped", skipped),
		zap.Int("drivers", len(drivers)),
		zap.Time("from", from),
		zap.Time("to", to))

	resolver := match.NewResolverWithIndex(match.BuildIndex(drivers, from, to), e.opts)
	results, summary, err := resolver.ResolveAll(ctx, work, e.workers, onResult)
	if err != nil {
		return nil, eris.Wrap(err, "engine: resolve")
	}

	for start := 0; start < len(results); start += e.flushSize {
		end := min(start+e.flushSize, len(results))
		chunk := results[start:end]
		if _, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (int64, error) {
			return e.store.SaveMatchResults(ctx, chunk)
		}); err != nil {
			return nil, eris.Wrapf(err, "engine: save results %d-%d", start, end)
		}
	}

	summary.Total = len(records)
	summary.ManualSkipped = skipped
	log.Info("match run complete",
		zap.Int("total", summary.Total),
		zap.Int("matched", summary.Matched),
		zap.Int("unmatched", summary.Unmatched),
		zap.Int("manual_skipped", summary.ManualSkipped))
	return &summary, nil
}

// Reconcile loads every stored record and verdict and classifies
// cross-source agreement.
func (e *Engine) Reconcile(ctx context.Context) ([]reconcile.Group, error) {
	records, err := e.store.ListExternalRecords(ctx, "")
	if err != nil {
		return nil, eris.Wrap(err, "engine: list records")
	}
	byKey := make(map[model.Source]map[string]model.ExternalRecord, 3)
	for _, rec := range records {
		if byKey[rec.Source] == nil {
			byKey[rec.Source] = make(map[string]model.ExternalRecord)
		}
		byKey[rec.Source][rec.ExternalID] = rec
	}

	results, err := e.store.ListMatchResults(ctx, store.ResultFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "engine: list results")
	}

	claims := make([]reconcile.Claim, 0, len(results))
	for _, res := range results {
		rec, ok := byKey[res.Source][res.ExternalID]
		if !ok {
			// A verdict without its record cannot be grouped; skip rather
			// than fail the whole report.
			e.log.Warn("match result without record",
				zap.String("source", string(res.Source)),
				zap.String("external_id", res.ExternalID))
			continue
		}
		claims = append(claims, reconcile.Claim{Record: rec, Result: res})
	}
	return reconcile.Classify(claims), nil
}

// manualKeys returns the external ids for the source whose results are
// pinned by an operator.
func (e *Engine) manualKeys(ctx context.Context, source model.Source) (map[string]bool, error) {
	existing, err := e.store.ListMatchResults(ctx, store.ResultFilter{Source: source})
	if err != nil {
		return nil, eris.Wrap(err, "engine: list existing results")
	}
	manual := make(map[string]bool)
	for _, r := range existing {
		if r.IsManual {
			manual[r.ExternalID] = true
		}
	}
	return manual, nil
}
