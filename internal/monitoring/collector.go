package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/reconcile"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/store"
)

// SourceMetrics holds match health for one extract source.
type SourceMetrics struct {
	Records   int     `json:"records"`
	Matched   int     `json:"matched"`
	Unmatched int     `json:"unmatched"`
	Manual    int     `json:"manual"`
	Discarded int     `json:"discarded"`
	MatchRate float64 `json:"match_rate"`
	AvgScore  float64 `json:"avg_score"`
}

// MetricsSnapshot holds a point-in-time view of match health.
type MetricsSnapshot struct {
	Sources map[model.Source]SourceMetrics `json:"sources"`

	// Totals across all sources.
	Records   int     `json:"records"`
	Matched   int     `json:"matched"`
	Unmatched int     `json:"unmatched"`
	MatchRate float64 `json:"match_rate"`

	// Cross-source reconciliation.
	Conflicts     int `json:"conflicts"`
	MatchedBoth   int `json:"matched_both_sources"`
	SinglePending int `json:"single_source_pending"`

	CollectedAt time.Time `json:"collected_at"`
}

// Reconciler abstracts the cross-source grouping the collector needs.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]reconcile.Group, error)
}

// Collector gathers metrics from the store and the reconciler.
type Collector struct {
	store      store.Store
	reconciler Reconciler
}

// NewCollector creates a new metrics collector. reconciler may be nil, in
// which case the snapshot carries no cross-source counts.
func NewCollector(st store.Store, reconciler Reconciler) *Collector {
	return &Collector{store: st, reconciler: reconciler}
}

// Collect gathers a snapshot of match health across all sources.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		Sources:     make(map[model.Source]SourceMetrics),
		CollectedAt: time.Now().UTC(),
	}

	for _, src := range []model.Source{
		model.SourceLead, model.SourceFieldRegistration, model.SourceLedgerTransaction,
	} {
		m, err := c.collectSource(ctx, src)
		if err != nil {
			return nil, err
		}
		if m.Records == 0 {
			continue
		}
		snap.Sources[src] = m
		snap.Records += m.Records
		snap.Matched += m.Matched
		snap.Unmatched += m.Unmatched
	}
	if snap.Records > 0 {
		snap.MatchRate = float64(snap.Matched) / float64(snap.Records)
	}

	if c.reconciler != nil {
		groups, err := c.reconciler.Reconcile(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: reconcile")
		}
		for _, g := range groups {
			switch g.Status {
			case model.ReconConflicting:
				snap.Conflicts++
			case model.ReconMatchedBoth:
				snap.MatchedBoth++
			case model.ReconSinglePending:
				snap.SinglePending++
			}
		}
	}

	return snap, nil
}

func (c *Collector) collectSource(ctx context.Context, src model.Source) (SourceMetrics, error) {
	var m SourceMetrics

	records, err := c.store.ListExternalRecords(ctx, src)
	if err != nil {
		return m, eris.Wrapf(err, "monitoring: list %s records", src)
	}
	m.Records = len(records)

	results, err := c.store.ListMatchResults(ctx, store.ResultFilter{Source: src})
	if err != nil {
		return m, eris.Wrapf(err, "monitoring: list %s results", src)
	}

	var scoreSum float64
	for _, r := range results {
		if r.IsDiscarded {
			m.Discarded++
			continue
		}
		if r.Matched() {
			m.Matched++
			scoreSum += r.Score
			if r.IsManual {
				m.Manual++
			}
		}
	}
	m.Unmatched = m.Records - m.Matched - m.Discarded
	if m.Unmatched < 0 {
		m.Unmatched = 0
	}
	if m.Records > 0 {
		m.MatchRate = float64(m.Matched) / float64(m.Records)
	}
	if m.Matched > 0 {
		m.AvgScore = scoreSum / float64(m.Matched)
	}
	return m, nil
}
