package match

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
)

// Options controls one batch run of the resolver. The zero value is not
// usable; start from DefaultOptions.
type Options struct {
	MatchByPhone          bool    `yaml:"match_by_phone" mapstructure:"match_by_phone"`
	MatchByName           bool    `yaml:"match_by_name" mapstructure:"match_by_name"`
	PhoneThreshold        float64 `yaml:"phone_threshold" mapstructure:"phone_threshold"`
	NameThreshold         float64 `yaml:"name_threshold" mapstructure:"name_threshold"`
	MinWordsMatch         int     `yaml:"min_words_match" mapstructure:"min_words_match"`
	IgnoreTrailingSurname bool    `yaml:"ignore_trailing_surname" mapstructure:"ignore_trailing_surname"`
	MarginDays            int     `yaml:"margin_days" mapstructure:"margin_days"`
	EnableFuzzyMatching   bool    `yaml:"enable_fuzzy_matching" mapstructure:"enable_fuzzy_matching"`
}

// DefaultOptions returns the baseline matching configuration. A
// NameThreshold of 0 selects the adaptive per-word-count threshold.
func DefaultOptions() Options {
	return Options{
		MatchByPhone:        true,
		MatchByName:         true,
		PhoneThreshold:      0.7,
		NameThreshold:       0,
		MinWordsMatch:       2,
		MarginDays:          30,
		EnableFuzzyMatching: true,
	}
}

// normalized applies option invariants: disabling fuzzy matching forces
// exact-match-only thresholds, and a non-positive margin falls back to the
// default window.
func (o Options) normalized() Options {
	if !o.EnableFuzzyMatching {
		o.PhoneThreshold = 1.0
		o.NameThreshold = 1.0
	}
	if o.MarginDays <= 0 {
		o.MarginDays = 30
	}
	return o
}

// Resolver scores candidate drivers for external records and selects a
// winner per record by deterministic tie-break. It is safe for concurrent
// use once constructed; the underlying index is read-only.
type Resolver struct {
	opts Options
	ix   *DriverIndex
}

// NewResolver builds a resolver over the given driver snapshot, indexing
// only drivers hired within the records' reference-date range widened by
// the margin on both sides.
func NewResolver(drivers []model.CanonicalDriver, records []model.ExternalRecord, opts Options) *Resolver {
	opts = opts.normalized()
	from, to := ReferenceWindow(records, opts.MarginDays)
	return &Resolver{opts: opts, ix: BuildIndex(drivers, from, to)}
}

// NewResolverWithIndex wraps an already-built index. The caller is
// responsible for having built it with a window consistent with opts.
func NewResolverWithIndex(ix *DriverIndex, opts Options) *Resolver {
	return &Resolver{opts: opts.normalized(), ix: ix}
}

// Index exposes the underlying driver index.
func (r *Resolver) Index() *DriverIndex {
	return r.ix
}

// ReferenceWindow computes [min(reference_date) - margin, max(reference_date)
// + margin] over the records, ignoring records without a parseable date.
// Both bounds are zero when no record carries a date.
func ReferenceWindow(records []model.ExternalRecord, marginDays int) (time.Time, time.Time) {
	var from, to time.Time
	for _, rec := range records {
		if rec.ReferenceDate.IsZero() {
			continue
		}
		if from.IsZero() || rec.ReferenceDate.Before(from) {
			from = rec.ReferenceDate
		}
		if to.IsZero() || rec.ReferenceDate.After(to) {
			to = rec.ReferenceDate
		}
	}
	if !from.IsZero() {
		from = from.AddDate(0, 0, -marginDays)
		to = to.AddDate(0, 0, marginDays)
	}
	return from, to
}

// Resolve matches one record against the indexed population. A record that
// matches nothing yields an unmatched result with score 0; that is a normal
// outcome, never an error.
func (r *Resolver) Resolve(rec model.ExternalRecord) model.MatchResult {
	res := model.MatchResult{
		ExternalID: rec.ExternalID,
		Source:     rec.Source,
		MatchedAt:  time.Now().UTC(),
	}

	// The temporal gate needs an anchor date; without one no candidate can
	// be confirmed, so the record stays unmatched.
	if rec.ReferenceDate.IsZero() {
		return res
	}

	keys := keysFor(&rec)
	if !r.opts.MatchByPhone {
		keys.phone = ""
	}
	if !r.opts.MatchByName {
		keys.name = ""
		keys.compName = ""
		keys.words = nil
	}
	if keys.phone == "" && keys.name == "" {
		return res
	}

	var (
		best      *model.CanonicalDriver
		bestScore float64
		bestDay   int
	)

	for _, d := range r.ix.Candidates(keys, r.opts.PhoneThreshold) {
		dayDiff := model.DaysBetween(rec.ReferenceDate, d.HireDate)
		if dayDiff > r.opts.MarginDays {
			// A name or phone match outside the plausible hire window is
			// rejected regardless of score.
			continue
		}

		var phoneSim, nameSim float64
		if keys.phone != "" && d.Phone != "" {
			phoneSim = PhoneSimilarity(keys.phone, d.Phone)
		}
		if keys.name != "" && d.FullName != "" {
			nameSim = NameSimilarity(keys.name, d.FullName,
				r.opts.NameThreshold, r.opts.MinWordsMatch, r.opts.IgnoreTrailingSurname)
		}

		phoneOK := phoneSim > 0 && phoneSim >= r.opts.PhoneThreshold
		nameOK := nameSim > 0 && nameSim >= r.opts.NameThreshold
		if !phoneOK && !nameOK {
			continue
		}

		score := compositeScore(phoneSim, nameSim)
		if score <= 0 {
			continue
		}

		if best == nil || betterMatch(score, dayDiff, d.DriverID, bestScore, bestDay, best.DriverID) {
			best = d
			bestScore = score
			bestDay = dayDiff
		}
	}

	if best != nil {
		res.DriverID = best.DriverID
		res.Score = bestScore
		res.DayDiff = bestDay
	}
	return res
}

// ResolveAll matches every record, sharding the independent per-record work
// across workers goroutines over the shared read-only index. onResult, when
// non-nil, is invoked once per result and may be called concurrently.
func (r *Resolver) ResolveAll(ctx context.Context, records []model.ExternalRecord, workers int, onResult func(model.MatchResult)) ([]model.MatchResult, model.MatchSummary, error) {
	if workers <= 0 {
		workers = 1
	}

	results := make([]model.MatchResult, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.Resolve(records[i])
			if onResult != nil {
				onResult(results[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, model.MatchSummary{}, err
	}

	from, to := r.ix.Window()
	summary := model.MatchSummary{
		Total:    len(results),
		DateFrom: from,
		DateTo:   to,
	}
	for _, res := range results {
		if res.Matched() {
			summary.Matched++
		} else {
			summary.Unmatched++
		}
	}
	return results, summary, nil
}

// compositeScore maps a (phone, name) similarity pair to the final match
// confidence via a fixed decision table, evaluated top to bottom, first row
// wins. Row order is significant: an exact phone with a near-exact name
// must score 0.9, not fall through to the 0.8 row.
func compositeScore(phoneSim, nameSim float64) float64 {
	switch {
	case phoneSim == 1.0 && nameSim == 1.0:
		return 1.0
	case phoneSim == 1.0 && nameSim > 0.8:
		return 0.9
	case phoneSim >= 0.7 && nameSim > 0.7:
		return 0.8
	case phoneSim == 1.0 && nameSim == 0:
		return 0.7
	case phoneSim == 0 && nameSim > 0.6:
		return 0.6
	case phoneSim >= 0.5 || nameSim >= 0.5:
		return 0.5
	default:
		return 0
	}
}

// betterMatch orders candidates: highest score, then smallest day distance,
// then lexicographically smallest driver id so re-runs are deterministic.
func betterMatch(score float64, dayDiff int, driverID string, bestScore float64, bestDay int, bestID string) bool {
	if score != bestScore {
		return score > bestScore
	}
	if dayDiff != bestDay {
		return dayDiff < bestDay
	}
	return driverID < bestID
}
