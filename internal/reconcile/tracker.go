// Package reconcile classifies agreement between match results produced by
// different sources for the same real-world identity claim.
package reconcile

import (
	"sort"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/match"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
)

// Claim pairs an external record with its match result. The tracker works
// on claims rather than bare results because grouping across sources needs
// the record's identity attributes.
type Claim struct {
	Record model.ExternalRecord
	Result model.MatchResult
}

// Group is one external identity (same person as claimed by one or more
// sources) with its classification.
type Group struct {
	// Key is the normalized identity the claims were grouped on: the
	// normalized phone when present, otherwise the comparison-form name.
	Key string `json:"key"`

	// DriverID is the agreed driver when Status is matched_both_sources or
	// single_source_pending; empty otherwise.
	DriverID string `json:"driver_id,omitempty"`

	Status model.ReconciliationStatus `json:"status"`

	// Claims lists the contributing claims, ordered by source then id for
	// stable output. Discarded claims are excluded before grouping.
	Claims []Claim `json:"claims"`
}

// ConflictSides returns the distinct driver ids asserted by a conflicting
// group, sorted.
func (g Group) ConflictSides() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, c := range g.Claims {
		if c.Result.Matched() && !seen[c.Result.DriverID] {
			seen[c.Result.DriverID] = true
			ids = append(ids, c.Result.DriverID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Classify groups claims by external identity and derives each group's
// reconciliation status:
//
//   - matched_both_sources: two or more distinct sources agree on one driver;
//   - single_source_pending: one source has claimed a driver, awaiting
//     corroboration — not an error;
//   - conflicting: sources resolve the same identity to different drivers.
//     Conflicts are surfaced, never auto-resolved;
//   - unmatched: no source produced a driver.
//
// Discarded claims are excluded entirely; they are retained upstream for
// audit only.
func Classify(claims []Claim) []Group {
	buckets := make(map[string][]Claim)
	var order []string

	for _, c := range claims {
		if c.Result.IsDiscarded {
			continue
		}
		key := identityKey(c.Record)
		if key == "" {
			continue
		}
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], c)
	}

	sort.Strings(order)

	groups := make([]Group, 0, len(buckets))
	for _, key := range order {
		grp := buckets[key]
		sort.Slice(grp, func(i, j int) bool {
			if grp[i].Record.Source != grp[j].Record.Source {
				return grp[i].Record.Source < grp[j].Record.Source
			}
			return grp[i].Record.ExternalID < grp[j].Record.ExternalID
		})
		groups = append(groups, classifyGroup(key, grp))
	}
	return groups
}

func classifyGroup(key string, claims []Claim) Group {
	g := Group{Key: key, Claims: claims}

	drivers := make(map[string]bool)
	sources := make(map[model.Source]bool)
	for _, c := range claims {
		if c.Result.Matched() {
			drivers[c.Result.DriverID] = true
			sources[c.Result.Source] = true
		}
	}

	switch {
	case len(drivers) == 0:
		g.Status = model.ReconUnmatched
	case len(drivers) > 1:
		g.Status = model.ReconConflicting
	case len(sources) >= 2:
		g.Status = model.ReconMatchedBoth
		g.DriverID = singleKey(drivers)
	default:
		g.Status = model.ReconSinglePending
		g.DriverID = singleKey(drivers)
	}
	return g
}

// Conflicts filters the classified groups down to those needing manual
// resolution.
func Conflicts(groups []Group) []Group {
	var out []Group
	for _, g := range groups {
		if g.Status == model.ReconConflicting {
			out = append(out, g)
		}
	}
	return out
}

// Summary tallies groups per status.
func Summary(groups []Group) map[model.ReconciliationStatus]int {
	counts := make(map[model.ReconciliationStatus]int, 4)
	for _, g := range groups {
		counts[g.Status]++
	}
	return counts
}

// identityKey derives the cross-source grouping key for a record: the
// normalized phone when present, otherwise the comparison-form name. Records
// with neither attribute cannot be reconciled across sources.
func identityKey(rec model.ExternalRecord) string {
	if phone := match.NormalizePhone(rec.Phone); phone != "" {
		return "phone:" + phone
	}
	if name := match.NormalizeNameForComparison(rec.CandidateName()); name != "" {
		return "name:" + name
	}
	return ""
}

func singleKey(set map[string]bool) string {
	for k := range set {
		return k
	}
	return ""
}
