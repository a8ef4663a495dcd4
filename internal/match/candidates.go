package match

import "github.com/gfaxardo/contractor-tracker-sub000/internal/model"

// recordKeys holds the normalized lookup forms of one external record,
// computed once per record before candidate generation and scoring.
type recordKeys struct {
	phone    string
	name     string
	compName string
	words    []string
}

func keysFor(rec *model.ExternalRecord) recordKeys {
	name := NormalizeName(rec.CandidateName())
	return recordKeys{
		phone:    NormalizePhone(rec.Phone),
		name:     name,
		compName: NormalizeNameForComparison(rec.CandidateName()),
		words:    ComparisonWords(name),
	}
}

// Candidates produces the deduplicated set of drivers worth scoring for a
// record, in escalating cost order, stopping at the cheapest non-empty tier:
//
//  1. exact-phone hits unioned with exact-name hits, since either attribute
//     may independently surface the correct driver;
//  2. inverted word-index hits for every comparison word of length >= 3;
//  3. a full scan keeping drivers whose phone similarity clears
//     phoneThreshold. O(population), taken only when both cheap tiers miss.
func (ix *DriverIndex) Candidates(keys recordKeys, phoneThreshold float64) []*model.CanonicalDriver {
	seen := make(map[string]bool)
	var out []*model.CanonicalDriver

	add := func(drivers []*model.CanonicalDriver) {
		for _, d := range drivers {
			if !seen[d.DriverID] {
				seen[d.DriverID] = true
				out = append(out, d)
			}
		}
	}

	// Tier 1: exact keys.
	if keys.phone != "" {
		add(ix.byPhone[keys.phone])
	}
	if keys.compName != "" {
		add(ix.byName[keys.compName])
	}
	if len(out) > 0 {
		return out
	}

	// Tier 2: inverted word index.
	for _, w := range keys.words {
		if len(w) < minIndexWordLen {
			continue
		}
		add(ix.byWord[w])
	}
	if len(out) > 0 {
		return out
	}

	// Tier 3: full scan on phone similarity.
	if keys.phone == "" {
		return nil
	}
	for _, d := range ix.all {
		if seen[d.DriverID] {
			continue
		}
		if PhoneSimilarity(keys.phone, d.Phone) >= phoneThreshold {
			seen[d.DriverID] = true
			out = append(out, d)
		}
	}
	return out
}
