package match

import (
	"time"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
)

// minIndexWordLen is the shortest name word worth indexing; shorter words
// (particles, initials) generate too many false hits.
const minIndexWordLen = 3

// DriverIndex is a read-only multi-key lookup over the canonical driver
// population within a hire-date window. It is built once per batch and
// shared by all record lookups, so it must not be mutated after Build.
type DriverIndex struct {
	byPhone map[string][]*model.CanonicalDriver
	byName  map[string][]*model.CanonicalDriver
	byWord  map[string][]*model.CanonicalDriver
	byID    map[string]*model.CanonicalDriver
	all     []*model.CanonicalDriver

	from time.Time
	to   time.Time
}

// BuildIndex indexes the drivers whose hire date falls inside [from, to].
// A zero from or to leaves that side of the window open. All four lookup
// structures are populated from a single pass.
func BuildIndex(drivers []model.CanonicalDriver, from, to time.Time) *DriverIndex {
	ix := &DriverIndex{
		byPhone: make(map[string][]*model.CanonicalDriver),
		byName:  make(map[string][]*model.CanonicalDriver),
		byWord:  make(map[string][]*model.CanonicalDriver),
		byID:    make(map[string]*model.CanonicalDriver, len(drivers)),
		from:    from,
		to:      to,
	}

	for i := range drivers {
		d := &drivers[i]
		if !ix.inWindow(d.HireDate) {
			continue
		}

		ix.byID[d.DriverID] = d
		ix.all = append(ix.all, d)

		if phone := NormalizePhone(d.Phone); phone != "" {
			ix.byPhone[phone] = append(ix.byPhone[phone], d)
		}

		normalized := NormalizeName(d.FullName)
		if cmp := NormalizeNameForComparison(d.FullName); cmp != "" {
			ix.byName[cmp] = append(ix.byName[cmp], d)
		}
		for _, w := range ComparisonWords(normalized) {
			if len(w) < minIndexWordLen {
				continue
			}
			ix.byWord[w] = append(ix.byWord[w], d)
		}
	}

	return ix
}

// Driver returns the indexed driver with the given id, or nil.
func (ix *DriverIndex) Driver(id string) *model.CanonicalDriver {
	return ix.byID[id]
}

// Size returns the number of indexed drivers.
func (ix *DriverIndex) Size() int {
	return len(ix.all)
}

// Window returns the hire-date bounds the index was built with.
func (ix *DriverIndex) Window() (time.Time, time.Time) {
	return ix.from, ix.to
}

func (ix *DriverIndex) inWindow(hire time.Time) bool {
	if !ix.from.IsZero() && hire.Before(ix.from) {
		return false
	}
	if !ix.to.IsZero() && hire.After(ix.to) {
		return false
	}
	return true
}
