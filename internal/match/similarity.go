package match

import "strings"

// Scoring policy constants. These tiers were tuned empirically against real
// extract data; downstream payment correctness depends on reproducing them
// exactly, so do not adjust without re-validating historical batches.
const (
	// typoBoost is added to the Jaccard score when a near-miss word pair
	// (likely typo) exists between the two names.
	typoBoost = 0.2

	// maxPhoneLengthDiff rejects number pairs whose lengths differ by more
	// than this many digits outright.
	maxPhoneLengthDiff = 3

	// phoneCompareWindow is how many trailing digits are compared. Digits
	// before the window (e.g. a country code) never count against the score.
	phoneCompareWindow = 9
)

// PhoneSimilarity scores two phone numbers in [0,1]. Exact normalized match
// is 1.0. Otherwise the last min(9, shorter-length) digits are compared
// positionally; mismatches plus any length disparity inside that window map
// to fixed tiers: 0 diffs 1.0, 1 diff 0.9, 2 diffs 0.7, and up to 3 diffs
// 0.5 when at least 7 digits were compared. This tolerates a misdialed
// digit or an extra or missing leading country code.
func PhoneSimilarity(a, b string) float64 {
	pa := NormalizePhone(a)
	pb := NormalizePhone(b)
	if pa == "" || pb == "" {
		return 0
	}
	if pa == pb {
		return 1.0
	}

	la, lb := len(pa), len(pb)
	lenDiff := la - lb
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > maxPhoneLengthDiff {
		return 0
	}

	shorter, longer := la, lb
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	n := shorter
	if n > phoneCompareWindow {
		n = phoneCompareWindow
	}

	ta := pa[la-n:]
	tb := pb[lb-n:]
	diffs := 0
	for i := 0; i < n; i++ {
		if ta[i] != tb[i] {
			diffs++
		}
	}

	// Length disparity inside the comparison window counts as extra diffs.
	// Anything beyond the trailing window is ignored, so "0991234567" and
	// "591991234567" still score 1.0.
	windowLonger := longer
	if windowLonger > phoneCompareWindow {
		windowLonger = phoneCompareWindow
	}
	diffs += windowLonger - n

	switch {
	case diffs == 0:
		return 1.0
	case diffs == 1:
		return 0.9
	case diffs == 2:
		return 0.7
	case diffs <= 3 && n >= 7:
		return 0.5
	default:
		return 0
	}
}

// NameSimilarity scores two names in [0,1] using their comparison forms.
// Identical comparison forms score 1.0. Otherwise the score is word-set
// Jaccard, where a near-miss word pair (Levenshtein distance <= 2 with the
// longer word at least 4 characters, i.e. a likely typo) counts toward the
// intersection and adds a +0.2 boost, capped at 1.0. The score is zero
// unless the intersection has at least minWordsMatch words and the Jaccard
// meets the threshold; a threshold <= 0 selects an adaptive one from the
// word count. ignoreTrailingSurname truncates each name to its first two
// significant words so a missing second surname does not penalize.
func NameSimilarity(a, b string, threshold float64, minWordsMatch int, ignoreTrailingSurname bool) float64 {
	wa := ComparisonWords(NormalizeName(a))
	wb := ComparisonWords(NormalizeName(b))
	if ignoreTrailingSurname {
		if len(wa) > 2 {
			wa = wa[:2]
		}
		if len(wb) > 2 {
			wb = wb[:2]
		}
	}
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	sa := wordSet(wa)
	sb := wordSet(wb)

	exact := 0
	for w := range sa {
		if sb[w] {
			exact++
		}
	}
	union := len(sa) + len(sb) - exact
	if exact == len(sa) && exact == len(sb) {
		return 1.0
	}

	nearMiss := countNearMissPairs(sa, sb)
	intersection := exact + nearMiss

	if minWordsMatch > 0 && intersection < minWordsMatch {
		return 0
	}

	jaccard := float64(intersection) / float64(union)

	if threshold <= 0 {
		shorter := len(sa)
		if len(sb) < shorter {
			shorter = len(sb)
		}
		threshold = AdaptiveNameThreshold(shorter)
	}
	if jaccard < threshold {
		return 0
	}

	score := jaccard
	if nearMiss > 0 {
		score += typoBoost
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// AdaptiveNameThreshold returns the minimum Jaccard required for a name
// match given how many significant words the shorter name has. Short names
// carry less signal, so they must overlap more.
func AdaptiveNameThreshold(wordCount int) float64 {
	switch {
	case wordCount <= 1:
		return 0.7
	case wordCount == 2:
		return 0.6
	case wordCount == 3:
		return 0.5
	default:
		return 0.4
	}
}

// countNearMissPairs counts words of a that pair with a distinct word of b
// at Levenshtein distance <= 2, where the longer word has length >= 4. Each
// word pairs at most once.
func countNearMissPairs(sa, sb map[string]bool) int {
	used := make(map[string]bool)
	pairs := 0
	for w1 := range sa {
		if sb[w1] {
			continue
		}
		for w2 := range sb {
			if sa[w2] || used[w2] {
				continue
			}
			if isNearMiss(w1, w2) {
				used[w2] = true
				pairs++
				break
			}
		}
	}
	return pairs
}

// isNearMiss reports whether two words are likely typo variants of each
// other: edit distance <= 2 and the longer of the two has length >= 4.
func isNearMiss(a, b string) bool {
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer < 4 {
		return false
	}
	return Levenshtein(a, b) <= 2
}

// Levenshtein computes the classic edit distance (insert, delete, and
// substitute each cost 1) with a full dynamic-programming table. Names are
// short, so no early-exit optimization is needed.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.TrimSpace(w)] = true
	}
	return set
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
