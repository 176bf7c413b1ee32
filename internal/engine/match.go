package engine

import (
	"strings"
	"unicode/utf8"
)

// Matcher is the fuzzy name matcher used for entity deduplication and name
// resolution. Approximate equality stands in for strict uniqueness here:
// upstream extraction is noisy ("SpaceX" vs "Space X"), so near-duplicate
// names collapse onto one entity instead of creating near-duplicate nodes.
type Matcher struct {
	// Threshold is the maximum edit distance treated as the same name.
	Threshold int
	// MinFuzzyLen guards short names: when either name is shorter than this
	// (in runes), only an exact case-insensitive match counts. Without the
	// guard, distance 2 collapses most 2-3 character names into each other.
	MinFuzzyLen int
}

// NewMatcher returns a matcher with the default threshold (2) and short-name
// guard (4).
func NewMatcher() Matcher {
	return Matcher{Threshold: 2, MinFuzzyLen: 4}
}

// Match returns the closest candidate within the threshold, for create-time
// dedup. Ties go to the earliest candidate. ok is false when nothing is close
// enough.
func (m Matcher) Match(name string, candidates []string) (best string, ok bool) {
	bestDist := m.Threshold + 1
	for _, c := range candidates {
		d, match := m.distance(name, c)
		if match && d < bestDist {
			bestDist = d
			best = c
			ok = true
		}
	}
	return best, ok
}

// Resolve maps a name to exactly one existing candidate: exact match first,
// then fuzzy. When two or more candidates tie at the minimum distance, the
// resolution is ambiguous and the caller must disambiguate.
func (m Matcher) Resolve(name string, candidates []string) (string, error) {
	for _, c := range candidates {
		if strings.EqualFold(name, c) {
			return c, nil
		}
	}

	bestDist := m.Threshold + 1
	var matches []string
	for _, c := range candidates {
		d, match := m.distance(name, c)
		if !match {
			continue
		}
		if d < bestDist {
			bestDist = d
			matches = []string{c}
		} else if d == bestDist {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return "", ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousMatchError{Name: name, Candidates: matches}
	}
}

// distance returns the case-folded edit distance between a and b, and whether
// it is within the threshold given the short-name guard.
func (m Matcher) distance(a, b string) (int, bool) {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 0, true
	}
	if utf8.RuneCountInString(a) < m.MinFuzzyLen || utf8.RuneCountInString(b) < m.MinFuzzyLen {
		return 0, false // short names require exact match
	}

	d := levenshtein(a, b)
	return d, d <= m.Threshold
}

// levenshtein computes the edit distance between two strings over runes,
// single-row dynamic programming.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur := prev[0]
		prev[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			next := min3(prev[j]+1, prev[j-1]+1, cur+cost)
			cur = prev[j]
			prev[j] = next
		}
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
