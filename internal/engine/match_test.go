package engine

import (
	"errors"
	"testing"
)

func TestLevenshtein(t *testing.T) {
	for _, tc := range []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"space x", "spacex", 1},
		{"elon musk", "elon muck", 1},
		{"résumé", "resume", 2}, // rune-wise, not byte-wise
	} {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestMatcherMatch(t *testing.T) {
	m := NewMatcher()

	// Near-duplicate within threshold collapses onto the existing name.
	got, ok := m.Match("Elon Muck", []string{"Elon Musk", "Grace Hopper"})
	if !ok || got != "Elon Musk" {
		t.Errorf("Match = %q, %v; want Elon Musk, true", got, ok)
	}

	// Case differences are free.
	got, ok = m.Match("elon musk", []string{"Elon Musk"})
	if !ok || got != "Elon Musk" {
		t.Errorf("case-insensitive Match = %q, %v", got, ok)
	}

	// Distance 3 is past the threshold.
	if _, ok := m.Match("Elon Muskrat", []string{"Elon Musk"}); ok {
		t.Error("distance 3 should not match")
	}

	// Closest candidate wins, ties go to the earliest.
	got, _ = m.Match("Spacex", []string{"Space X", "SpaceX"})
	if got != "SpaceX" {
		t.Errorf("closest match = %q, want SpaceX", got)
	}

	if _, ok := m.Match("Anything", nil); ok {
		t.Error("empty candidate list should not match")
	}
}

func TestMatcherShortNameGuard(t *testing.T) {
	m := NewMatcher()

	// "Bob" and "Rob" are distance 1, but both are under MinFuzzyLen: distinct.
	if _, ok := m.Match("Rob", []string{"Bob"}); ok {
		t.Error("short names should require exact match")
	}

	// Exact (case-insensitive) still works for short names.
	got, ok := m.Match("bob", []string{"Bob"})
	if !ok || got != "Bob" {
		t.Errorf("exact short-name match = %q, %v", got, ok)
	}
}

func TestMatcherResolve(t *testing.T) {
	m := NewMatcher()
	candidates := []string{"Carlos", "Carlot", "Grace Hopper"}

	// Exact match short-circuits the fuzzy pass even when other candidates
	// are close.
	got, err := m.Resolve("Carlos", candidates)
	if err != nil || got != "Carlos" {
		t.Errorf("Resolve exact = %q, %v", got, err)
	}

	// Unique fuzzy match resolves.
	got, err = m.Resolve("Grace Hoppr", candidates)
	if err != nil || got != "Grace Hopper" {
		t.Errorf("Resolve fuzzy = %q, %v", got, err)
	}

	// "Carlo" is distance 1 from both Carlos and Carlot: ambiguous.
	_, err = m.Resolve("Carlo", candidates)
	var ambiguous *AmbiguousMatchError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("Resolve tie = %v, want AmbiguousMatchError", err)
	}
	if len(ambiguous.Candidates) != 2 {
		t.Errorf("ambiguous candidates = %v, want 2", ambiguous.Candidates)
	}

	// Nothing close enough.
	if _, err := m.Resolve("Zebulon", candidates); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve miss = %v, want ErrNotFound", err)
	}
}
