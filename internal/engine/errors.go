package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound reports an operation referencing an id or name with no
	// matching row. Reported to the caller, never fatal.
	ErrNotFound = errors.New("not found")

	// ErrIntegrityViolation reports a mutation that would orphan a relation
	// or duplicate a uniqueness constraint. The transaction is rolled back.
	ErrIntegrityViolation = errors.New("integrity violation")
)

// AmbiguousMatchError reports a fuzzy or substring resolution that found
// multiple plausible matches. The caller must disambiguate.
type AmbiguousMatchError struct {
	Name       string
	Candidates []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous match for %q: candidates %s",
		e.Name, strings.Join(e.Candidates, ", "))
}

// CapabilityError reports that every search path was tried and unavailable.
type CapabilityError struct {
	Tried []string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("no search capability available: tried %s", strings.Join(e.Tried, ", "))
}
