package isolation

import (
	"errors"
	"fmt"
)

var (
	// ErrViolation is the sentinel for broken exclusive-access assumptions.
	// A violation is fatal for the unit of work where it is detected and is
	// surfaced to the caller; it never crashes sibling work on other domains.
	ErrViolation = errors.New("isolation violation")

	// ErrConflict is the sentinel for contradictory static/dynamic isolation
	// declarations. Conflicts are reported at construction where possible,
	// otherwise at the call boundary before any work runs.
	ErrConflict = errors.New("isolation conflict")
)

// ViolationError reports work executing outside its required domain.
type ViolationError struct {
	Op      string // operation at which the violation was detected
	Domain  string // domain the work is bound to
	Current string // domain the caller was actually on ("" = none)
}

func (e *ViolationError) Error() string {
	cur := e.Current
	if cur == "" {
		cur = "no domain"
	}
	return fmt.Sprintf("isolation violation in %s: requires domain %s, caller on %s", e.Op, e.Domain, cur)
}

func (e *ViolationError) Unwrap() error {
	return ErrViolation
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
