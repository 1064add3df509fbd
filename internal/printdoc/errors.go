package printdoc

import (
	"errors"
	"fmt"
)

// PrintConstraintError reports an interior layout that exceeds the
// printer's page-count ceiling. Assembly never truncates content to fit;
// the offending count is surfaced to the caller instead.
type PrintConstraintError struct {
	PageCount int
	Limit     int
}

func (e *PrintConstraintError) Error() string {
	return fmt.Sprintf("interior page count %d exceeds printer limit %d", e.PageCount, e.Limit)
}

// IsPrintConstraint reports whether err is a print constraint violation.
func IsPrintConstraint(err error) bool {
	var pce *PrintConstraintError
	return errors.As(err, &pce)
}

// RenderError wraps a failure of the rendering engine. Rendering is the
// only fallible stage of assembly; the caller may retry it.
type RenderError struct {
	Stage string // "interior" or "cover"
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s document: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ErrNotPrintEligible is returned when assembly is requested for a book
// whose status does not permit printing.
var ErrNotPrintEligible = errors.New("book status is not print-eligible")
