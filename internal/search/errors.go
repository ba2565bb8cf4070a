package search

import (
	"errors"
	"fmt"
)

// ErrPrecondition matches every *PreconditionError under errors.Is.
var ErrPrecondition = errors.New("search: precondition missing")

// PreconditionError reports that an operation needs something the page does not
// have at all, e.g. clearing a search when no input or overlay exists. It is
// returned immediately rather than retried.
type PreconditionError struct {
	Op      string
	Missing string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("search: cannot %s: %s is missing", e.Op, e.Missing)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}
