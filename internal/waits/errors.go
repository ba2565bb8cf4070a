package waits

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimeout matches every *TimeoutError under errors.Is.
var ErrTimeout = errors.New("wait timed out")

// TimeoutError reports that a condition never produced a usable value within its budget.
type TimeoutError struct {
	Message  string
	Timeout  time.Duration
	Elapsed  time.Duration
	Attempts int
	// LastErr is the last ignored error, if the final attempts failed transiently.
	LastErr error
	// Last is the last value the condition returned.
	Last any
}

func (e *TimeoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "timed out after %s waiting for %s (%d attempts", e.Elapsed.Round(time.Millisecond), e.Message, e.Attempts)
	if e.LastErr != nil {
		fmt.Fprintf(&b, ", last error: %v", e.LastErr)
	}
	b.WriteString(")")
	return b.String()
}

// Is lets errors.Is(err, ErrTimeout) detect timeouts without exposing LastErr
// as a wrapped cause.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// IsTimeout reports whether err is, or wraps, a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
