package scenario

import (
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/searchprobe/internal/waits"
)

// Status is the outcome of a scenario or a step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusErrored Status = "errored"
	StatusSkipped Status = "skipped"
)

// StepResult records one executed step.
type StepResult struct {
	Step     string        `json:"step"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Result records one scenario.
type Result struct {
	Scenario    string        `json:"scenario"`
	Description string        `json:"description,omitempty"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	Steps       []StepResult  `json:"steps"`
	// Screenshot is the artifact path captured on failure, if any.
	Screenshot string `json:"screenshot,omitempty"`
}

// RunReport is the outcome of one run over a set of scenarios.
type RunReport struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Results   []Result      `json:"results"`
}

// Counts tallies results by status.
func (r *RunReport) Counts() map[Status]int {
	counts := make(map[Status]int, 3)
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// Passed reports whether every scenario passed.
func (r *RunReport) Passed() bool {
	for _, res := range r.Results {
		if res.Status != StatusPassed {
			return false
		}
	}
	return true
}

// ExpectationError is a check that ran to completion and did not hold.
type ExpectationError struct {
	Step    string
	Message string
}

func (e *ExpectationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, e.Message)
}

func failf(step Step, format string, args ...any) error {
	return &ExpectationError{Step: step.Raw, Message: fmt.Sprintf(format, args...)}
}

// classify maps a step error to a status. Unmet expectations and timeouts fail
// the scenario; anything else means it could not be carried out.
func classify(err error) Status {
	var expectation *ExpectationError
	switch {
	case err == nil:
		return StatusPassed
	case errors.As(err, &expectation), waits.IsTimeout(err):
		return StatusFailed
	default:
		return StatusErrored
	}
}
