// Package waits polls a condition against an asynchronously changing document
// until it produces a usable value, fails hard, or runs out of time.
package waits

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/searchprobe/internal/browser"
)

// DefaultInterval is the poll cadence used when Options.Interval is unset.
const DefaultInterval = 200 * time.Millisecond

// Condition is evaluated once per poll. A zero value means "not yet".
type Condition[T any] func(ctx context.Context) (T, error)

// Options configures a single wait.
type Options struct {
	// Timeout is the total budget. Zero evaluates the condition exactly once.
	Timeout time.Duration
	// Interval is the pause between evaluations.
	Interval time.Duration
	// Ignore lists errors (matched with errors.Is) that mean "not yet" rather than failure.
	Ignore []error
	Clock  Clock
	// Message describes what is awaited and appears in timeout errors.
	Message string
	Logger  *zap.Logger
}

// Transient ignores the failures a re-rendering document produces routinely.
func Transient() []error {
	return []error{browser.ErrNotFound, browser.ErrStale}
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Clock == nil {
		o.Clock = RealClock()
	}
	if o.Timeout < 0 {
		o.Timeout = 0
	}
	if o.Message == "" {
		o.Message = "condition"
	}
	return o
}

func (o Options) ignored(err error) bool {
	for _, target := range o.Ignore {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var errNotYet = errors.New("condition not yet satisfied")

// For evaluates cond every opts.Interval until it returns a non-zero value.
// Errors listed in opts.Ignore are treated as "not yet"; any other error aborts
// immediately. When the budget runs out the result is a *TimeoutError carrying
// the last value and the last ignored error. Cancellation of ctx returns ctx.Err().
func For[T any](ctx context.Context, opts Options, cond Condition[T]) (T, error) {
	opts = opts.withDefaults()
	var zero T

	start := opts.Clock.Now()
	var (
		last     T
		lastErr  error
		attempts int
	)

	operation := func() (T, error) {
		attempts++
		v, err := cond(ctx)
		if err != nil {
			if opts.ignored(err) {
				lastErr = err
				return zero, err
			}
			return zero, backoff.Permanent(err)
		}
		last = v
		if isZero(v) {
			return zero, errNotYet
		}
		return v, nil
	}

	var notify backoff.Notify
	if opts.Logger != nil {
		notify = func(err error, next time.Duration) {
			opts.Logger.Debug("Waiting.",
				zap.String("for", opts.Message),
				zap.Int("attempt", attempts),
				zap.Duration("next", next),
				zap.NamedError("last", err))
		}
	}

	policy := &deadlineBackOff{
		delegate: backoff.NewConstantBackOff(opts.Interval),
		clock:    opts.Clock,
		deadline: start.Add(opts.Timeout),
	}

	v, err := backoff.RetryNotifyWithTimerAndData[T](operation, backoff.WithContext(policy, ctx), notify, opts.Clock.NewTimer())
	if err == nil {
		return v, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	if errors.Is(err, errNotYet) || opts.ignored(err) {
		te := &TimeoutError{
			Message:  opts.Message,
			Timeout:  opts.Timeout,
			Elapsed:  opts.Clock.Now().Sub(start),
			Attempts: attempts,
			LastErr:  lastErr,
			Last:     last,
		}
		if opts.Logger != nil {
			opts.Logger.Debug("Wait timed out.", zap.String("for", opts.Message), zap.Int("attempts", attempts))
		}
		return zero, te
	}
	return zero, fmt.Errorf("waiting for %s: %w", opts.Message, err)
}

// Until is For specialised to boolean conditions.
func Until(ctx context.Context, opts Options, cond func(ctx context.Context) (bool, error)) error {
	_, err := For(ctx, opts, Condition[bool](cond))
	return err
}

func isZero[T any](v T) bool {
	return reflect.ValueOf(&v).Elem().IsZero()
}

// deadlineBackOff hands out the delegate's interval but never sleeps past the
// deadline, so the final evaluation happens at the deadline rather than after it.
type deadlineBackOff struct {
	delegate backoff.BackOff
	clock    Clock
	deadline time.Time
}

func (b *deadlineBackOff) Reset() { b.delegate.Reset() }

func (b *deadlineBackOff) NextBackOff() time.Duration {
	remaining := b.deadline.Sub(b.clock.Now())
	if remaining <= 0 {
		return backoff.Stop
	}
	next := b.delegate.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	if next > remaining {
		return remaining
	}
	return next
}
