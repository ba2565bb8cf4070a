package session

import (
	"context"
	"time"
)

// CombineContext derives a context from tab, which carries the CDP target, that
// also ends when op does. op's deadline is applied when it is earlier than tab's.
func CombineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tab)
	cancels := []context.CancelFunc{cancel}
	if deadline, ok := op.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithDeadline(ctx, deadline)
		cancels = append(cancels, cancelDeadline)
	}
	stop := context.AfterFunc(op, cancel)
	return ctx, func() {
		stop()
		for i := len(cancels) - 1; i >= 0; i-- {
			cancels[i]()
		}
	}
}

type detached struct {
	context.Context
}

func (detached) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detached) Done() <-chan struct{}       { return nil }
func (detached) Err() error                  { return nil }

// Detach keeps the values of ctx, including the CDP target, but drops its
// deadline and cancellation. Used for cleanup that must outlive a failed operation.
func Detach(ctx context.Context) context.Context {
	return detached{ctx}
}
