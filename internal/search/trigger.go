package search

import (
	"context"
	"fmt"
	"time"
)

// Trigger drives the input side of a search: opening the overlay and entering
// a query. The session only needs to know that it happened.
type Trigger interface {
	FocusSearchInput(ctx context.Context, timeout time.Duration) error
	TypeQuery(ctx context.Context, text string, timeout time.Duration) error
	SubmitQuery(ctx context.Context, timeout time.Duration) error
}

// Submit focuses the search input, types text and submits it.
func Submit(ctx context.Context, t Trigger, text string, timeout time.Duration) error {
	if err := t.FocusSearchInput(ctx, timeout); err != nil {
		return fmt.Errorf("focusing search input: %w", err)
	}
	if err := t.TypeQuery(ctx, text, timeout); err != nil {
		return fmt.Errorf("typing query %q: %w", text, err)
	}
	if err := t.SubmitQuery(ctx, timeout); err != nil {
		return fmt.Errorf("submitting query %q: %w", text, err)
	}
	return nil
}
