// Package search observes a site's search overlay and decides which terminal
// state it has reached. Every read re-resolves the overlay from the live
// document; nothing is cached between polls.
package search

import (
	"context"

	"github.com/xkilldash9x/searchprobe/internal/browser"
)

// IsVisible reports whether el is rendered with a non-empty box. Failures of
// any kind, including a stale handle, count as not visible.
func IsVisible(ctx context.Context, el browser.Element) bool {
	if el == nil {
		return false
	}
	rendered, err := el.IsRendered(ctx)
	if err != nil || !rendered {
		return false
	}
	size, err := el.BoundingSize(ctx)
	if err != nil {
		return false
	}
	return !size.Empty()
}

// queryer is a browser.Page or a browser.Element.
type queryer interface {
	QueryAll(ctx context.Context, loc browser.Locator) ([]browser.Element, error)
}

// visibleUnder returns the visible matches of loc under scope, in document order.
func visibleUnder(ctx context.Context, scope queryer, loc browser.Locator) ([]browser.Element, error) {
	els, err := scope.QueryAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	var out []browser.Element
	for _, el := range els {
		if IsVisible(ctx, el) {
			out = append(out, el)
		}
	}
	return out, nil
}

// firstVisibleUnder returns the first visible match of loc under scope, or nil.
func firstVisibleUnder(ctx context.Context, scope queryer, loc browser.Locator) (browser.Element, error) {
	els, err := scope.QueryAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		if IsVisible(ctx, el) {
			return el, nil
		}
	}
	return nil, nil
}
