package search

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/searchprobe/internal/browser"
)

// OverlayResolver picks the authoritative overlay instance. The application
// recreates its overlay pane without promptly removing superseded ones, so the
// last visible instance in document order is taken to be the live one. That is
// a heuristic: if the application ever renders panes out of order this will
// pick the wrong one.
type OverlayResolver struct {
	page browser.Page
	// Locators are alternative overlay patterns tried in order; the first one
	// with a visible instance decides.
	Locators []browser.Locator
}

// NewOverlayResolver returns a resolver over page.
func NewOverlayResolver(page browser.Page, locators []browser.Locator) *OverlayResolver {
	return &OverlayResolver{page: page, Locators: locators}
}

// Resolve returns the authoritative overlay, or nil when no instance is visible.
// Transient query failures count as no instance.
func (r *OverlayResolver) Resolve(ctx context.Context) (browser.Element, error) {
	for _, loc := range r.Locators {
		els, err := r.query(ctx, loc)
		if err != nil {
			return nil, err
		}
		var last browser.Element
		for _, el := range els {
			if IsVisible(ctx, el) {
				last = el
			}
		}
		if last != nil {
			return last, nil
		}
	}
	return nil, nil
}

// VisibleInstances returns every visible overlay instance across all locators.
func (r *OverlayResolver) VisibleInstances(ctx context.Context) ([]browser.Element, error) {
	var out []browser.Element
	for _, loc := range r.Locators {
		els, err := r.query(ctx, loc)
		if err != nil {
			return nil, err
		}
		for _, el := range els {
			if IsVisible(ctx, el) {
				out = append(out, el)
			}
		}
	}
	return out, nil
}

func (r *OverlayResolver) query(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	els, err := r.page.QueryAll(ctx, loc)
	if err != nil {
		if browser.IsTransient(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying overlay %s: %w", loc, err)
	}
	return els, nil
}
