package homepage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/search"
	"github.com/xkilldash9x/searchprobe/internal/waits"
)

// Suggestions is the typeahead list under the search input.
type Suggestions struct {
	home    *HomePage
	timeout time.Duration
}

// Suggestions returns the typeahead list, waiting up to timeout for it.
func (h *HomePage) Suggestions(timeout time.Duration) *Suggestions {
	return &Suggestions{home: h, timeout: timeout}
}

func (s *Suggestions) panel(ctx context.Context) (browser.Element, error) {
	return waits.For[browser.Element](ctx, s.home.wait(s.timeout, "suggestions panel"), func(ctx context.Context) (browser.Element, error) {
		for _, loc := range s.home.opts.SuggestionPanels {
			els, err := s.home.page.QueryAll(ctx, loc)
			if err != nil {
				if browser.IsTransient(err) {
					continue
				}
				return nil, err
			}
			for _, el := range els {
				if search.IsVisible(ctx, el) {
					return el, nil
				}
			}
		}
		return nil, nil
	})
}

// IsVisible reports whether a suggestions panel shows within the timeout.
func (s *Suggestions) IsVisible(ctx context.Context) (bool, error) {
	_, err := s.panel(ctx)
	if waits.IsTimeout(err) {
		return false, nil
	}
	return err == nil, err
}

// ClickFirst clicks the first visible suggestion.
func (s *Suggestions) ClickFirst(ctx context.Context) error {
	if _, err := s.panel(ctx); err != nil {
		if waits.IsTimeout(err) {
			return fmt.Errorf("%w: suggestions panel not visible", browser.ErrNotFound)
		}
		return err
	}
	item, err := firstInteractable(ctx, s.home.page, s.home.opts.SuggestionItems)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: no suggestion items", browser.ErrNotFound)
	}
	text, _ := item.Text(ctx)
	s.home.logger.Debug("Picking suggestion.", zap.String("text", text))
	return item.Click(ctx)
}
