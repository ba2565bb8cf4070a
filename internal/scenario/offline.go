package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/browser/fixture"
	"github.com/xkilldash9x/searchprobe/internal/waits"
)

// OfflineProvider serves every scenario a fresh offline copy of the sportsbook.
type OfflineProvider struct {
	Clock   waits.Clock
	Options fixture.SportsbookOptions
}

// NewOfflineProvider returns a provider for the default sportsbook.
func NewOfflineProvider(clock waits.Clock) *OfflineProvider {
	return &OfflineProvider{Clock: clock, Options: fixture.DefaultSportsbookOptions()}
}

// WithPage runs fn with a new page. A panic in fn is returned as an error, and
// so are failures of the page's own scripted rendering.
func (p *OfflineProvider) WithPage(ctx context.Context, fn func(ctx context.Context, page browser.Page) error) (err error) {
	page := fixture.NewSportsbook(p.Clock, p.Options)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while using offline page: %v", r)
			return
		}
		if errs := page.Errors(); err == nil && len(errs) > 0 {
			err = fmt.Errorf("offline page failed to render: %w", errors.Join(errs...))
		}
	}()
	return fn(ctx, page)
}
