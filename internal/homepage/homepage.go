// Package homepage drives the landing page of the site: consent banners, the
// header search trigger and the search input. It implements search.Trigger.
package homepage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/config"
	"github.com/xkilldash9x/searchprobe/internal/search"
	"github.com/xkilldash9x/searchprobe/internal/waits"
)

// consentClickPause lets the banner animate away before the page is used.
const consentClickPause = 300 * time.Millisecond

// Locators lists the controls of the landing page. Multi-entry fields are
// tried in order.
type Locators struct {
	ConsentButtons   []browser.Locator
	SearchTriggers   []browser.Locator
	OverlayRoot      browser.Locator
	Input            browser.Locator
	SuggestionPanels []browser.Locator
	SuggestionItems  []browser.Locator
}

// Options configures a HomePage.
type Options struct {
	Locators
	LandingPath    string
	SettlePause    time.Duration
	ConsentTimeout time.Duration
	Interval       time.Duration
	Clock          waits.Clock
	Logger         *zap.Logger
}

// OptionsFromConfig reads the site section and the input locator of the
// search section.
func OptionsFromConfig(site config.SiteConfig, sc config.SearchConfig, clock waits.Clock, logger *zap.Logger) (Options, error) {
	if strings.TrimSpace(sc.Input) == "" {
		return Options{}, errors.New("search.input: locator is empty")
	}
	triggers := browser.ParseLocators(site.SearchTriggers)
	if len(triggers) == 0 {
		return Options{}, errors.New("site.search_triggers: no locators")
	}
	opts := Options{
		Locators: Locators{
			ConsentButtons:   browser.ParseLocators(site.ConsentButtons),
			SearchTriggers:   triggers,
			Input:            browser.ParseLocator(sc.Input),
			SuggestionPanels: browser.ParseLocators(site.SuggestionPanels),
			SuggestionItems:  browser.ParseLocators(site.SuggestionItems),
		},
		LandingPath:    site.LandingPath,
		SettlePause:    site.SettlePause,
		ConsentTimeout: site.ConsentTimeout,
		Interval:       sc.PollInterval,
		Clock:          clock,
		Logger:         logger,
	}
	if strings.TrimSpace(site.OverlayRoot) != "" {
		opts.OverlayRoot = browser.ParseLocator(site.OverlayRoot)
	}
	return opts, nil
}

// HomePage is the landing page of one browser page.
type HomePage struct {
	page   browser.Page
	opts   Options
	logger *zap.Logger
}

var _ search.Trigger = (*HomePage)(nil)

// New returns a HomePage over page.
func New(page browser.Page, opts Options) *HomePage {
	if opts.Clock == nil {
		opts.Clock = waits.RealClock()
	}
	if opts.Interval <= 0 {
		opts.Interval = waits.DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HomePage{page: page, opts: opts, logger: logger.Named("homepage")}
}

// LandingURL appends path to base unless base already contains it.
func LandingURL(base, path string) string {
	path = strings.Trim(path, "/")
	if path == "" || strings.Contains(base, "/"+path) {
		return base
	}
	if strings.HasSuffix(base, "/") {
		return base + path
	}
	return base + "/" + path
}

func (h *HomePage) wait(timeout time.Duration, message string) waits.Options {
	return waits.Options{
		Timeout:  timeout,
		Interval: h.opts.Interval,
		Ignore:   waits.Transient(),
		Clock:    h.opts.Clock,
		Message:  message,
		Logger:   h.logger,
	}
}

// Open navigates to the landing page, lets it settle, dismisses any consent
// banner and scrolls to the top.
func (h *HomePage) Open(ctx context.Context, url string) error {
	target := LandingURL(url, h.opts.LandingPath)
	h.logger.Info("Opening landing page.", zap.String("url", target))
	if err := h.page.Navigate(ctx, target); err != nil {
		return err
	}
	if err := h.opts.Clock.Sleep(ctx, h.opts.SettlePause); err != nil {
		return err
	}
	if err := h.dismissConsent(ctx); err != nil {
		return err
	}
	if err := h.page.ScrollTo(ctx, 0, 0); err != nil {
		h.logger.Debug("Could not scroll to top.", zap.Error(err))
	}
	return nil
}

// dismissConsent clicks the first visible consent button. Without one it
// presses Escape, which closes most banners.
func (h *HomePage) dismissConsent(ctx context.Context) error {
	if len(h.opts.ConsentButtons) > 0 {
		button, err := waits.For[browser.Element](ctx, h.wait(h.opts.ConsentTimeout, "consent button"), func(ctx context.Context) (browser.Element, error) {
			return firstInteractable(ctx, h.page, h.opts.ConsentButtons)
		})
		switch {
		case err == nil:
			if cerr := button.Click(ctx); cerr == nil {
				h.logger.Debug("Consent banner dismissed.")
				return h.opts.Clock.Sleep(ctx, consentClickPause)
			} else if ctx.Err() != nil {
				return ctx.Err()
			} else {
				h.logger.Debug("Consent button click failed.", zap.Error(cerr))
			}
		case waits.IsTimeout(err):
			h.logger.Debug("No consent banner found.")
		default:
			return fmt.Errorf("looking for consent banner: %w", err)
		}
	}
	if err := h.page.PressKey(ctx, browser.KeyEscape); err != nil && ctx.Err() == nil {
		h.logger.Debug("Escape fallback failed.", zap.Error(err))
	}
	return ctx.Err()
}

// FocusSearchInput opens the search overlay when the input is not already on
// screen and clicks into the input.
func (h *HomePage) FocusSearchInput(ctx context.Context, timeout time.Duration) error {
	input, err := h.visibleInput(ctx)
	if err != nil {
		return err
	}
	if input == nil {
		if err := h.openOverlay(ctx, timeout); err != nil {
			return err
		}
		input, err = h.waitInput(ctx, timeout)
		if err != nil {
			return err
		}
	}
	return input.Click(ctx)
}

func (h *HomePage) openOverlay(ctx context.Context, timeout time.Duration) error {
	trigger, err := waits.For[browser.Element](ctx, h.wait(timeout, "search trigger"), func(ctx context.Context) (browser.Element, error) {
		return firstInteractable(ctx, h.page, h.opts.SearchTriggers)
	})
	if err != nil {
		return fmt.Errorf("search trigger not found in header: %w", err)
	}
	if err := trigger.Click(ctx); err != nil {
		return fmt.Errorf("clicking search trigger: %w", err)
	}
	if h.opts.OverlayRoot.Expr == "" {
		return nil
	}
	return waits.Until(ctx, h.wait(timeout, "overlay container"), func(ctx context.Context) (bool, error) {
		els, err := h.page.QueryAll(ctx, h.opts.OverlayRoot)
		return len(els) > 0, err
	})
}

// visibleInput returns the last visible search input, or nil.
func (h *HomePage) visibleInput(ctx context.Context) (browser.Element, error) {
	els, err := h.page.QueryAll(ctx, h.opts.Input)
	if err != nil {
		if browser.IsTransient(err) {
			return nil, nil
		}
		return nil, err
	}
	for i := len(els) - 1; i >= 0; i-- {
		if search.IsVisible(ctx, els[i]) {
			return els[i], nil
		}
	}
	return nil, nil
}

func (h *HomePage) waitInput(ctx context.Context, timeout time.Duration) (browser.Element, error) {
	return waits.For[browser.Element](ctx, h.wait(timeout, "search input to be visible"), h.visibleInput)
}

// TypeQuery replaces the input's content with text.
func (h *HomePage) TypeQuery(ctx context.Context, text string, timeout time.Duration) error {
	input, err := h.waitInput(ctx, timeout)
	if err != nil {
		return err
	}
	if err := input.Clear(ctx); err != nil {
		return fmt.Errorf("clearing search input: %w", err)
	}
	return input.SendKeys(ctx, text)
}

// SubmitQuery presses Enter in the input.
func (h *HomePage) SubmitQuery(ctx context.Context, timeout time.Duration) error {
	input, err := h.waitInput(ctx, timeout)
	if err != nil {
		return err
	}
	return input.Press(ctx, browser.KeyEnter)
}

// SearchValue returns the value of the visible search input, or "" when there is none.
func (h *HomePage) SearchValue(ctx context.Context) (string, error) {
	input, err := h.visibleInput(ctx)
	if err != nil || input == nil {
		return "", err
	}
	v, _, err := input.Attribute(ctx, "value")
	if browser.IsTransient(err) {
		return "", nil
	}
	return v, err
}

// firstInteractable returns the first visible, enabled match, trying locs in order.
func firstInteractable(ctx context.Context, page browser.Page, locs []browser.Locator) (browser.Element, error) {
	for _, loc := range locs {
		els, err := page.QueryAll(ctx, loc)
		if err != nil {
			if browser.IsTransient(err) || errors.Is(err, browser.ErrUnsupportedLocator) {
				continue
			}
			return nil, err
		}
		for _, el := range els {
			if search.IsVisible(ctx, el) && enabled(ctx, el) {
				return el, nil
			}
		}
	}
	return nil, nil
}

func enabled(ctx context.Context, el browser.Element) bool {
	_, disabled, err := el.Attribute(ctx, "disabled")
	return err == nil && !disabled
}
