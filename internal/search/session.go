package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/config"
	"github.com/xkilldash9x/searchprobe/internal/waits"
)

// staleRetries bounds how often a one-shot read is repeated after a re-render.
const staleRetries = 3

// Options configures a Session.
type Options struct {
	Surface Surface
	// Probes overrides DefaultProbes(Surface).
	Probes   []Probe
	Interval time.Duration
	Clock    waits.Clock
	Logger   *zap.Logger
}

// SurfaceFromConfig compiles the locators and count pattern in cfg.
func SurfaceFromConfig(cfg config.SearchConfig) (Surface, error) {
	overlays := browser.ParseLocators(cfg.OverlayPanes)
	if len(overlays) == 0 {
		return Surface{}, errors.New("overlay_panes: no locators")
	}
	pattern, err := regexp.Compile(cfg.CountPattern)
	if err != nil {
		return Surface{}, fmt.Errorf("count_pattern: %w", err)
	}
	s := Surface{
		Overlays:           overlays,
		CountPattern:       pattern,
		HiddenRowClass:     cfg.HiddenRowClass,
		NoResultsPhrases:   cfg.NoResultsPhrases,
		HistoryEmptyPhrase: cfg.HistoryEmptyPhrase,
	}
	fields := []struct {
		name string
		raw  string
		dst  *browser.Locator
	}{
		{"input", cfg.Input, &s.Input},
		{"results_count", cfg.ResultsCount, &s.ResultsCount},
		{"visible_rows", cfg.VisibleRows, &s.VisibleRows},
		{"no_results_scoped", cfg.NoResultsScoped, &s.NoResultsScoped},
		{"no_results_box", cfg.NoResultsBox, &s.NoResultsBox},
		{"clear_button", cfg.ClearButton, &s.ClearButton},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.raw) == "" {
			return Surface{}, fmt.Errorf("%s: locator is empty", f.name)
		}
		*f.dst = browser.ParseLocator(f.raw)
	}
	return s, nil
}

// OptionsFromConfig builds session options from the search section.
func OptionsFromConfig(cfg config.SearchConfig, clock waits.Clock, logger *zap.Logger) (Options, error) {
	surface, err := SurfaceFromConfig(cfg)
	if err != nil {
		return Options{}, fmt.Errorf("invalid search configuration: %w", err)
	}
	return Options{Surface: surface, Interval: cfg.PollInterval, Clock: clock, Logger: logger}, nil
}

// Session observes the search overlay of one page for one query action. It
// holds no element handles: every call re-resolves the overlay.
type Session struct {
	page       browser.Page
	surface    Surface
	resolver   *OverlayResolver
	classifier *Classifier
	history    Probe
	interval   time.Duration
	clock      waits.Clock
	logger     *zap.Logger
}

// NewSession returns a session over page.
func NewSession(page browser.Page, opts Options) *Session {
	probes := opts.Probes
	if probes == nil {
		probes = DefaultProbes(opts.Surface)
	}
	clock := opts.Clock
	if clock == nil {
		clock = waits.RealClock()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = waits.DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		page:       page,
		surface:    opts.Surface,
		resolver:   NewOverlayResolver(page, opts.Surface.Overlays),
		classifier: NewClassifier(probes),
		history:    HistoryProbe(opts.Surface),
		interval:   interval,
		clock:      clock,
		logger:     logger.Named("search"),
	}
}

func (s *Session) waitOptions(timeout time.Duration, message string, ignore ...error) waits.Options {
	return waits.Options{
		Timeout:  timeout,
		Interval: s.interval,
		Ignore:   append(waits.Transient(), ignore...),
		Clock:    s.clock,
		Message:  message,
		Logger:   s.logger,
	}
}

// Overlay returns the authoritative overlay instance, or nil.
func (s *Session) Overlay(ctx context.Context) (browser.Element, error) {
	return s.resolver.Resolve(ctx)
}

// State classifies the overlay once, without waiting.
func (s *Session) State(ctx context.Context) (SurfaceState, error) {
	overlay, err := s.resolver.Resolve(ctx)
	if err != nil {
		return SurfaceState{}, err
	}
	return s.classifier.Classify(ctx, overlay)
}

// Observe classifies the overlay once like State, and reports HistoryEmpty
// when nothing settled is shown but the empty-history view is.
func (s *Session) Observe(ctx context.Context) (SurfaceState, error) {
	overlay, err := s.resolver.Resolve(ctx)
	if err != nil || overlay == nil {
		return SurfaceState{}, err
	}
	state, err := s.classifier.Classify(ctx, overlay)
	if err != nil || state.Settled() {
		return state, err
	}
	if observed, ok, err := s.history.Match(ctx, overlay); err != nil || ok {
		return observed, err
	}
	return state, nil
}

// WaitSettled polls until the overlay shows results or the no-results banner.
// It fails with a *waits.TimeoutError when neither is observed within timeout;
// the empty-history view does not count.
func (s *Session) WaitSettled(ctx context.Context, timeout time.Duration) (SurfaceState, error) {
	state, err := waits.For[SurfaceState](ctx, s.waitOptions(timeout, "search overlay to settle"), s.State)
	if err != nil {
		if waits.IsTimeout(err) {
			if last, oerr := s.Observe(ctx); oerr == nil {
				s.logger.Info("Search overlay did not settle.", zap.Stringer("showing", last))
			}
		}
		return SurfaceState{}, err
	}
	s.logger.Debug("Search overlay settled.", zap.Stringer("state", state))
	return state, nil
}

// VisibleResultCount returns the count shown by the indicator, 1 or 0 from the
// rows when there is no usable indicator, and 0 when there is no overlay.
func (s *Session) VisibleResultCount(ctx context.Context) int {
	n, err := retryStale(ctx, func(ctx context.Context) (int, error) {
		overlay, err := s.resolver.Resolve(ctx)
		if err != nil || overlay == nil {
			return 0, err
		}
		count, ok, err := s.surface.count(ctx, overlay)
		if err != nil {
			return 0, err
		}
		if ok {
			return count, nil
		}
		rows, err := s.surface.hasRows(ctx, overlay)
		if err != nil || !rows {
			return 0, err
		}
		return 1, nil
	})
	if err != nil {
		s.logger.Debug("Could not read result count.", zap.Error(err))
		return 0
	}
	return n
}

// HasVisibleRows reports whether the authoritative overlay shows at least one
// result row that is not flagged hidden.
func (s *Session) HasVisibleRows(ctx context.Context) bool {
	ok, err := retryStale(ctx, func(ctx context.Context) (bool, error) {
		overlay, err := s.resolver.Resolve(ctx)
		if err != nil || overlay == nil {
			return false, err
		}
		return s.surface.hasRows(ctx, overlay)
	})
	if err != nil {
		s.logger.Debug("Could not read result rows.", zap.Error(err))
		return false
	}
	return ok
}

// bannerTier is one place to look for the no-results banner.
type bannerTier struct {
	name string
	find func(ctx context.Context, s *Session, overlay browser.Element) ([]browser.Element, error)
}

// noResultsTiers are tried in order on every poll. The last tier rescans all
// visible overlays because the authoritative instance can change between the
// two polls that straddle the transition.
var noResultsTiers = []bannerTier{
	{
		name: "scoped",
		find: func(ctx context.Context, s *Session, overlay browser.Element) ([]browser.Element, error) {
			if overlay == nil {
				return nil, nil
			}
			return visibleUnder(ctx, overlay, s.surface.NoResultsScoped)
		},
	},
	{
		name: "overlay",
		find: func(ctx context.Context, s *Session, overlay browser.Element) ([]browser.Element, error) {
			if overlay == nil {
				return nil, nil
			}
			return visibleUnder(ctx, overlay, s.surface.NoResultsBox)
		},
	},
	{
		name: "rescan",
		find: func(ctx context.Context, s *Session, _ browser.Element) ([]browser.Element, error) {
			instances, err := s.resolver.VisibleInstances(ctx)
			if err != nil {
				return nil, err
			}
			var out []browser.Element
			for _, inst := range instances {
				boxes, err := visibleUnder(ctx, inst, s.surface.NoResultsBox)
				if err != nil {
					if browser.IsTransient(err) {
						continue
					}
					return nil, err
				}
				out = append(out, boxes...)
			}
			return out, nil
		},
	},
}

// WaitNoResultsMessage waits for a visible no-results banner whose normalized
// text contains every configured phrase. It returns false when none appears
// within timeout.
func (s *Session) WaitNoResultsMessage(ctx context.Context, timeout time.Duration) (bool, error) {
	tier, err := waits.For[string](ctx, s.waitOptions(timeout, "no-results message"), func(ctx context.Context) (string, error) {
		overlay, err := s.resolver.Resolve(ctx)
		if err != nil {
			return "", err
		}
		for _, t := range noResultsTiers {
			banners, err := t.find(ctx, s, overlay)
			if err != nil {
				return "", err
			}
			for _, b := range banners {
				text, err := b.Text(ctx)
				if err != nil {
					continue
				}
				if ContainsAll(text, s.surface.NoResultsPhrases...) {
					return t.name, nil
				}
			}
		}
		return "", nil
	})
	return s.found(tier, err, "No-results message")
}

// WaitHistoryEmpty waits for the authoritative overlay to show the empty
// history message. It returns false when it does not appear within timeout.
func (s *Session) WaitHistoryEmpty(ctx context.Context, timeout time.Duration) (bool, error) {
	_, err := waits.For[bool](ctx, s.waitOptions(timeout, "empty history message"), func(ctx context.Context) (bool, error) {
		overlay, err := s.resolver.Resolve(ctx)
		if err != nil || overlay == nil {
			return false, err
		}
		return s.surface.historyEmpty(ctx, overlay)
	})
	return s.found("overlay", err, "Empty history message")
}

func (s *Session) found(where string, err error, what string) (bool, error) {
	if err != nil {
		if waits.IsTimeout(err) {
			s.logger.Info(what+" did not appear.", zap.Error(err))
			return false, nil
		}
		return false, err
	}
	s.logger.Debug(what+" found.", zap.String("tier", where))
	return true, nil
}

// input returns the search input, preferring the one inside the authoritative
// overlay, then the last visible one on the page, then any. nil when absent.
func (s *Session) input(ctx context.Context, overlay browser.Element) (browser.Element, error) {
	if overlay != nil {
		els, err := overlay.QueryAll(ctx, s.surface.Input)
		if err != nil {
			return nil, err
		}
		if len(els) > 0 {
			return els[0], nil
		}
	}
	els, err := s.page.QueryAll(ctx, s.surface.Input)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, nil
	}
	for i := len(els) - 1; i >= 0; i-- {
		if IsVisible(ctx, els[i]) {
			return els[i], nil
		}
	}
	return els[0], nil
}

// InputValue returns the search input's current value, or "" when there is no input.
func (s *Session) InputValue(ctx context.Context) (string, error) {
	v, err := retryStale(ctx, func(ctx context.Context) (string, error) {
		overlay, err := s.resolver.Resolve(ctx)
		if err != nil {
			return "", err
		}
		in, err := s.input(ctx, overlay)
		if err != nil || in == nil {
			return "", err
		}
		v, _, err := in.Attribute(ctx, "value")
		return v, err
	})
	if errors.Is(err, browser.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading search input: %w", err)
	}
	return v, nil
}

// clearButton returns the first visible, enabled clear affordance, looking in
// the authoritative overlay first and the whole page second.
func (s *Session) clearButton(ctx context.Context) (browser.Element, error) {
	overlay, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	scopes := []queryer{s.page}
	if overlay != nil {
		scopes = []queryer{overlay, s.page}
	}
	for _, scope := range scopes {
		buttons, err := visibleUnder(ctx, scope, s.surface.ClearButton)
		if err != nil {
			return nil, err
		}
		for _, b := range buttons {
			if enabled(ctx, b) {
				return b, nil
			}
		}
	}
	return nil, nil
}

func enabled(ctx context.Context, el browser.Element) bool {
	if _, disabled, err := el.Attribute(ctx, "disabled"); err != nil || disabled {
		return false
	}
	aria, _, err := el.Attribute(ctx, "aria-disabled")
	if err != nil {
		return false
	}
	return !strings.EqualFold(strings.TrimSpace(aria), "true")
}

// ClearSearch clicks the clear affordance and waits until the input is empty or
// the affordance has gone. It fails with a *PreconditionError straight away when
// the page has neither a search input nor an overlay, and with a
// *waits.TimeoutError when the affordance never becomes clickable.
func (s *Session) ClearSearch(ctx context.Context, timeout time.Duration) error {
	if err := s.checkClearable(ctx); err != nil {
		return err
	}
	start := s.clock.Now()
	remaining := func() time.Duration {
		if left := timeout - s.clock.Now().Sub(start); left > 0 {
			return left
		}
		return 0
	}

	clicked := false
	for !clicked {
		button, err := waits.For[browser.Element](ctx, s.waitOptions(remaining(), "clear affordance to be clickable"), s.clearButton)
		if err != nil {
			return err
		}
		switch err := button.Click(ctx); {
		case err == nil:
			clicked = true
		case (errors.Is(err, browser.ErrStale) || errors.Is(err, browser.ErrNotInteractable)) && remaining() > 0:
			s.logger.Debug("Clear affordance changed under the click, retrying.", zap.Error(err))
			if err := s.clock.Sleep(ctx, s.interval); err != nil {
				return err
			}
		default:
			return fmt.Errorf("clicking clear affordance: %w", err)
		}
	}

	return waits.Until(ctx, s.waitOptions(remaining(), "search input to be cleared"), func(ctx context.Context) (bool, error) {
		v, err := s.InputValue(ctx)
		if err != nil {
			return false, err
		}
		if v == "" {
			return true, nil
		}
		button, err := s.clearButton(ctx)
		if err != nil {
			return false, err
		}
		return button == nil, nil
	})
}

func (s *Session) checkClearable(ctx context.Context) error {
	overlay, err := s.resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	if overlay != nil {
		return nil
	}
	inputs, err := s.page.QueryAll(ctx, s.surface.Input)
	if err != nil && !browser.IsTransient(err) {
		return fmt.Errorf("looking for search input: %w", err)
	}
	if len(inputs) == 0 {
		return &PreconditionError{Op: "clear search", Missing: "search input or overlay"}
	}
	return nil
}

// retryStale runs fn again when the document re-renders under it.
func retryStale[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for i := 0; i < staleRetries; i++ {
		v, err = fn(ctx)
		if !errors.Is(err, browser.ErrStale) {
			return v, err
		}
	}
	return v, err
}
