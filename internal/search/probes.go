package search

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/searchprobe/internal/browser"
)

// Surface describes the overlay markup: where things are and what the banners say.
type Surface struct {
	// Overlays are alternative patterns for an overlay instance, tried in order.
	Overlays     []browser.Locator
	Input        browser.Locator
	ResultsCount browser.Locator
	// CountPattern extracts the count from the indicator text; the first
	// submatch, or the whole match when there is none, must be an integer.
	CountPattern *regexp.Regexp
	VisibleRows  browser.Locator
	// HiddenRowClass marks rows the application keeps in the document but hides.
	HiddenRowClass     string
	NoResultsScoped    browser.Locator
	NoResultsBox       browser.Locator
	ClearButton        browser.Locator
	NoResultsPhrases   []string
	HistoryEmptyPhrase string
}

// Probe recognises one settled state inside an overlay. ok is false when the
// probe does not apply; errors are returned as-is so the caller can tell
// transient failures from hard ones.
type Probe struct {
	Name  string
	Match func(ctx context.Context, overlay browser.Element) (state SurfaceState, ok bool, err error)
}

// DefaultProbes is the standard settle procedure, first match wins:
// result count, result rows, scoped no-results banner.
func DefaultProbes(s Surface) []Probe {
	return []Probe{
		{Name: "result-count", Match: s.matchCount},
		{Name: "result-rows", Match: s.matchRows},
		{Name: "no-results", Match: s.matchNoResults},
	}
}

// HistoryProbe recognises the empty-history view. The overlay shows it before
// a query starts loading, so it must never settle a query.
func HistoryProbe(s Surface) Probe {
	return Probe{Name: "history-empty", Match: s.matchHistoryEmpty}
}

func (s Surface) matchCount(ctx context.Context, overlay browser.Element) (SurfaceState, bool, error) {
	count, ok, err := s.count(ctx, overlay)
	if err != nil || !ok {
		return SurfaceState{}, false, err
	}
	return resultsState(count), true, nil
}

func (s Surface) matchRows(ctx context.Context, overlay browser.Element) (SurfaceState, bool, error) {
	ok, err := s.hasRows(ctx, overlay)
	if err != nil || !ok {
		return SurfaceState{}, false, err
	}
	return resultsState(1), true, nil
}

func (s Surface) matchNoResults(ctx context.Context, overlay browser.Element) (SurfaceState, bool, error) {
	banner, err := firstVisibleUnder(ctx, overlay, s.NoResultsScoped)
	if err != nil || banner == nil {
		return SurfaceState{}, false, err
	}
	return SurfaceState{Kind: NoResults}, true, nil
}

func (s Surface) matchHistoryEmpty(ctx context.Context, overlay browser.Element) (SurfaceState, bool, error) {
	ok, err := s.historyEmpty(ctx, overlay)
	if err != nil || !ok {
		return SurfaceState{}, false, err
	}
	return SurfaceState{Kind: HistoryEmpty}, true, nil
}

// count reads the visible count indicator. ok is false when there is none.
// An indicator whose text does not parse sizes the count from the rows: 1 if
// any row is visible, else 0.
func (s Surface) count(ctx context.Context, overlay browser.Element) (int, bool, error) {
	indicator, err := firstVisibleUnder(ctx, overlay, s.ResultsCount)
	if err != nil || indicator == nil {
		return 0, false, err
	}
	text, err := indicator.Text(ctx)
	if err != nil {
		return 0, false, err
	}
	if n, ok := s.parseCount(text); ok {
		return n, true, nil
	}
	rows, err := s.hasRows(ctx, overlay)
	if err != nil {
		return 0, false, err
	}
	if rows {
		return 1, true, nil
	}
	return 0, true, nil
}

func (s Surface) parseCount(text string) (int, bool) {
	if s.CountPattern == nil {
		return 0, false
	}
	m := s.CountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	digits := m[0]
	if len(m) > 1 {
		digits = m[1]
	}
	n, err := strconv.Atoi(strings.TrimSpace(digits))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// hasRows reports whether any row is visible and not flagged hidden.
func (s Surface) hasRows(ctx context.Context, overlay browser.Element) (bool, error) {
	rows, err := visibleUnder(ctx, overlay, s.VisibleRows)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if s.HiddenRowClass != "" {
			classes, _, err := row.Attribute(ctx, "class")
			if err != nil {
				// A row re-rendered under us is not evidence of anything.
				continue
			}
			if hasClass(classes, s.HiddenRowClass) {
				continue
			}
		}
		return true, nil
	}
	return false, nil
}

func (s Surface) historyEmpty(ctx context.Context, overlay browser.Element) (bool, error) {
	if strings.TrimSpace(s.HistoryEmptyPhrase) == "" {
		return false, nil
	}
	boxes, err := visibleUnder(ctx, overlay, s.NoResultsBox)
	if err != nil {
		return false, err
	}
	for _, box := range boxes {
		text, err := box.Text(ctx)
		if err != nil {
			continue
		}
		if ContainsAll(text, s.HistoryEmptyPhrase) {
			return true, nil
		}
	}
	return false, nil
}

func hasClass(classes, class string) bool {
	for _, c := range strings.Fields(classes) {
		if c == class {
			return true
		}
	}
	return false
}
