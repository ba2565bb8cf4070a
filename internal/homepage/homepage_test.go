package homepage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/browser/fixture"
	"github.com/xkilldash9x/searchprobe/internal/config"
	"github.com/xkilldash9x/searchprobe/internal/search"
	"github.com/xkilldash9x/searchprobe/internal/waits"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const siteURL = "https://sportsbook.test"

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newHome(t *testing.T, page browser.Page, clock waits.Clock) *HomePage {
	t.Helper()
	cfg := config.NewDefaultConfig()
	opts, err := OptionsFromConfig(cfg.Site, cfg.Search, clock, zaptest.NewLogger(t))
	require.NoError(t, err)
	return New(page, opts)
}

func newSportsbook(t *testing.T) (*fixture.Page, *waits.SteppingClock, *HomePage) {
	t.Helper()
	clock := waits.NewSteppingClock(epoch)
	page := fixture.NewSportsbook(clock, fixture.DefaultSportsbookOptions())
	return page, clock, newHome(t, page, clock)
}

func count(t *testing.T, page browser.Page, selector string) int {
	t.Helper()
	els, err := page.QueryAll(context.Background(), browser.CSS(selector))
	require.NoError(t, err)
	return len(els)
}

func TestLandingURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"https://example.com", "sportsbook", "https://example.com/sportsbook"},
		{"https://example.com/", "sportsbook", "https://example.com/sportsbook"},
		{"https://example.com/sportsbook", "sportsbook", "https://example.com/sportsbook"},
		{"https://example.com/en/sportsbook/live", "/sportsbook/", "https://example.com/en/sportsbook/live"},
		{"https://example.com", "", "https://example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LandingURL(tt.base, tt.path), "%s + %s", tt.base, tt.path)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	opts, err := OptionsFromConfig(cfg.Site, cfg.Search, nil, nil)
	require.NoError(t, err)
	require.Len(t, opts.ConsentButtons, 5)
	assert.Equal(t, browser.CSS("button#onetrust-accept-btn-handler"), opts.ConsentButtons[0])
	assert.Equal(t, browser.StrategyXPath, opts.ConsentButtons[2].Strategy)
	assert.Equal(t, browser.CSS("#search-input"), opts.Input)
	assert.Len(t, opts.SearchTriggers, 3)

	site := cfg.Site
	site.SearchTriggers = []string{" "}
	_, err = OptionsFromConfig(site, cfg.Search, nil, nil)
	assert.Error(t, err)

	sc := cfg.Search
	sc.Input = ""
	_, err = OptionsFromConfig(cfg.Site, sc, nil, nil)
	assert.Error(t, err)
}

func TestOpenDismissesConsent(t *testing.T) {
	ctx := context.Background()
	page, clock, home := newSportsbook(t)

	require.NoError(t, home.Open(ctx, siteURL))
	assert.Equal(t, siteURL+"/sportsbook", page.URL())
	assert.Zero(t, count(t, page, "#onetrust-banner-sdk"))
	assert.Contains(t, page.History(), "click button#onetrust-accept-btn-handler")
	assert.GreaterOrEqual(t, clock.Now().Sub(epoch), time.Second+consentClickPause)
}

func TestOpenFallsBackToEscape(t *testing.T) {
	ctx := context.Background()
	page, _, home := newSportsbook(t)
	page.OnNavigate(func(m *fixture.Mutator, _ string) error {
		return m.SetAttr("#onetrust-accept-btn-handler", "disabled", "")
	})

	require.NoError(t, home.Open(ctx, siteURL))
	assert.Zero(t, count(t, page, "#onetrust-banner-sdk"))
	assert.NotContains(t, page.History(), "click button#onetrust-accept-btn-handler")
}

func TestOpenWithoutBanner(t *testing.T) {
	ctx := context.Background()
	clock := waits.NewSteppingClock(epoch)
	opts := fixture.DefaultSportsbookOptions()
	opts.ConsentBanner = false
	page := fixture.NewSportsbook(clock, opts)
	home := newHome(t, page, clock)

	require.NoError(t, home.Open(ctx, siteURL+"/sportsbook"))
	assert.Equal(t, siteURL+"/sportsbook", page.URL())
	// The whole consent budget is spent looking before Escape is tried.
	assert.GreaterOrEqual(t, clock.Now().Sub(epoch), 9*time.Second)
}

func TestFocusSearchInputOpensOverlayOnce(t *testing.T) {
	ctx := context.Background()
	page, _, home := newSportsbook(t)
	require.NoError(t, home.Open(ctx, siteURL))

	require.NoError(t, home.FocusSearchInput(ctx, 5*time.Second))
	assert.Equal(t, 1, count(t, page, ".sports-search-panel"))

	require.NoError(t, home.FocusSearchInput(ctx, 5*time.Second))
	assert.Equal(t, 1, count(t, page, ".sports-search-panel"), "a visible input must not reopen the overlay")
}

func TestFocusSearchInputWithoutTrigger(t *testing.T) {
	ctx := context.Background()
	clock := waits.NewSteppingClock(epoch)
	page := fixture.MustNew(clock, `<html><body><main>No header here</main></body></html>`)
	home := newHome(t, page, clock)

	err := home.FocusSearchInput(ctx, 2*time.Second)
	require.Error(t, err)
	assert.True(t, waits.IsTimeout(err))
	assert.Contains(t, err.Error(), "search trigger not found")
}

func TestSubmitDrivesSearch(t *testing.T) {
	ctx := context.Background()
	page, clock, home := newSportsbook(t)
	require.NoError(t, home.Open(ctx, siteURL))

	require.NoError(t, search.Submit(ctx, home, "football", 15*time.Second))
	v, err := home.SearchValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "football", v)

	opts, err := search.OptionsFromConfig(config.NewDefaultConfig().Search, clock, zaptest.NewLogger(t))
	require.NoError(t, err)
	state, err := search.NewSession(page, opts).WaitSettled(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, search.SurfaceState{Kind: search.HasResults, Count: 9}, state)
}

func TestTypeQueryReplacesText(t *testing.T) {
	ctx := context.Background()
	_, _, home := newSportsbook(t)
	require.NoError(t, home.Open(ctx, siteURL))
	require.NoError(t, home.FocusSearchInput(ctx, 5*time.Second))

	require.NoError(t, home.TypeQuery(ctx, "foot", 5*time.Second))
	require.NoError(t, home.TypeQuery(ctx, "tennis", 5*time.Second))
	v, err := home.SearchValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tennis", v)
}

func TestSearchValueWithoutInput(t *testing.T) {
	_, _, home := newSportsbook(t)
	v, err := home.SearchValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestSuggestions(t *testing.T) {
	ctx := context.Background()

	t.Run("click first", func(t *testing.T) {
		page, clock, home := newSportsbook(t)
		require.NoError(t, home.Open(ctx, siteURL))
		require.NoError(t, home.FocusSearchInput(ctx, 5*time.Second))
		require.NoError(t, home.TypeQuery(ctx, "premier", 5*time.Second))

		sugg := home.Suggestions(2 * time.Second)
		ok, err := sugg.IsVisible(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, sugg.ClickFirst(ctx))
		v, err := home.SearchValue(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Football - England - Premier League", v)

		opts, err := search.OptionsFromConfig(config.NewDefaultConfig().Search, clock, zaptest.NewLogger(t))
		require.NoError(t, err)
		state, err := search.NewSession(page, opts).WaitSettled(ctx, 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, search.SurfaceState{Kind: search.HasResults, Count: 1}, state)
	})

	t.Run("none for unknown terms", func(t *testing.T) {
		_, clock, home := newSportsbook(t)
		require.NoError(t, home.Open(ctx, siteURL))
		require.NoError(t, home.FocusSearchInput(ctx, 5*time.Second))
		require.NoError(t, home.TypeQuery(ctx, "zzzzNoMatch", 5*time.Second))

		before := clock.Now()
		sugg := home.Suggestions(2 * time.Second)
		ok, err := sugg.IsVisible(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.GreaterOrEqual(t, clock.Now().Sub(before), 2*time.Second)

		err = sugg.ClickFirst(ctx)
		assert.ErrorIs(t, err, browser.ErrNotFound)
	})
}
