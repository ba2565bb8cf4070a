package fixture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/waits"
)

func openSportsbook(t *testing.T, opts SportsbookOptions) (*Page, *waits.SteppingClock) {
	t.Helper()
	clock := waits.NewSteppingClock(epoch)
	page := NewSportsbook(clock, opts)
	require.NoError(t, page.Navigate(context.Background(), "https://sportsbook.test/en/sports"))
	return page, clock
}

func count(t *testing.T, page *Page, selector string) int {
	t.Helper()
	els, err := page.QueryAll(context.Background(), browser.CSS(selector))
	require.NoError(t, err)
	return len(els)
}

func click(t *testing.T, page *Page, selector string) {
	t.Helper()
	els, err := page.QueryAll(context.Background(), browser.CSS(selector))
	require.NoError(t, err)
	require.NotEmpty(t, els, selector)
	require.NoError(t, els[len(els)-1].Click(context.Background()))
}

func typeInto(t *testing.T, page *Page, text string) {
	t.Helper()
	input, err := browser.QueryFirst(context.Background(), page, browser.CSS("#search-input"))
	require.NoError(t, err)
	require.NoError(t, input.SendKeys(context.Background(), text))
}

func TestSportsbookConsentBanner(t *testing.T) {
	t.Run("accept button", func(t *testing.T) {
		page, _ := openSportsbook(t, DefaultSportsbookOptions())
		assert.Equal(t, 1, count(t, page, "#onetrust-banner-sdk"))
		click(t, page, "#onetrust-accept-btn-handler")
		assert.Zero(t, count(t, page, "#onetrust-banner-sdk"))
	})

	t.Run("escape", func(t *testing.T) {
		page, _ := openSportsbook(t, DefaultSportsbookOptions())
		require.NoError(t, page.PressKey(context.Background(), browser.KeyEscape))
		assert.Zero(t, count(t, page, "#onetrust-banner-sdk"))
	})

	t.Run("disabled", func(t *testing.T) {
		opts := DefaultSportsbookOptions()
		opts.ConsentBanner = false
		page, _ := openSportsbook(t, opts)
		assert.Zero(t, count(t, page, "#onetrust-banner-sdk"))
	})
}

func TestSportsbookResults(t *testing.T) {
	page, clock := openSportsbook(t, DefaultSportsbookOptions())
	click(t, page, ".search-button")
	assert.Equal(t, 1, count(t, page, ".cdk-overlay-pane"))
	assert.Equal(t, 1, count(t, page, ".search-dropdown--history"), "a fresh overlay shows the empty history")

	typeInto(t, page, "football")
	assert.Equal(t, 1, count(t, page, ".search-dropdown--history"), "input is debounced")
	assert.Zero(t, count(t, page, ".search-dropdown--loading"))

	clock.Advance(300 * time.Millisecond)
	assert.Zero(t, count(t, page, ".search-dropdown--history"))
	assert.Equal(t, 1, count(t, page, ".search-dropdown--loading"))
	assert.Zero(t, count(t, page, ".search-results-count"))

	clock.Advance(600 * time.Millisecond)
	assert.Zero(t, count(t, page, ".search-dropdown--loading"))
	assert.Equal(t, 9, count(t, page, ".search-dropdown__item:not(.search-dropdown__item--hidden)"))
	assert.Equal(t, 2, count(t, page, ".search-dropdown__item--hidden"))

	indicator, err := browser.QueryFirst(context.Background(), page, browser.CSS(".search-results-count"))
	require.NoError(t, err)
	text, err := indicator.Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Search results (9)", text)
}

func TestSportsbookWithoutDebounce(t *testing.T) {
	opts := DefaultSportsbookOptions()
	opts.InputDebounce = 0
	page, clock := openSportsbook(t, opts)
	click(t, page, ".search-button")
	typeInto(t, page, "tennis")
	assert.Equal(t, 1, count(t, page, ".search-dropdown--loading"), "loads as soon as text is typed")
	clock.Advance(600 * time.Millisecond)
	assert.Equal(t, 2, count(t, page, ".search-dropdown__item:not(.search-dropdown__item--hidden)"))
}

func TestSportsbookTypingRestartsDebounce(t *testing.T) {
	page, clock := openSportsbook(t, DefaultSportsbookOptions())
	click(t, page, ".search-button")
	typeInto(t, page, "foot")
	clock.Advance(200 * time.Millisecond)
	typeInto(t, page, "ball")
	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, count(t, page, ".search-dropdown--history"), "the second keystroke restarted the debounce")
	clock.Advance(700 * time.Millisecond)
	assert.Equal(t, 9, count(t, page, ".search-dropdown__item:not(.search-dropdown__item--hidden)"))
	assert.Empty(t, page.Errors())
}

func TestSportsbookSubstringMatch(t *testing.T) {
	page, clock := openSportsbook(t, DefaultSportsbookOptions())
	click(t, page, ".search-button")
	typeInto(t, page, "UEFA")
	clock.Advance(time.Second)
	assert.Equal(t, 2, count(t, page, ".search-dropdown__item:not(.search-dropdown__item--hidden)"))
}

func TestSportsbookNoResults(t *testing.T) {
	page, clock := openSportsbook(t, DefaultSportsbookOptions())
	click(t, page, ".search-button")
	typeInto(t, page, "zzzzNoMatch")
	require.NoError(t, page.PressKey(context.Background(), browser.KeyEnter))
	clock.Advance(900 * time.Millisecond)

	assert.Zero(t, count(t, page, ".search-dropdown__item"))
	banner, err := browser.QueryFirst(context.Background(), page, browser.CSS(".search-dropdown--no-results .search-no-results"))
	require.NoError(t, err)
	text, err := banner.Text(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "There are no results that match your search.")
	assert.Contains(t, text, "\u00a0Try again.", "the banner keeps its non-breaking space")
}

func TestSportsbookClear(t *testing.T) {
	page, clock := openSportsbook(t, DefaultSportsbookOptions())
	click(t, page, ".search-button")
	assert.Zero(t, count(t, page, ".search-input__icon--clear:not([style])"), "hidden until there is text")

	typeInto(t, page, "tennis")
	clock.Advance(900 * time.Millisecond)
	click(t, page, ".search-input__icon--clear")

	input, err := browser.QueryFirst(context.Background(), page, browser.CSS("#search-input"))
	require.NoError(t, err)
	v, _, err := input.Attribute(context.Background(), "value")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	// Results linger until the history view renders.
	assert.Equal(t, 1, count(t, page, ".search-results-count"))
	clock.Advance(300 * time.Millisecond)
	assert.Zero(t, count(t, page, ".search-results-count"))
	assert.Equal(t, 1, count(t, page, ".search-dropdown--history .search-no-results"))
}

func TestSportsbookGhostPanes(t *testing.T) {
	page, clock := openSportsbook(t, DefaultSportsbookOptions())
	click(t, page, ".search-button")
	typeInto(t, page, "tennis")
	clock.Advance(900 * time.Millisecond)

	click(t, page, ".search-button")
	assert.Equal(t, 2, count(t, page, ".cdk-overlay-pane"))
	assert.Equal(t, 1, count(t, page, "#search-input"), "only the live pane keeps the input id")
	assert.Equal(t, 1, count(t, page, ".search-results-count"), "the ghost still shows its last render")

	typeInto(t, page, "football")
	clock.Advance(900 * time.Millisecond)
	assert.Equal(t, 2, count(t, page, ".search-results-count"))

	live, err := page.QueryAll(context.Background(), browser.CSS("#cdk-overlay-2 .search-results-count"))
	require.NoError(t, err)
	require.Len(t, live, 1)
	text, err := live[0].Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Search results (9)", text)

	t.Run("navigation resets the overlay", func(t *testing.T) {
		require.NoError(t, page.Navigate(context.Background(), "https://sportsbook.test/en/sports"))
		assert.Zero(t, count(t, page, ".cdk-overlay-pane"))
		click(t, page, ".search-button")
		assert.Equal(t, 1, count(t, page, "#cdk-overlay-1"))
	})
}

func TestSportsbookSuggestions(t *testing.T) {
	page, clock := openSportsbook(t, DefaultSportsbookOptions())
	click(t, page, ".search-button")
	typeInto(t, page, "football")
	assert.Equal(t, 3, count(t, page, "[role='listbox'] [role='option']"), "capped at three")

	click(t, page, "[role='listbox'] [role='option']")
	input, err := browser.QueryFirst(context.Background(), page, browser.CSS("#search-input"))
	require.NoError(t, err)
	v, _, err := input.Attribute(context.Background(), "value")
	require.NoError(t, err)
	assert.Equal(t, "Football - Germany - Bundesliga", v)

	clock.Advance(900 * time.Millisecond)
	assert.Equal(t, 1, count(t, page, ".search-dropdown__item:not(.search-dropdown__item--hidden)"))

	t.Run("disabled", func(t *testing.T) {
		opts := DefaultSportsbookOptions()
		opts.Suggestions = 0
		page, _ := openSportsbook(t, opts)
		click(t, page, ".search-button")
		typeInto(t, page, "football")
		assert.Zero(t, count(t, page, "[role='option']"))
	})
}
