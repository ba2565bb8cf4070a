package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/browser/fixture"
	"github.com/xkilldash9x/searchprobe/internal/waits"
)

// openSearch opens the sportsbook overlay and types query, the way a visitor would.
func openSearch(t *testing.T, query string, opts fixture.SportsbookOptions) (*fixture.Page, *waits.SteppingClock) {
	t.Helper()
	ctx := context.Background()
	clock := waits.NewSteppingClock(epoch)
	page := fixture.NewSportsbook(clock, opts)
	require.NoError(t, page.Navigate(ctx, "https://sportsbook.test/sportsbook"))

	accept, err := browser.QueryFirst(ctx, page, browser.CSS("#onetrust-accept-btn-handler"))
	require.NoError(t, err)
	require.NoError(t, accept.Click(ctx))

	trigger, err := browser.QueryFirst(ctx, page, browser.CSS("button.search-button"))
	require.NoError(t, err)
	require.NoError(t, trigger.Click(ctx))

	input, err := browser.QueryFirst(ctx, page, browser.CSS("#search-input"))
	require.NoError(t, err)
	require.NoError(t, input.SendKeys(ctx, query))
	require.NoError(t, input.Press(ctx, browser.KeyEnter))
	return page, clock
}

func TestSportsbookResults(t *testing.T) {
	ctx := context.Background()
	page, clock := openSearch(t, "football", fixture.DefaultSportsbookOptions())
	s := newSession(t, page, clock)

	observed, err := s.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, HistoryEmpty, observed.Kind, "the debounced overlay still shows the empty history")

	state, err := s.WaitSettled(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, SurfaceState{Kind: HasResults, Count: 9}, state)
	assert.GreaterOrEqual(t, clock.Now().Sub(epoch), 900*time.Millisecond, "debounce plus render delay")

	assert.Equal(t, 9, s.VisibleResultCount(ctx))
	assert.Equal(t, 9, s.VisibleResultCount(ctx))
	assert.True(t, s.HasVisibleRows(ctx))

	again, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, again)
}

func TestSportsbookNoResults(t *testing.T) {
	ctx := context.Background()
	page, clock := openSearch(t, "zzzzNoMatch", fixture.DefaultSportsbookOptions())
	s := newSession(t, page, clock)

	ok, err := s.WaitNoResultsMessage(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	state, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, NoResults, state.Kind)
	assert.False(t, s.HasVisibleRows(ctx))
	assert.Equal(t, 0, s.VisibleResultCount(ctx))
}

func TestSportsbookClear(t *testing.T) {
	ctx := context.Background()
	page, clock := openSearch(t, "tennis", fixture.DefaultSportsbookOptions())
	s := newSession(t, page, clock)

	state, err := s.WaitSettled(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, SurfaceState{Kind: HasResults, Count: 2}, state)

	require.NoError(t, s.ClearSearch(ctx, 20*time.Second))
	v, err := s.InputValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", v)

	ok, err := s.WaitHistoryEmpty(ctx, 15*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, page.History(), "click span.search-input__icon--clear")
}

func TestSportsbookGhostPaneIsIgnored(t *testing.T) {
	ctx := context.Background()
	page, clock := openSearch(t, "zzzzNoMatch", fixture.DefaultSportsbookOptions())
	s := newSession(t, page, clock)
	ok, err := s.WaitNoResultsMessage(ctx, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Re-opening search leaves the no-results pane behind the new one.
	trigger, err := browser.QueryFirst(ctx, page, browser.CSS("button.search-button"))
	require.NoError(t, err)
	require.NoError(t, trigger.Click(ctx))
	input, err := browser.QueryFirst(ctx, page, browser.CSS("#search-input"))
	require.NoError(t, err)
	require.NoError(t, input.SendKeys(ctx, "football"))

	state, err := s.WaitSettled(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, SurfaceState{Kind: HasResults, Count: 9}, state)

	overlay, err := s.Overlay(ctx)
	require.NoError(t, err)
	id, _, err := overlay.Attribute(ctx, "id")
	require.NoError(t, err)
	assert.Equal(t, "cdk-overlay-2", id)
}
