package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/browser/fixture"
	"github.com/xkilldash9x/searchprobe/internal/config"
	"github.com/xkilldash9x/searchprobe/internal/waits"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Site.BaseURL = "https://sportsbook.test"
	cfg.Runner.Concurrency = 1
	cfg.Runner.StartsPerSecond = 0
	cfg.Runner.ArtifactsDir = t.TempDir()
	return cfg
}

func newRunner(t *testing.T, cfg *config.Config, provider PageProvider, clock waits.Clock) *Runner {
	t.Helper()
	r, err := NewRunner(provider, cfg, clock, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func mustParse(t *testing.T, lines ...string) []Step {
	t.Helper()
	steps := make([]Step, 0, len(lines))
	for _, l := range lines {
		s, err := ParseStep(l)
		require.NoError(t, err)
		steps = append(steps, s)
	}
	return steps
}

func TestRunDefaultScenariosOffline(t *testing.T) {
	clock := waits.NewSteppingClock(epoch)
	cfg := testConfig(t)
	r := newRunner(t, cfg, NewOfflineProvider(clock), clock)
	f, err := Default()
	require.NoError(t, err)

	report, err := r.Run(context.Background(), f.Scenarios)
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	for _, res := range report.Results {
		assert.Equal(t, StatusPassed, res.Status, "%s: %s", res.Scenario, res.Message)
		assert.Empty(t, res.Screenshot)
		for _, st := range res.Steps {
			assert.Equal(t, StatusPassed, st.Status, "%s / %s", res.Scenario, st.Step)
		}
	}
	assert.True(t, report.Passed())
	assert.Equal(t, map[Status]int{StatusPassed: 3}, report.Counts())
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, epoch, report.StartedAt)
	assert.Positive(t, report.Duration)
}

func TestRunConcurrently(t *testing.T) {
	clock := waits.NewSteppingClock(epoch)
	cfg := testConfig(t)
	cfg.Runner.Concurrency = 3
	r := newRunner(t, cfg, NewOfflineProvider(clock), clock)

	var scenarios []Scenario
	for i := 0; i < 6; i++ {
		scenarios = append(scenarios, Scenario{
			Name:  fmt.Sprintf("tennis-%d", i),
			Steps: mustParse(t, "open", "search tennis", "expect count 2"),
		})
	}
	report, err := r.Run(context.Background(), scenarios)
	require.NoError(t, err)
	require.Len(t, report.Results, 6)
	for i, res := range report.Results {
		assert.Equal(t, fmt.Sprintf("tennis-%d", i), res.Scenario, "results keep scenario order")
		assert.Equal(t, StatusPassed, res.Status, res.Message)
	}
}

func TestFailedExpectationSkipsRestAndCapturesPage(t *testing.T) {
	clock := waits.NewSteppingClock(epoch)
	cfg := testConfig(t)
	r := newRunner(t, cfg, NewOfflineProvider(clock), clock)

	sc := Scenario{
		Name:  "wrong count/football",
		Steps: mustParse(t, "open", "search football", "expect count 5", "clear", "expect input_empty"),
	}
	report, err := r.Run(context.Background(), []Scenario{sc})
	require.NoError(t, err)
	res := report.Results[0]

	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Message, "expected 5 results, got 9")
	require.Len(t, res.Steps, 5)
	assert.Equal(t, StatusFailed, res.Steps[2].Status)
	assert.Equal(t, StatusSkipped, res.Steps[3].Status)
	assert.Equal(t, StatusSkipped, res.Steps[4].Status)
	assert.False(t, report.Passed())

	require.NotEmpty(t, res.Screenshot)
	assert.Equal(t, filepath.Join(cfg.Runner.ArtifactsDir, report.ID, "wrong_count_football.html"), res.Screenshot)
	shot, err := os.ReadFile(res.Screenshot)
	require.NoError(t, err)
	assert.Contains(t, string(shot), "Search results (9)")
}

func TestExpectationsThatDoNotHold(t *testing.T) {
	tests := []struct {
		name  string
		steps []string
		want  string
	}{
		{"results for nonsense", []string{"open", "search zzzzNoMatch", "expect results"}, "settled as no_results"},
		{"rows for a hit", []string{"open", "search football", "expect results", "expect no_rows"}, "result rows are visible"},
		{"banner for a hit", []string{"open", "search tennis", "expect no_results_message"}, "did not appear"},
		{"input after typing", []string{"open", "type tennis", "expect input_empty"}, `still holds "tennis"`},
		{"suggestions for nonsense", []string{"open", "type zzzz", "expect suggestions"}, "no suggestions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := waits.NewSteppingClock(epoch)
			cfg := testConfig(t)
			cfg.Runner.ArtifactsDir = ""
			r := newRunner(t, cfg, NewOfflineProvider(clock), clock)

			report, err := r.Run(context.Background(), []Scenario{{Name: "x", Steps: mustParse(t, tt.steps...)}})
			require.NoError(t, err)
			res := report.Results[0]
			assert.Equal(t, StatusFailed, res.Status)
			assert.Contains(t, res.Message, tt.want)
			assert.Empty(t, res.Screenshot)
		})
	}
}

func TestSuggestionSteps(t *testing.T) {
	clock := waits.NewSteppingClock(epoch)
	r := newRunner(t, testConfig(t), NewOfflineProvider(clock), clock)

	sc := Scenario{Name: "typeahead", Steps: mustParse(t, "open", "type premier", "expect suggestions", "pick_suggestion", "expect count 1")}
	report, err := r.Run(context.Background(), []Scenario{sc})
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, report.Results[0].Status, report.Results[0].Message)
}

func TestScenarioURLOverridesBase(t *testing.T) {
	clock := waits.NewSteppingClock(epoch)
	var visited []string
	provider := providerFunc(func(ctx context.Context, fn func(context.Context, browser.Page) error) error {
		return NewOfflineProvider(clock).WithPage(ctx, func(ctx context.Context, page browser.Page) error {
			err := fn(ctx, page)
			visited = append(visited, page.(interface{ URL() string }).URL())
			return err
		})
	})
	r := newRunner(t, testConfig(t), provider, clock)

	_, err := r.Run(context.Background(), []Scenario{
		{Name: "base", Steps: mustParse(t, "open")},
		{Name: "override", URL: "https://mirror.test/", Steps: mustParse(t, "open")},
		{Name: "explicit", URL: "https://mirror.test", Steps: mustParse(t, "open https://other.test/sportsbook")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://sportsbook.test/sportsbook",
		"https://mirror.test/sportsbook",
		"https://other.test/sportsbook",
	}, visited)
}

type providerFunc func(ctx context.Context, fn func(context.Context, browser.Page) error) error

func (f providerFunc) WithPage(ctx context.Context, fn func(context.Context, browser.Page) error) error {
	return f(ctx, fn)
}

func TestOfflineProviderReportsRenderFailures(t *testing.T) {
	clock := waits.NewSteppingClock(epoch)
	provider := NewOfflineProvider(clock)

	err := provider.WithPage(context.Background(), func(ctx context.Context, page browser.Page) error {
		fp, ok := page.(*fixture.Page)
		require.True(t, ok)
		fp.After(time.Second, func(m *fixture.Mutator) error {
			return m.SetInner("#cdk-overlay-7 .search-dropdown-host", "")
		})
		clock.Advance(time.Second)
		_, err := page.QueryAll(ctx, browser.CSS(".cdk-overlay-pane"))
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrNotFound)
	assert.Contains(t, err.Error(), "offline page failed to render")

	t.Run("clean pages pass", func(t *testing.T) {
		err := provider.WithPage(context.Background(), func(ctx context.Context, page browser.Page) error {
			return page.Navigate(ctx, "https://sportsbook.test/sportsbook")
		})
		assert.NoError(t, err)
	})
}

func TestProviderFailureIsAnError(t *testing.T) {
	clock := waits.NewSteppingClock(epoch)
	boom := errors.New("no browser")
	r := newRunner(t, testConfig(t), providerFunc(func(context.Context, func(context.Context, browser.Page) error) error {
		return boom
	}), clock)

	report, err := r.Run(context.Background(), []Scenario{{Name: "x", Steps: mustParse(t, "open")}})
	require.NoError(t, err)
	assert.Equal(t, StatusErrored, report.Results[0].Status)
	assert.Equal(t, "no browser", report.Results[0].Message)
	assert.Equal(t, map[Status]int{StatusErrored: 1}, report.Counts())
}

func TestRunHonoursCancellation(t *testing.T) {
	clock := waits.NewSteppingClock(epoch)
	r := newRunner(t, testConfig(t), NewOfflineProvider(clock), clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Run(ctx, []Scenario{
		{Name: "a", Steps: mustParse(t, "open")},
		{Name: "b", Steps: mustParse(t, "open")},
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		assert.NotEqual(t, StatusPassed, res.Status)
	}
}

func TestOfflineProviderRecoversPanics(t *testing.T) {
	p := NewOfflineProvider(waits.NewSteppingClock(epoch))
	err := p.WithPage(context.Background(), func(context.Context, browser.Page) error {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, StatusPassed, classify(nil))
	assert.Equal(t, StatusFailed, classify(fmt.Errorf("step: %w", &ExpectationError{Step: "expect results", Message: "no"})))
	assert.Equal(t, StatusFailed, classify(fmt.Errorf("wrapped: %w", &waits.TimeoutError{Message: "overlay"})))
	assert.Equal(t, StatusErrored, classify(errors.New("connection reset")))
	assert.Equal(t, StatusErrored, classify(context.DeadlineExceeded))
}

func TestNewRunnerRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.CountPattern = "("
	_, err := NewRunner(NewOfflineProvider(nil), cfg, nil, nil)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Site.SearchTriggers = nil
	_, err = NewRunner(NewOfflineProvider(nil), cfg, nil, nil)
	assert.Error(t, err)
}
