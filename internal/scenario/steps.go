package scenario

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/homepage"
	"github.com/xkilldash9x/searchprobe/internal/search"
)

// execution holds the page objects of one scenario run.
type execution struct {
	runner   *Runner
	scenario Scenario
	page     browser.Page
	home     *homepage.HomePage
	session  *search.Session
}

func (r *Runner) newExecution(sc Scenario, page browser.Page) *execution {
	return &execution{
		runner:   r,
		scenario: sc,
		page:     page,
		home:     homepage.New(page, r.homeOpts),
		session:  search.NewSession(page, r.searchOpts),
	}
}

func (e *execution) do(ctx context.Context, step Step) error {
	t := e.runner.cfg.Search
	switch step.Verb {
	case VerbOpen:
		url := step.Arg
		if url == "" {
			url = e.scenario.URL
		}
		if url == "" {
			url = e.runner.cfg.Site.BaseURL
		}
		return e.home.Open(ctx, url)
	case VerbSearch:
		return search.Submit(ctx, e.home, step.Arg, t.InputTimeout)
	case VerbType:
		if err := e.home.FocusSearchInput(ctx, t.InputTimeout); err != nil {
			return err
		}
		return e.home.TypeQuery(ctx, step.Arg, t.InputTimeout)
	case VerbSubmit:
		return e.home.SubmitQuery(ctx, t.InputTimeout)
	case VerbClear:
		return e.session.ClearSearch(ctx, t.ClearTimeout)
	case VerbPickSuggestion:
		return e.home.Suggestions(t.InputTimeout).ClickFirst(ctx)
	case VerbExpect:
		return e.expect(ctx, step)
	}
	return fmt.Errorf("unknown step %q", step.Raw)
}

func (e *execution) expect(ctx context.Context, step Step) error {
	t := e.runner.cfg.Search
	switch step.Expect {
	case ExpectResults:
		state, err := e.session.WaitSettled(ctx, t.SettleTimeout)
		if err != nil {
			return err
		}
		if state.Kind != search.HasResults {
			return failf(step, "expected results, the overlay settled as %s", state)
		}
		if !e.session.HasVisibleRows(ctx) {
			return failf(step, "the overlay reports %s but shows no rows", state)
		}
	case ExpectCount:
		if _, err := e.session.WaitSettled(ctx, t.SettleTimeout); err != nil {
			return err
		}
		if got := e.session.VisibleResultCount(ctx); got != step.Count {
			return failf(step, "expected %d results, got %d", step.Count, got)
		}
	case ExpectNoRows:
		if e.session.HasVisibleRows(ctx) {
			return failf(step, "result rows are visible")
		}
	case ExpectNoResultsMessage:
		ok, err := e.session.WaitNoResultsMessage(ctx, t.MessageTimeout)
		if err != nil {
			return err
		}
		if !ok {
			return failf(step, "no-results message did not appear within %s", t.MessageTimeout)
		}
	case ExpectHistoryEmpty:
		ok, err := e.session.WaitHistoryEmpty(ctx, t.HistoryTimeout)
		if err != nil {
			return err
		}
		if !ok {
			return failf(step, "empty history message did not appear within %s", t.HistoryTimeout)
		}
	case ExpectInputEmpty:
		v, err := e.session.InputValue(ctx)
		if err != nil {
			return err
		}
		if v != "" {
			return failf(step, "search input still holds %q", v)
		}
	case ExpectSuggestions:
		ok, err := e.home.Suggestions(t.InputTimeout).IsVisible(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return failf(step, "no suggestions within %s", t.InputTimeout)
		}
	default:
		return fmt.Errorf("unknown expectation %q", step.Expect)
	}
	return nil
}
