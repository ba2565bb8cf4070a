package fixture

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/waits"
)

// SportsbookOptions scripts the offline sportsbook site.
type SportsbookOptions struct {
	// Catalog maps a lower-case search term to the result rows it produces.
	Catalog map[string][]string
	// InputDebounce is how long the overlay keeps its previous view, usually the
	// empty history, after input before it starts loading.
	InputDebounce time.Duration
	// RenderDelay is how long the overlay shows its loading state.
	RenderDelay time.Duration
	// ConsentBanner shows a cookie banner that must be dismissed.
	ConsentBanner bool
	// GhostPanes leaves a superseded overlay pane in the document each time
	// search is opened, the way the production overlay service does.
	GhostPanes bool
	// HiddenRows adds hidden result buckets next to the visible rows.
	HiddenRows int
	// Suggestions caps the typeahead list shown under the input. Zero disables it.
	Suggestions int
}

// DefaultCatalog backs the offline sportsbook.
func DefaultCatalog() map[string][]string {
	return map[string][]string{
		"football": {
			"Football - England - Premier League",
			"Football - Spain - LaLiga",
			"Football - Germany - Bundesliga",
			"Football - Italy - Serie A",
			"Football - France - Ligue 1",
			"Football - UEFA Champions League",
			"Football - UEFA Europa League",
			"American Football - NFL",
			"Football - Netherlands - Eredivisie",
		},
		"tennis": {
			"Tennis - ATP Tour",
			"Tennis - WTA Tour",
		},
	}
}

// DefaultSportsbookOptions mirrors the production site's behaviour.
func DefaultSportsbookOptions() SportsbookOptions {
	return SportsbookOptions{
		Catalog:       DefaultCatalog(),
		InputDebounce: 300 * time.Millisecond,
		RenderDelay:   600 * time.Millisecond,
		ConsentBanner: true,
		GhostPanes:    true,
		HiddenRows:    2,
		Suggestions:   3,
	}
}

const sportsbookShell = `<!DOCTYPE html>
<html>
<head><title>Sportsbook</title></head>
<body>
  <header class="header">
    <button class="search-button" type="button">
      <span class="search-button__text search-button--sport">Search</span>
    </button>
  </header>
  <main class="sportsbook"><h1>Sportsbook</h1></main>
  <div class="cdk-overlay-container"></div>
</body>
</html>`

const consentBanner = `<div id="onetrust-banner-sdk" class="consent">
  <p>We use cookies.</p>
  <button id="onetrust-accept-btn-handler" type="button">Accept all cookies</button>
</div>`

// NewSportsbook builds an offline copy of the sportsbook search surface.
func NewSportsbook(clock waits.Clock, opts SportsbookOptions) *Page {
	p := MustNew(clock, sportsbookShell)
	site := &sportsbook{opts: opts}

	p.OnNavigate(func(m *Mutator, _ string) error {
		site.panes = 0
		if opts.ConsentBanner {
			return m.Append("body", consentBanner)
		}
		return nil
	})
	p.OnClick("#onetrust-accept-btn-handler", func(m *Mutator) error {
		return m.Remove("#onetrust-banner-sdk")
	})
	p.OnKey("", browser.KeyEscape, func(m *Mutator) error {
		if m.Count("#onetrust-banner-sdk") > 0 {
			return m.Remove("#onetrust-banner-sdk")
		}
		return nil
	})
	p.OnClick(".search-button", site.open)
	p.OnType("#search-input", site.input)
	p.OnKey("#search-input", browser.KeyEnter, site.input)
	p.OnClick(".search-input__icon--clear", site.clear)
	p.OnClick("[role='option']", site.pick)
	// The first navigation also installs the banner.
	_ = p.Mutate(func(m *Mutator) error {
		if opts.ConsentBanner {
			return m.Append("body", consentBanner)
		}
		return nil
	})
	return p
}

type sportsbook struct {
	opts  SportsbookOptions
	panes int
}

func (s *sportsbook) paneSelector() string {
	return fmt.Sprintf("#cdk-overlay-%d", s.panes)
}

func (s *sportsbook) open(m *Mutator) error {
	if s.panes > 0 && !s.opts.GhostPanes {
		return nil
	}
	if s.opts.GhostPanes && s.panes > 0 {
		// The superseded pane stays in the document, still showing its last render.
		if err := m.RemoveAttr(s.paneSelector()+" #search-input", "id"); err != nil {
			return err
		}
	}
	s.panes++
	pane := fmt.Sprintf(`<div id="cdk-overlay-%d" class="cdk-overlay-pane sports-search-panel">
  <div class="search-input">
    <input id="search-input" type="text" autocomplete="off" value="">
    <span class="search-input__icon--clear" style="display:none">&#x2715;</span>
  </div>
  <div class="search-suggestions-host"></div>
  <div class="search-dropdown-host">%s</div>
</div>`, s.panes, historyEmptyMarkup)
	return m.Append(".cdk-overlay-container", pane)
}

func (s *sportsbook) input(m *Mutator) error {
	pane := s.paneSelector()
	m.Cancel()
	query := m.Value(pane + " #search-input")
	if strings.TrimSpace(query) == "" {
		if err := m.Hide(pane + " .search-input__icon--clear"); err != nil {
			return err
		}
		if err := s.suggest(m, ""); err != nil {
			return err
		}
		return m.Replace(pane+" .search-dropdown-host", `<div class="search-dropdown-host">`+historyEmptyMarkup+`</div>`)
	}
	if err := m.Show(pane + " .search-input__icon--clear"); err != nil {
		return err
	}
	if err := s.suggest(m, query); err != nil {
		return err
	}
	if s.opts.InputDebounce > 0 {
		m.After(s.opts.InputDebounce, s.load(pane))
		return nil
	}
	return s.load(pane)(m)
}

// load shows the loading state in pane and schedules the results.
func (s *sportsbook) load(pane string) Action {
	return func(m *Mutator) error {
		if err := m.Replace(pane+" .search-dropdown-host", `<div class="search-dropdown-host"><div class="search-dropdown search-dropdown--loading"><span class="spinner"></span></div></div>`); err != nil {
			return err
		}
		m.After(s.opts.RenderDelay, func(m *Mutator) error {
			return m.Replace(pane+" .search-dropdown-host", `<div class="search-dropdown-host">`+s.results(m.Value(pane+" #search-input"))+`</div>`)
		})
		return nil
	}
}

func (s *sportsbook) clear(m *Mutator) error {
	pane := s.paneSelector()
	m.Cancel()
	if err := m.SetValue(pane+" #search-input", ""); err != nil {
		return err
	}
	if err := m.Hide(pane + " .search-input__icon--clear"); err != nil {
		return err
	}
	if err := s.suggest(m, ""); err != nil {
		return err
	}
	m.After(s.opts.RenderDelay/2, func(m *Mutator) error {
		return m.Replace(pane+" .search-dropdown-host", `<div class="search-dropdown-host">`+historyEmptyMarkup+`</div>`)
	})
	return nil
}

// suggest renders the typeahead list for query under the current pane's input.
func (s *sportsbook) suggest(m *Mutator, query string) error {
	var b strings.Builder
	b.WriteString(`<div class="search-suggestions-host">`)
	if s.opts.Suggestions > 0 && strings.TrimSpace(query) != "" {
		rows := s.lookup(query)
		if len(rows) > s.opts.Suggestions {
			rows = rows[:s.opts.Suggestions]
		}
		if len(rows) > 0 {
			b.WriteString(`<ul class="suggestions" role="listbox">`)
			for _, r := range rows {
				fmt.Fprintf(&b, `<li role="option">%s</li>`, html.EscapeString(r))
			}
			b.WriteString(`</ul>`)
		}
	}
	b.WriteString(`</div>`)
	return m.Replace(s.paneSelector()+" .search-suggestions-host", b.String())
}

// pick copies a suggestion into the input and searches for it.
func (s *sportsbook) pick(m *Mutator) error {
	if err := m.SetValue(s.paneSelector()+" #search-input", m.TargetText()); err != nil {
		return err
	}
	return s.input(m)
}

const historyEmptyMarkup = `<div class="search-dropdown search-dropdown--history">
  <div class="search-no-results">Search&nbsp;History is   empty</div>
</div>`

const noResultsMarkup = `<div class="search-dropdown search-dropdown--no-results">
  <div class="search-no-results">There are no results that match your search.&nbsp;Try again.</div>
</div>`

func (s *sportsbook) results(query string) string {
	rows := s.lookup(query)
	if len(rows) == 0 {
		return noResultsMarkup
	}
	var b strings.Builder
	b.WriteString(`<div class="search-dropdown search-dropdown--results">`)
	fmt.Fprintf(&b, `<div class="search-results-count">Search results (%d)</div>`, len(rows))
	for i := 0; i < s.opts.HiddenRows; i++ {
		fmt.Fprintf(&b, `<div class="search-dropdown__item search-dropdown__item--hidden">Bucket %d</div>`, i+1)
	}
	for _, r := range rows {
		fmt.Fprintf(&b, `<div class="search-dropdown__item"><a href="#">%s</a></div>`, html.EscapeString(r))
	}
	b.WriteString(`</div>`)
	return b.String()
}

func (s *sportsbook) lookup(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if rows, ok := s.opts.Catalog[q]; ok {
		return rows
	}
	seen := make(map[string]bool)
	var out []string
	terms := make([]string, 0, len(s.opts.Catalog))
	for term := range s.opts.Catalog {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	for _, term := range terms {
		for _, row := range s.opts.Catalog[term] {
			if strings.Contains(strings.ToLower(row), q) && !seen[row] {
				seen[row] = true
				out = append(out, row)
			}
		}
	}
	return out
}
