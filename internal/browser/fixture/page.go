// Package fixture implements browser.Page over an in-memory HTML document.
// Scripted handlers and clock-scheduled mutations stand in for the application's
// asynchronous rendering, so the search engine can be exercised without Chrome.
package fixture

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/waits"
)

// Action mutates the document. It runs with the page locked.
type Action func(m *Mutator) error

type scheduled struct {
	at     time.Time
	seq    int
	action Action
}

type handler struct {
	selector string
	key      browser.Key
	action   Action
}

// Page is an in-memory browser.Page. All methods are safe for concurrent use.
type Page struct {
	mu sync.Mutex

	source string
	doc    *html.Node
	url    string
	clock  waits.Clock

	focused *html.Node
	pending []scheduled
	seq     int

	onNavigate []func(m *Mutator, url string) error
	onClick    []handler
	onType     []handler
	onKey      []handler

	history []string
	errs    []error
}

var (
	_ browser.Page          = (*Page)(nil)
	_ browser.Screenshotter = (*Page)(nil)
)

// New builds a page serving source. Navigate reloads source, so every handle from
// before the navigation becomes stale.
func New(clock waits.Clock, source string) (*Page, error) {
	if clock == nil {
		clock = waits.RealClock()
	}
	p := &Page{source: source, clock: clock, url: "about:blank"}
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("fixture: failed to parse document: %w", err)
	}
	p.doc = doc
	return p, nil
}

// MustNew is New for tests and static documents.
func MustNew(clock waits.Clock, source string) *Page {
	p, err := New(clock, source)
	if err != nil {
		panic(err)
	}
	return p
}

// OnNavigate registers a hook that runs after every navigation.
func (p *Page) OnNavigate(fn func(m *Mutator, url string) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate = append(p.onNavigate, fn)
}

// OnClick runs action when an element matching selector, or a descendant of one, is clicked.
func (p *Page) OnClick(selector string, action Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick = append(p.onClick, handler{selector: selector, action: action})
}

// OnType runs action after text is typed into, or cleared from, a matching element.
func (p *Page) OnType(selector string, action Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onType = append(p.onType, handler{selector: selector, action: action})
}

// OnKey runs action when key is pressed while a matching element has focus.
// An empty selector matches any focus target, including none.
func (p *Page) OnKey(selector string, key browser.Key, action Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onKey = append(p.onKey, handler{selector: selector, key: key, action: action})
}

// After schedules action to run once the clock has moved d past now.
func (p *Page) After(d time.Duration, action Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.schedule(d, action)
}

// Mutate runs action immediately.
func (p *Page) Mutate(action Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return action(&Mutator{page: p})
}

// History lists the user actions the page received, e.g. "click .search-button".
func (p *Page) History() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.history...)
}

// Errors returns the failures of scheduled actions, oldest first. A scheduled
// action has no caller to report to, so its error is kept here and noted in
// History.
func (p *Page) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errs...)
}

// URL returns the last navigated URL.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// HTML renders the current document.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	var buf bytes.Buffer
	_ = html.Render(&buf, p.doc)
	return buf.String()
}

func (p *Page) schedule(d time.Duration, action Action) {
	p.scheduleAt(p.clock.Now().Add(d), action)
}

func (p *Page) scheduleAt(at time.Time, action Action) {
	p.seq++
	p.pending = append(p.pending, scheduled{at: at, seq: p.seq, action: action})
	sort.SliceStable(p.pending, func(i, j int) bool {
		if p.pending[i].at.Equal(p.pending[j].at) {
			return p.pending[i].seq < p.pending[j].seq
		}
		return p.pending[i].at.Before(p.pending[j].at)
	})
}

// advance applies every scheduled action that is due. Actions may schedule
// more, timed from their own due time rather than from now.
func (p *Page) advance() {
	now := p.clock.Now()
	for len(p.pending) > 0 && !p.pending[0].at.After(now) {
		next := p.pending[0]
		p.pending = p.pending[1:]
		if err := next.action(&Mutator{page: p, at: next.at}); err != nil {
			err = fmt.Errorf("fixture: scheduled action at %s failed: %w", next.at.Format(time.RFC3339Nano), err)
			p.errs = append(p.errs, err)
			p.history = append(p.history, "error "+err.Error())
		}
	}
}

func (p *Page) attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == p.doc {
			return true
		}
	}
	return false
}

// --- browser.Page ---

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := html.Parse(strings.NewReader(p.source))
	if err != nil {
		return fmt.Errorf("fixture: failed to parse document: %w", err)
	}
	p.doc = doc
	p.url = url
	p.focused = nil
	p.pending = nil
	p.history = append(p.history, "navigate "+url)

	m := &Mutator{page: p}
	for _, fn := range p.onNavigate {
		if err := fn(m, url); err != nil {
			return fmt.Errorf("fixture: navigation hook failed: %w", err)
		}
	}
	return nil
}

func (p *Page) QueryAll(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return p.queryUnder(p.doc, loc)
}

func (p *Page) PressKey(ctx context.Context, key browser.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.history = append(p.history, "press "+string(key))
	return p.dispatchKey(p.focused, key)
}

func (p *Page) ScrollTo(ctx context.Context, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, fmt.Sprintf("scroll %d,%d", x, y))
	return nil
}

// Screenshot returns the serialized document; a fixture has no pixels to capture.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte(p.HTML()), nil
}

func (p *Page) queryUnder(root *html.Node, loc browser.Locator) ([]browser.Element, error) {
	var nodes []*html.Node
	switch loc.Strategy {
	case browser.StrategyCSS:
		group, err := compile(loc.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", browser.ErrUnsupportedLocator, err)
		}
		nodes = selectAll(root, group)
	case browser.StrategyXPath:
		found, err := htmlquery.QueryAll(root, loc.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", browser.ErrUnsupportedLocator, err)
		}
		for _, n := range found {
			if n.Type == html.ElementNode && n != root {
				nodes = append(nodes, n)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", browser.ErrUnsupportedLocator, loc)
	}

	out := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{page: p, node: n})
	}
	return out, nil
}

func (p *Page) fire(handlers []handler, target *html.Node) error {
	for _, h := range handlers {
		if h.selector == "" {
			if err := h.action(&Mutator{page: p, target: target}); err != nil {
				return err
			}
			continue
		}
		group, err := compile(h.selector)
		if err != nil {
			return err
		}
		// Delegate like DOM events: the target or any ancestor may match.
		for n := target; n != nil; n = n.Parent {
			if matches(n, group) {
				if err := h.action(&Mutator{page: p, target: target}); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

func (p *Page) dispatchKey(target *html.Node, key browser.Key) error {
	var hs []handler
	for _, h := range p.onKey {
		if h.key == key {
			hs = append(hs, h)
		}
	}
	return p.fire(hs, target)
}

// --- element ---

type element struct {
	page *Page
	node *html.Node
}

var _ browser.Element = (*element)(nil)

// lock takes the page lock, applies due mutations, and checks the handle is still attached.
func (e *element) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.page.mu.Lock()
	e.page.advance()
	if !e.page.attached(e.node) {
		e.page.mu.Unlock()
		return browser.ErrStale
	}
	return nil
}

func (e *element) unlock() { e.page.mu.Unlock() }

func (e *element) QueryAll(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.unlock()
	return e.page.queryUnder(e.node, loc)
}

func (e *element) IsRendered(ctx context.Context) (bool, error) {
	if err := e.lock(ctx); err != nil {
		return false, err
	}
	defer e.unlock()
	return rendered(e.node), nil
}

func (e *element) BoundingSize(ctx context.Context) (browser.Size, error) {
	if err := e.lock(ctx); err != nil {
		return browser.Size{}, err
	}
	defer e.unlock()
	return boundingSize(e.node), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := e.lock(ctx); err != nil {
		return "", err
	}
	defer e.unlock()
	return innerText(e.node), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.lock(ctx); err != nil {
		return "", false, err
	}
	defer e.unlock()
	v, ok := attr(e.node, name)
	if !ok && strings.EqualFold(name, "value") && isTextControl(e.node) {
		return "", true, nil
	}
	return v, ok, nil
}

func (e *element) interactable() error {
	if !rendered(e.node) || boundingSize(e.node).Empty() {
		return browser.ErrNotInteractable
	}
	return nil
}

func (e *element) Click(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.unlock()
	if err := e.interactable(); err != nil {
		return err
	}
	e.page.history = append(e.page.history, "click "+describe(e.node))
	e.page.focused = e.node
	if _, disabled := attr(e.node, "disabled"); disabled {
		return nil
	}
	return e.page.fire(e.page.onClick, e.node)
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.unlock()
	if err := e.interactable(); err != nil {
		return err
	}
	if !isTextControl(e.node) {
		return fmt.Errorf("fixture: cannot type into <%s>", e.node.Data)
	}
	e.page.focused = e.node
	current, _ := attr(e.node, "value")
	setAttr(e.node, "value", current+text)
	e.page.history = append(e.page.history, fmt.Sprintf("type %q into %s", text, describe(e.node)))
	return e.page.fire(e.page.onType, e.node)
}

func (e *element) Press(ctx context.Context, key browser.Key) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.unlock()
	e.page.focused = e.node
	e.page.history = append(e.page.history, "press "+string(key)+" on "+describe(e.node))
	return e.page.dispatchKey(e.node, key)
}

func (e *element) Clear(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.unlock()
	if !isTextControl(e.node) {
		return fmt.Errorf("fixture: cannot clear <%s>", e.node.Data)
	}
	if v, _ := attr(e.node, "value"); v == "" {
		return nil
	}
	setAttr(e.node, "value", "")
	return e.page.fire(e.page.onType, e.node)
}

func isTextControl(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "input", "textarea":
		return true
	}
	return false
}

func describe(n *html.Node) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(n.Data))
	if id, ok := attr(n, "id"); ok && id != "" {
		b.WriteString("#" + id)
	}
	if classes, ok := attr(n, "class"); ok {
		for _, c := range strings.Fields(classes) {
			b.WriteString("." + c)
		}
	}
	return b.String()
}
