// Package session drives a Chrome tab over the DevTools protocol and exposes it
// as a browser.Page.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/searchprobe/internal/browser"
)

// Operations without a deadline of their own get this one.
const defaultOpTimeout = 15 * time.Second

const (
	jsIsRendered = `function() {
	if (!this.isConnected) return false;
	for (let el = this; el && el.nodeType === 1; el = el.parentElement) {
		if (el.hidden) return false;
	}
	const style = window.getComputedStyle(this);
	if (style.display === 'none' || style.visibility === 'hidden' || style.visibility === 'collapse') return false;
	return this.getClientRects().length > 0;
}`
	jsText      = `function() { return (this.innerText ?? this.textContent ?? '').toString(); }`
	jsAttribute = `function(name) {
	if (name === 'value' && 'value' in this) return {present: true, value: String(this.value ?? '')};
	if (!this.hasAttribute(name)) return {present: false, value: ''};
	return {present: true, value: this.getAttribute(name) ?? ''};
}`
	jsClear = `function() {
	this.focus();
	this.value = '';
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));
}`
)

var keys = map[browser.Key]string{
	browser.KeyEnter:     kb.Enter,
	browser.KeyEscape:    kb.Escape,
	browser.KeyTab:       kb.Tab,
	browser.KeyBackspace: kb.Backspace,
}

// Page is a single Chrome tab.
type Page struct {
	id         string
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
	navTimeout time.Duration

	closeOnce sync.Once
	onClose   func()
}

var (
	_ browser.Page          = (*Page)(nil)
	_ browser.Screenshotter = (*Page)(nil)
)

// ID identifies the tab in logs.
func (p *Page) ID() string { return p.id }

// run executes actions on the tab, bounded by ctx as well as the tab's lifetime.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		var cancelTimeout context.CancelFunc
		opCtx, cancelTimeout = context.WithTimeout(opCtx, defaultOpTimeout)
		defer cancelTimeout()
	}
	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return mapError(err)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()
	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *Page) QueryAll(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	var nodes []*cdp.Node
	var action chromedp.Action
	switch loc.Strategy {
	case browser.StrategyCSS:
		action = chromedp.Nodes(loc.Expr, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))
	case browser.StrategyXPath:
		action = chromedp.Nodes(loc.Expr, &nodes, chromedp.BySearch, chromedp.AtLeast(0))
	default:
		return nil, fmt.Errorf("%w: %s", browser.ErrUnsupportedLocator, loc)
	}
	if err := p.run(ctx, action); err != nil {
		return nil, fmt.Errorf("query %s: %w", loc, err)
	}
	return p.wrap(nodes), nil
}

func (p *Page) PressKey(ctx context.Context, key browser.Key) error {
	k, ok := keys[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return p.run(ctx, chromedp.KeyEvent(k))
}

func (p *Page) ScrollTo(ctx context.Context, x, y int) error {
	return p.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollTo(%d, %d)", x, y), nil))
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Close closes the tab. It is safe to call more than once.
func (p *Page) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		closeCtx, cancel := CombineContext(p.ctx, ctx)
		defer cancel()
		if cerr := chromedp.Cancel(closeCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("failed to close tab: %w", cerr)
		}
		p.cancel()
		if p.onClose != nil {
			p.onClose()
		}
		p.logger.Debug("Tab closed.")
	})
	return err
}

func (p *Page) wrap(nodes []*cdp.Node) []browser.Element {
	out := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		if n.NodeType != cdp.NodeTypeElement {
			continue
		}
		out = append(out, &element{page: p, node: n})
	}
	return out
}

// element is a handle to a DOM node. CDP node ids die with the node, so a
// re-rendered element reports browser.ErrStale.
type element struct {
	page *Page
	node *cdp.Node
}

var _ browser.Element = (*element)(nil)

func (e *element) call(ctx context.Context, fn string, res interface{}, args ...interface{}) error {
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		r, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		err = chromedp.CallFunctionOn(fn, res,
			func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
				return p.WithObjectID(r.ObjectID)
			},
			args...,
		).Do(ctx)
		if err != nil {
			return err
		}
		_ = runtime.ReleaseObject(r.ObjectID).Do(ctx)
		return nil
	}))
}

func (e *element) QueryAll(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if loc.Strategy != browser.StrategyCSS {
		return nil, fmt.Errorf("%w: element-scoped %s", browser.ErrUnsupportedLocator, loc)
	}
	var nodes []*cdp.Node
	err := e.page.run(ctx, chromedp.Nodes(loc.Expr, &nodes, chromedp.ByQueryAll, chromedp.FromNode(e.node), chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", loc, err)
	}
	return e.page.wrap(nodes), nil
}

func (e *element) IsRendered(ctx context.Context) (bool, error) {
	var rendered bool
	if err := e.call(ctx, jsIsRendered, &rendered); err != nil {
		return false, err
	}
	return rendered, nil
}

// BoundingSize reads the border box. A node without a box model is not
// rendered and has no size.
func (e *element) BoundingSize(ctx context.Context) (browser.Size, error) {
	var size browser.Size
	err := e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		box, err := dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		size = browser.Size{Width: float64(box.Width), Height: float64(box.Height)}
		return nil
	}))
	if err != nil {
		if errors.Is(err, browser.ErrStale) || ctx.Err() != nil {
			return browser.Size{}, err
		}
		return browser.Size{}, nil
	}
	return size, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.call(ctx, jsText, &text); err != nil {
		return "", err
	}
	return text, nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var res struct {
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}
	if err := e.call(ctx, jsAttribute, &res, name); err != nil {
		return "", false, err
	}
	return res.Value, res.Present, nil
}

func (e *element) Click(ctx context.Context) error {
	return e.page.run(ctx, chromedp.MouseClickNode(e.node))
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return e.page.run(ctx, chromedp.KeyEventNode(e.node, text))
}

func (e *element) Press(ctx context.Context, key browser.Key) error {
	k, ok := keys[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return e.page.run(ctx, chromedp.KeyEventNode(e.node, k))
}

func (e *element) Clear(ctx context.Context) error {
	return e.call(ctx, jsClear, nil)
}
