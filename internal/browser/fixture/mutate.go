package fixture

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/searchprobe/internal/browser"
)

// Mutator edits the document from inside handlers and scheduled actions.
// Every selector method applies to all matches and fails with browser.ErrNotFound
// when there are none.
type Mutator struct {
	page   *Page
	target *html.Node
	// at is the due time of the scheduled action being applied, zero otherwise.
	at time.Time
}

// Now is the page clock's current time, or the due time inside a scheduled action.
func (m *Mutator) Now() time.Time {
	if !m.at.IsZero() {
		return m.at
	}
	return m.page.clock.Now()
}

// After schedules action d after Now.
func (m *Mutator) After(d time.Duration, action Action) {
	m.page.scheduleAt(m.Now().Add(d), action)
}

// Cancel drops every pending scheduled action.
func (m *Mutator) Cancel() {
	m.page.pending = nil
}

// TargetValue is the value of the element that triggered the handler.
func (m *Mutator) TargetValue() string {
	if m.target == nil {
		return ""
	}
	v, _ := attr(m.target, "value")
	return v
}

// TargetText is the rendered text of the element that triggered the handler.
func (m *Mutator) TargetText() string {
	if m.target == nil {
		return ""
	}
	return strings.TrimSpace(innerText(m.target))
}

func (m *Mutator) find(selector string) ([]*html.Node, error) {
	group, err := compile(selector)
	if err != nil {
		return nil, err
	}
	nodes := selectAll(m.page.doc, group)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return nodes, nil
}

// Count returns how many elements match selector.
func (m *Mutator) Count(selector string) int {
	nodes, err := m.find(selector)
	if err != nil {
		return 0
	}
	return len(nodes)
}

// Value returns the value attribute of the last match.
func (m *Mutator) Value(selector string) string {
	nodes, err := m.find(selector)
	if err != nil {
		return ""
	}
	v, _ := attr(nodes[len(nodes)-1], "value")
	return v
}

func (m *Mutator) each(selector string, fn func(n *html.Node) error) error {
	nodes, err := m.find(selector)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mutator) SetAttr(selector, name, value string) error {
	return m.each(selector, func(n *html.Node) error {
		setAttr(n, name, value)
		return nil
	})
}

func (m *Mutator) RemoveAttr(selector, name string) error {
	return m.each(selector, func(n *html.Node) error {
		removeAttr(n, name)
		return nil
	})
}

// SetValue sets the value of every matching form control.
func (m *Mutator) SetValue(selector, value string) error {
	return m.SetAttr(selector, "value", value)
}

// SetStyle replaces the inline style of every match.
func (m *Mutator) SetStyle(selector, style string) error {
	return m.SetAttr(selector, "style", style)
}

// Show removes inline display/visibility overrides and the hidden attribute.
func (m *Mutator) Show(selector string) error {
	return m.each(selector, func(n *html.Node) error {
		removeAttr(n, "hidden")
		removeAttr(n, "style")
		return nil
	})
}

// Hide sets display:none on every match.
func (m *Mutator) Hide(selector string) error {
	return m.SetStyle(selector, "display:none")
}

func (m *Mutator) AddClass(selector, class string) error {
	return m.each(selector, func(n *html.Node) error {
		if !hasClass(n, class) {
			classes, _ := attr(n, "class")
			setAttr(n, "class", strings.TrimSpace(classes+" "+class))
		}
		return nil
	})
}

func (m *Mutator) RemoveClass(selector, class string) error {
	return m.each(selector, func(n *html.Node) error {
		classes, _ := attr(n, "class")
		var kept []string
		for _, c := range strings.Fields(classes) {
			if c != class {
				kept = append(kept, c)
			}
		}
		setAttr(n, "class", strings.Join(kept, " "))
		return nil
	})
}

// Remove detaches every match; existing handles to them turn stale.
func (m *Mutator) Remove(selector string) error {
	return m.each(selector, func(n *html.Node) error {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return nil
	})
}

// Append parses fragment and appends it to every match.
func (m *Mutator) Append(selector, fragment string) error {
	return m.each(selector, func(n *html.Node) error {
		nodes, err := parseFragment(fragment)
		if err != nil {
			return err
		}
		for _, c := range nodes {
			n.AppendChild(c)
		}
		return nil
	})
}

// SetInner replaces the children of every match with fragment.
func (m *Mutator) SetInner(selector, fragment string) error {
	return m.each(selector, func(n *html.Node) error {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		nodes, err := parseFragment(fragment)
		if err != nil {
			return err
		}
		for _, c := range nodes {
			n.AppendChild(c)
		}
		return nil
	})
}

// Replace swaps every match for the nodes parsed from fragment. This is how a
// framework re-render looks from the outside: same markup, new node identity.
func (m *Mutator) Replace(selector, fragment string) error {
	return m.each(selector, func(n *html.Node) error {
		if n.Parent == nil {
			return nil
		}
		nodes, err := parseFragment(fragment)
		if err != nil {
			return err
		}
		for _, c := range nodes {
			n.Parent.InsertBefore(c, n)
		}
		n.Parent.RemoveChild(n)
		return nil
	})
}

func parseFragment(fragment string) ([]*html.Node, error) {
	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return nil, fmt.Errorf("fixture: failed to parse fragment: %w", err)
	}
	return nodes, nil
}
