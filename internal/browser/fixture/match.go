package fixture

import (
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/searchprobe/internal/browser/parser"
)

// selectorCache memoizes parsed selector groups; fixtures re-run the same few selectors every poll.
var selectorCache sync.Map // string -> parser.SelectorGroup

func compile(expr string) (parser.SelectorGroup, error) {
	if g, ok := selectorCache.Load(expr); ok {
		return g.(parser.SelectorGroup), nil
	}
	g, err := parser.ParseSelector(expr)
	if err != nil {
		return nil, err
	}
	selectorCache.Store(expr, g)
	return g, nil
}

func matches(node *html.Node, group parser.SelectorGroup) bool {
	if node.Type != html.ElementNode {
		return false
	}
	for _, complexSelector := range group {
		last := len(complexSelector.Selectors) - 1
		if last < 0 {
			continue
		}
		if recursiveMatch(node, complexSelector, last) {
			return true
		}
	}
	return false
}

// recursiveMatch matches right to left: the compound at index against node,
// then the combinator against node's relatives.
func recursiveMatch(node *html.Node, complexSelector parser.ComplexSelector, index int) bool {
	if node == nil || index < 0 || node.Type != html.ElementNode {
		return false
	}
	current := complexSelector.Selectors[index]
	if !matchesSimple(node, current.SimpleSelector) {
		return false
	}
	if index == 0 {
		return true
	}
	next := index - 1
	switch current.Combinator {
	case parser.CombinatorDescendant:
		for parent := node.Parent; parent != nil; parent = parent.Parent {
			if recursiveMatch(parent, complexSelector, next) {
				return true
			}
		}
		return false
	case parser.CombinatorChild:
		return recursiveMatch(node.Parent, complexSelector, next)
	case parser.CombinatorAdjacentSibling:
		return recursiveMatch(previousElementSibling(node), complexSelector, next)
	case parser.CombinatorGeneralSibling:
		for sibling := previousElementSibling(node); sibling != nil; sibling = previousElementSibling(sibling) {
			if recursiveMatch(sibling, complexSelector, next) {
				return true
			}
		}
		return false
	case parser.CombinatorNone:
		return true
	}
	return false
}

func previousElementSibling(node *html.Node) *html.Node {
	for sibling := node.PrevSibling; sibling != nil; sibling = sibling.PrevSibling {
		if sibling.Type == html.ElementNode {
			return sibling
		}
	}
	return nil
}

func matchesSimple(node *html.Node, selector parser.SimpleSelector) bool {
	if selector.TagName != "" && selector.TagName != "*" && strings.ToLower(node.Data) != selector.TagName {
		return false
	}
	if selector.ID != "" {
		if id, ok := attr(node, "id"); !ok || id != selector.ID {
			return false
		}
	}
	if len(selector.Classes) > 0 {
		for _, required := range selector.Classes {
			if !hasClass(node, required) {
				return false
			}
		}
	}
	for _, attrSel := range selector.Attributes {
		if !matchesAttribute(node, attrSel) {
			return false
		}
	}
	for _, neg := range selector.Negations {
		if matchesSimple(node, neg) {
			return false
		}
	}
	return true
}

func matchesAttribute(node *html.Node, sel parser.AttributeSelector) bool {
	actual, found := attr(node, sel.Name)

	switch sel.Operator {
	case "":
		return found
	case "=":
		return found && actual == sel.Value
	case "~=":
		if !found {
			return false
		}
		for _, word := range strings.Fields(actual) {
			if word == sel.Value {
				return true
			}
		}
		return false
	case "|=":
		return found && (actual == sel.Value || strings.HasPrefix(actual, sel.Value+"-"))
	case "^=":
		return found && strings.HasPrefix(actual, sel.Value)
	case "$=":
		return found && strings.HasSuffix(actual, sel.Value)
	case "*=":
		return found && strings.Contains(actual, sel.Value)
	default:
		return false
	}
}

func attr(node *html.Node, name string) (string, bool) {
	for _, a := range node.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(node *html.Node, name, value string) {
	for i, a := range node.Attr {
		if strings.EqualFold(a.Key, name) {
			node.Attr[i].Val = value
			return
		}
	}
	node.Attr = append(node.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(node *html.Node, name string) {
	kept := node.Attr[:0]
	for _, a := range node.Attr {
		if !strings.EqualFold(a.Key, name) {
			kept = append(kept, a)
		}
	}
	node.Attr = kept
}

func hasClass(node *html.Node, class string) bool {
	classes, _ := attr(node, "class")
	for _, c := range strings.Fields(classes) {
		if c == class {
			return true
		}
	}
	return false
}

// selectAll returns the element descendants of root (root excluded) matching group, in document order.
func selectAll(root *html.Node, group parser.SelectorGroup) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if matches(c, group) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}
