package fixture

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/browser/parser"
)

// Default extent of a rendered element that has content but no explicit size.
const (
	defaultWidth  = 320
	defaultHeight = 24
)

func inlineStyle(node *html.Node) map[parser.Property]parser.Value {
	raw, ok := attr(node, "style")
	if !ok {
		return nil
	}
	styles := make(map[parser.Property]parser.Value)
	important := make(map[parser.Property]bool)
	for _, d := range parser.ParseInlineStyle(raw) {
		if important[d.Property] && !d.Important {
			continue
		}
		styles[d.Property] = parser.Value(strings.ToLower(strings.TrimSpace(string(d.Value))))
		if d.Important {
			important[d.Property] = true
		}
	}
	return styles
}

// rendered reports whether node and every ancestor take part in layout:
// no hidden attribute, no display:none, no visibility:hidden/collapse.
func rendered(node *html.Node) bool {
	for n := node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if _, hidden := attr(n, "hidden"); hidden {
			return false
		}
		if strings.EqualFold(n.Data, "template") {
			return false
		}
		styles := inlineStyle(n)
		if styles["display"] == "none" {
			return false
		}
		if v := styles["visibility"]; v == "hidden" || v == "collapse" {
			return false
		}
	}
	return true
}

// boundingSize approximates layout: explicit pixel width/height win, otherwise
// an element with visible text, a rendered child, or a replaced/form tag gets a
// default box and an empty element collapses to zero.
func boundingSize(node *html.Node) browser.Size {
	if !rendered(node) {
		return browser.Size{}
	}
	size := browser.Size{}
	if hasContent(node) {
		size = browser.Size{Width: defaultWidth, Height: defaultHeight}
	}
	styles := inlineStyle(node)
	if w, ok := parsePixels(styles["width"]); ok {
		size.Width = w
	}
	if h, ok := parsePixels(styles["height"]); ok {
		size.Height = h
	}
	return size
}

func hasContent(node *html.Node) bool {
	switch strings.ToLower(node.Data) {
	case "input", "button", "textarea", "select", "img", "svg", "iframe":
		return true
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return true
			}
		case html.ElementNode:
			if rendered(c) && !boundingSize(c).Empty() {
				return true
			}
		}
	}
	return false
}

func parsePixels(v parser.Value) (float64, bool) {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return 0, false
	}
	s = strings.TrimSuffix(s, "px")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// innerText concatenates the text of rendered descendants, separating element
// boundaries with a space the way block layout would.
func innerText(node *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if !rendered(n) {
				return
			}
			if strings.EqualFold(n.Data, "br") {
				b.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && n.Parent != nil {
			b.WriteByte(' ')
		}
	}
	walk(node)
	return strings.TrimSpace(b.String())
}
