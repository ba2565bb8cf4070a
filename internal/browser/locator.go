// internal/browser/locator.go
package browser

import (
	"strings"
)

// Strategy selects how a locator expression is evaluated.
type Strategy int

const (
	StrategyCSS Strategy = iota
	StrategyXPath
)

func (s Strategy) String() string {
	switch s {
	case StrategyCSS:
		return "css"
	case StrategyXPath:
		return "xpath"
	default:
		return "unknown"
	}
}

// Locator is a structural pattern for finding elements.
type Locator struct {
	Strategy Strategy
	Expr     string
}

// CSS returns a CSS selector locator.
func CSS(expr string) Locator { return Locator{Strategy: StrategyCSS, Expr: expr} }

// XPath returns an XPath locator.
func XPath(expr string) Locator { return Locator{Strategy: StrategyXPath, Expr: expr} }

func (l Locator) String() string {
	return l.Strategy.String() + ":" + l.Expr
}

// ParseLocator reads the configuration form of a locator: "xpath:<expr>",
// "css:<expr>", or a bare CSS selector.
func ParseLocator(s string) Locator {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "xpath:"):
		return XPath(strings.TrimSpace(strings.TrimPrefix(s, "xpath:")))
	case strings.HasPrefix(s, "css:"):
		return CSS(strings.TrimSpace(strings.TrimPrefix(s, "css:")))
	default:
		return CSS(s)
	}
}

// ParseLocators applies ParseLocator to each entry, dropping blanks and keeping order.
func ParseLocators(in []string) []Locator {
	out := make([]Locator, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, ParseLocator(s))
	}
	return out
}
