// browser/parser/css_test.go
package parser

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper functions to build expected structures concisely
func d(prop, val string, important bool) Declaration {
	return Declaration{Property: Property(prop), Value: Value(val), Important: important}
}

func s(tag, id string, classes []string, attrs []AttributeSelector) SimpleSelector {
	return SimpleSelector{TagName: tag, ID: id, Classes: classes, Attributes: attrs}
}

func cs(selectors ...SimpleSelectorWithCombinator) ComplexSelector {
	return ComplexSelector{Selectors: selectors}
}

func sc(c Combinator, sel SimpleSelector) SimpleSelectorWithCombinator {
	return SimpleSelectorWithCombinator{Combinator: c, SimpleSelector: sel}
}

func TestParseSimpleSelectorsAndAttributes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected SimpleSelector
	}{
		{"Tag", "div", s("div", "", nil, nil)},
		{"Upper-case tag", "BUTTON", s("button", "", nil, nil)},
		{"ID", "#search-input", s("", "search-input", nil, nil)},
		{"Class", ".search-no-results", s("", "", []string{"search-no-results"}, nil)},
		{"Multiple Classes", ".cdk-overlay-pane.sports-search-panel", s("", "", []string{"cdk-overlay-pane", "sports-search-panel"}, nil)},
		{"Combined", "button#onetrust-accept-btn-handler.primary", s("button", "onetrust-accept-btn-handler", []string{"primary"}, nil)},
		{"Universal", "*", s("*", "", nil, nil)},
		{"Attr Presence", "[disabled]", s("", "", nil, []AttributeSelector{{Name: "disabled"}})},
		{"Attr Exact Single Quote", `[role='listbox']`, s("", "", nil, []AttributeSelector{{Name: "role", Operator: "=", Value: "listbox"}})},
		{"Attr Exact Double Quote", `[type="text"]`, s("", "", nil, []AttributeSelector{{Name: "type", Operator: "=", Value: "text"}})},
		{"Attr Contains Word (~=)", `[class~="alert"]`, s("", "", nil, []AttributeSelector{{Name: "class", Operator: "~=", Value: "alert"}})},
		{"Attr Prefix Hyphen (|=)", `[lang|="en"]`, s("", "", nil, []AttributeSelector{{Name: "lang", Operator: "|=", Value: "en"}})},
		{"Attr Starts With (^=)", `[href^="https"]`, s("", "", nil, []AttributeSelector{{Name: "href", Operator: "^=", Value: "https"}})},
		{"Attr Ends With ($=)", `[src$=".png"]`, s("", "", nil, []AttributeSelector{{Name: "src", Operator: "$=", Value: ".png"}})},
		{"Attr Contains Substring (*=)", `[aria-label*='Accept']`, s("", "", nil, []AttributeSelector{{Name: "aria-label", Operator: "*=", Value: "Accept"}})},
		{"Mixed", `button[aria-label*='Accept'].cta`, s("button", "", []string{"cta"}, []AttributeSelector{{Name: "aria-label", Operator: "*=", Value: "Accept"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group, err := ParseSelector(tt.input)
			require.NoError(t, err)
			require.Len(t, group, 1)
			require.Len(t, group[0].Selectors, 1)
			assert.Equal(t, tt.expected, group[0].Selectors[0].SimpleSelector)
		})
	}
}

func TestParseNegation(t *testing.T) {
	group, err := ParseSelector(".search-dropdown__item:not(.search-dropdown__item--hidden)")
	require.NoError(t, err)
	require.Len(t, group, 1)

	expected := SimpleSelector{
		Classes:   []string{"search-dropdown__item"},
		Negations: []SimpleSelector{{Classes: []string{"search-dropdown__item--hidden"}}},
	}
	assert.Equal(t, expected, group[0].Selectors[0].SimpleSelector)

	t.Run("Negation followed by descendant", func(t *testing.T) {
		group, err := ParseSelector(".search-dropdown.search-dropdown--no-results:not( .search-dropdown__item--hidden ) .search-no-results")
		require.NoError(t, err)
		require.Len(t, group[0].Selectors, 2)

		first := group[0].Selectors[0].SimpleSelector
		assert.Equal(t, []string{"search-dropdown", "search-dropdown--no-results"}, first.Classes)
		require.Len(t, first.Negations, 1)
		assert.Equal(t, CombinatorDescendant, group[0].Selectors[1].Combinator)
		assert.Equal(t, []string{"search-no-results"}, group[0].Selectors[1].SimpleSelector.Classes)
	})
}

func TestParseCombinators(t *testing.T) {
	input := `
		div p,
		article > section,
		h1 + h2,
		h2 ~ p,
		.cdk-overlay-container .cdk-overlay-pane > span
	`
	group, err := ParseSelector(input)
	require.NoError(t, err)
	require.Len(t, group, 5)

	expected := SelectorGroup{
		cs(sc(CombinatorNone, s("div", "", nil, nil)), sc(CombinatorDescendant, s("p", "", nil, nil))),
		cs(sc(CombinatorNone, s("article", "", nil, nil)), sc(CombinatorChild, s("section", "", nil, nil))),
		cs(sc(CombinatorNone, s("h1", "", nil, nil)), sc(CombinatorAdjacentSibling, s("h2", "", nil, nil))),
		cs(sc(CombinatorNone, s("h2", "", nil, nil)), sc(CombinatorGeneralSibling, s("p", "", nil, nil))),
		cs(
			sc(CombinatorNone, s("", "", []string{"cdk-overlay-container"}, nil)),
			sc(CombinatorDescendant, s("", "", []string{"cdk-overlay-pane"}, nil)),
			sc(CombinatorChild, s("span", "", nil, nil)),
		),
	}
	assert.Equal(t, expected, group)
}

func TestParseSelectorErrors(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"div >",
		".",
		"#",
		"[",
		"[name",
		"[name='x]",
		"[name!=x]",
		"a:hover",
		":not(.x",
		"div )",
		"a,,b",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := ParseSelector(in)
			assert.Error(t, err)
		})
	}
}

func TestParseInlineStyle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Declaration
	}{
		{"Empty", "", nil},
		{"Single", "display: none", []Declaration{d("display", "none", false)}},
		{"Multiple", "Width:0px; visibility : hidden;", []Declaration{d("width", "0px", false), d("visibility", "hidden", false)}},
		{"Important", "display:block !important", []Declaration{d("display", "block", true)}},
		{"Malformed parts skipped", "display; :none; color: red", []Declaration{d("color", "red", false)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseInlineStyle(tt.input))
		})
	}
}

// FuzzParseSelector checks that arbitrary input never panics the parser.
func FuzzParseSelector(f *testing.F) {
	f.Add([]byte(".a:not(.b) > #c[d='e'], f ~ g + h"))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		expr, err := consumer.GetString()
		if err != nil {
			return
		}
		group, err := ParseSelector(expr)
		if err == nil {
			assert.NotEmpty(t, group)
		}
		_ = ParseInlineStyle(expr)
	})
}
