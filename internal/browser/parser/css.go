// internal/browser/parser/css.go
package parser

import (
	"fmt"
	"strings"
)

// Property represents a CSS property (e.g., "display").
type Property string

// Value represents a CSS value (e.g., "none").
type Value string

// Declaration is a key-value pair (e.g., display: none).
type Declaration struct {
	Property  Property
	Value     Value
	Important bool
}

// SelectorGroup represents a comma-separated list of selectors (e.g., "h1, h2 .title").
type SelectorGroup []ComplexSelector

// ComplexSelector represents a sequence of simple selectors joined by combinators (e.g., "div > p").
type ComplexSelector struct {
	Selectors []SimpleSelectorWithCombinator
}

// SimpleSelectorWithCombinator pairs a simple selector with its preceding combinator.
type SimpleSelectorWithCombinator struct {
	Combinator     Combinator
	SimpleSelector SimpleSelector
}

// SimpleSelector is a compound selector: tag, ID, classes, attributes and negations.
type SimpleSelector struct {
	TagName    string
	ID         string
	Classes    []string
	Attributes []AttributeSelector
	// Negations holds the arguments of :not(...), each of which must not match.
	Negations []SimpleSelector
}

// AttributeSelector represents a CSS attribute selector like `[href]` or `[target="_blank"]`.
type AttributeSelector struct {
	Name     string
	Operator string // e.g., "=", "~=", "|=", "^=", "$=", "*="
	Value    string
}

// Combinator defines the relationship between simple selectors.
type Combinator int

const (
	CombinatorNone            Combinator = iota // No combinator (first selector)
	CombinatorDescendant                        // Space
	CombinatorChild                             // >
	CombinatorAdjacentSibling                   // +
	CombinatorGeneralSibling                    // ~
)

// IsValid checks if the selector has at least one component.
func (s SimpleSelector) IsValid() bool {
	return s.TagName != "" || s.ID != "" || len(s.Classes) > 0 || len(s.Attributes) > 0 || len(s.Negations) > 0
}

// ParseSelector parses a selector group such as
// ".overlay .pane:not(.hidden), #search-input".
func ParseSelector(expr string) (SelectorGroup, error) {
	p := NewParser(expr)
	group, err := p.parseSelectorGroup()
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", expr, err)
	}
	p.consumeWhitespace()
	if !p.eof() {
		return nil, fmt.Errorf("invalid selector %q: unexpected %q at offset %d", expr, p.currentChar(), p.pos)
	}
	if len(group) == 0 {
		return nil, fmt.Errorf("invalid selector %q: empty", expr)
	}
	return group, nil
}

// ParseInlineStyle parses the contents of a style attribute.
// Property names are lower-cased; malformed declarations are skipped.
func ParseInlineStyle(style string) []Declaration {
	var decls []Declaration
	for _, part := range strings.Split(style, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		prop, val := strings.ToLower(strings.TrimSpace(kv[0])), strings.TrimSpace(kv[1])
		if prop == "" || val == "" {
			continue
		}
		important := false
		if strings.HasSuffix(strings.ToLower(val), "!important") {
			important = true
			val = strings.TrimSpace(val[:len(val)-len("!important")])
		}
		decls = append(decls, Declaration{Property: Property(prop), Value: Value(val), Important: important})
	}
	return decls
}

// Parser holds the state of the selector parser.
type Parser struct {
	input string
	pos   int
}

func NewParser(input string) *Parser {
	return &Parser{input: input, pos: 0}
}

// parseSelectorGroup parses a comma-separated list of complex selectors.
func (p *Parser) parseSelectorGroup() (SelectorGroup, error) {
	var group SelectorGroup
	for {
		p.consumeWhitespace()
		if p.eof() {
			break
		}
		complex, err := p.parseComplexSelector()
		if err != nil {
			return nil, err
		}
		if len(complex.Selectors) == 0 {
			return nil, fmt.Errorf("empty selector at offset %d", p.pos)
		}
		group = append(group, complex)

		p.consumeWhitespace()
		if p.eof() || p.currentChar() != ',' {
			break
		}
		p.consumeChar()
	}
	return group, nil
}

// parseComplexSelector parses a sequence of simple selectors and combinators.
func (p *Parser) parseComplexSelector() (ComplexSelector, error) {
	var complexSelector ComplexSelector
	combinator := CombinatorNone

	for {
		p.consumeWhitespace()
		if p.eof() || p.currentChar() == ',' {
			if combinator != CombinatorNone && combinator != CombinatorDescendant {
				return complexSelector, fmt.Errorf("dangling combinator at offset %d", p.pos)
			}
			break
		}

		simple, err := p.parseSimpleSelector()
		if err != nil {
			return complexSelector, err
		}
		complexSelector.Selectors = append(complexSelector.Selectors, SimpleSelectorWithCombinator{
			Combinator:     combinator,
			SimpleSelector: simple,
		})

		p.consumeWhitespace()
		if p.eof() || p.currentChar() == ',' {
			break
		}

		switch p.currentChar() {
		case '>':
			combinator = CombinatorChild
			p.consumeChar()
		case '+':
			combinator = CombinatorAdjacentSibling
			p.consumeChar()
		case '~':
			combinator = CombinatorGeneralSibling
			p.consumeChar()
		default:
			// Anything else after whitespace starts the next compound.
			combinator = CombinatorDescendant
		}
	}
	return complexSelector, nil
}

// parseSimpleSelector parses a single compound (e.g., div#id.class1[attr]:not(.x)).
func (p *Parser) parseSimpleSelector() (SimpleSelector, error) {
	selector := SimpleSelector{}

	if !p.eof() {
		ch := p.currentChar()
		if ch == '*' {
			p.consumeChar()
			selector.TagName = "*"
		} else if isValidIdentifierStart(ch) {
			selector.TagName = strings.ToLower(p.parseIdentifier())
		}
	}

	for !p.eof() {
		switch p.currentChar() {
		case '#':
			p.consumeChar()
			id := p.parseIdentifier()
			if id == "" {
				return selector, fmt.Errorf("expected identifier after '#' at offset %d", p.pos)
			}
			selector.ID = id
		case '.':
			p.consumeChar()
			class := p.parseIdentifier()
			if class == "" {
				return selector, fmt.Errorf("expected identifier after '.' at offset %d", p.pos)
			}
			selector.Classes = append(selector.Classes, class)
		case '[':
			p.consumeChar()
			attr, err := p.parseAttributeSelector()
			if err != nil {
				return selector, err
			}
			selector.Attributes = append(selector.Attributes, attr)
		case ':':
			p.consumeChar()
			neg, err := p.parseNegation()
			if err != nil {
				return selector, err
			}
			selector.Negations = append(selector.Negations, neg)
		default:
			goto done
		}
	}

done:
	if !selector.IsValid() {
		return selector, fmt.Errorf("invalid simple selector at offset %d", p.pos)
	}
	return selector, nil
}

// parseNegation parses the remainder of ":not(<compound>)". Other pseudo-classes are rejected.
func (p *Parser) parseNegation() (SimpleSelector, error) {
	name := strings.ToLower(p.parseIdentifier())
	if name != "not" {
		return SimpleSelector{}, fmt.Errorf("unsupported pseudo-class :%s", name)
	}
	if p.eof() || p.currentChar() != '(' {
		return SimpleSelector{}, fmt.Errorf("expected '(' after :not")
	}
	p.consumeChar()
	p.consumeWhitespace()
	inner, err := p.parseSimpleSelector()
	if err != nil {
		return SimpleSelector{}, err
	}
	p.consumeWhitespace()
	if p.eof() || p.currentChar() != ')' {
		return SimpleSelector{}, fmt.Errorf("expected ')' to close :not")
	}
	p.consumeChar()
	return inner, nil
}

// parseAttributeSelector parses the contents of `[...]` for an attribute selector.
func (p *Parser) parseAttributeSelector() (AttributeSelector, error) {
	p.consumeWhitespace()
	name := p.parseIdentifier()
	p.consumeWhitespace()

	if name == "" {
		return AttributeSelector{}, fmt.Errorf("expected attribute name at offset %d", p.pos)
	}
	if p.eof() {
		return AttributeSelector{}, fmt.Errorf("unexpected EOF in attribute selector")
	}

	// `[disabled]`
	if p.currentChar() == ']' {
		p.consumeChar()
		return AttributeSelector{Name: name}, nil
	}

	var operator strings.Builder
	operator.WriteByte(p.consumeChar())
	if !p.eof() && p.currentChar() == '=' {
		operator.WriteByte(p.consumeChar())
	}
	switch operator.String() {
	case "=", "~=", "|=", "^=", "$=", "*=":
	default:
		return AttributeSelector{}, fmt.Errorf("unknown attribute operator %q", operator.String())
	}

	p.consumeWhitespace()

	var value string
	if p.currentChar() == '"' || p.currentChar() == '\'' {
		quote := p.consumeChar()
		start := p.pos
		for !p.eof() && p.currentChar() != quote {
			p.pos++
		}
		if p.eof() {
			return AttributeSelector{}, fmt.Errorf("unterminated string in attribute selector")
		}
		value = p.input[start:p.pos]
		p.consumeChar()
	} else {
		value = p.parseIdentifier()
	}
	p.consumeWhitespace()

	if p.eof() || p.currentChar() != ']' {
		return AttributeSelector{}, fmt.Errorf("expected ']' to close attribute selector")
	}
	p.consumeChar()

	return AttributeSelector{
		Name:     name,
		Operator: operator.String(),
		Value:    value,
	}, nil
}

// --- Lexer-like Helpers ---

func (p *Parser) eof() bool {
	return p.pos >= len(p.input)
}

func (p *Parser) currentChar() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) consumeChar() byte {
	ch := p.currentChar()
	if !p.eof() {
		p.pos++
	}
	return ch
}

func (p *Parser) consumeWhitespace() {
	for !p.eof() && isWhitespace(p.currentChar()) {
		p.pos++
	}
}

func (p *Parser) parseIdentifier() string {
	start := p.pos
	for !p.eof() && isValidIdentifierChar(p.currentChar()) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isValidIdentifierStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '-'
}

func isValidIdentifierChar(ch byte) bool {
	return isValidIdentifierStart(ch) || (ch >= '0' && ch <= '9')
}
