// Package scenario loads search scenarios from YAML and runs them against
// pages handed out by a PageProvider.
package scenario

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultScenarios []byte

// Verb names a step action.
type Verb string

const (
	VerbOpen           Verb = "open"
	VerbSearch         Verb = "search"
	VerbType           Verb = "type"
	VerbSubmit         Verb = "submit"
	VerbClear          Verb = "clear"
	VerbPickSuggestion Verb = "pick_suggestion"
	VerbExpect         Verb = "expect"
)

// Expectation names what an expect step checks.
type Expectation string

const (
	ExpectResults          Expectation = "results"
	ExpectNoRows           Expectation = "no_rows"
	ExpectCount            Expectation = "count"
	ExpectNoResultsMessage Expectation = "no_results_message"
	ExpectHistoryEmpty     Expectation = "history_empty"
	ExpectInputEmpty       Expectation = "input_empty"
	ExpectSuggestions      Expectation = "suggestions"
)

// Step is one parsed line of a scenario, e.g. "search football" or "expect count 9".
type Step struct {
	Raw  string
	Verb Verb
	// Arg is the remainder of the line for open, search and type.
	Arg string
	// Expect and Count are set for expect steps.
	Expect Expectation
	Count  int
}

func (s Step) String() string { return s.Raw }

// UnmarshalYAML reads a step from its one-line form.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: a step must be a string: %w", node.Line, err)
	}
	step, err := ParseStep(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = step
	return nil
}

// MarshalYAML writes the one-line form back.
func (s Step) MarshalYAML() (interface{}, error) { return s.Raw, nil }

// ParseStep parses the one-line form of a step.
func ParseStep(raw string) (Step, error) {
	raw = strings.TrimSpace(raw)
	verb, rest, _ := strings.Cut(raw, " ")
	rest = strings.TrimSpace(rest)
	step := Step{Raw: raw, Verb: Verb(strings.ToLower(verb))}

	switch step.Verb {
	case VerbOpen:
		step.Arg = rest
	case VerbSearch, VerbType:
		if rest == "" {
			return Step{}, fmt.Errorf("%q needs text", raw)
		}
		step.Arg = rest
	case VerbSubmit, VerbClear, VerbPickSuggestion:
		if rest != "" {
			return Step{}, fmt.Errorf("%q takes no argument", raw)
		}
	case VerbExpect:
		what, arg, _ := strings.Cut(rest, " ")
		step.Expect = Expectation(strings.ToLower(what))
		arg = strings.TrimSpace(arg)
		switch step.Expect {
		case ExpectCount:
			n, err := strconv.Atoi(arg)
			if err != nil || n < 0 {
				return Step{}, fmt.Errorf("%q needs a non-negative count", raw)
			}
			step.Count = n
		case ExpectResults, ExpectNoRows, ExpectNoResultsMessage, ExpectHistoryEmpty, ExpectInputEmpty, ExpectSuggestions:
			if arg != "" {
				return Step{}, fmt.Errorf("%q takes no argument", raw)
			}
		default:
			return Step{}, fmt.Errorf("unknown expectation %q", what)
		}
	default:
		return Step{}, fmt.Errorf("unknown step %q", verb)
	}
	return step, nil
}

// Scenario is a named sequence of steps run in one page.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// URL overrides the site's base URL for open steps without an argument.
	URL   string `yaml:"url,omitempty"`
	Steps []Step `yaml:"steps"`
}

// File is the top level of a scenario file.
type File struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Validate checks names are present and unique and every scenario has steps.
func (f File) Validate() error {
	if len(f.Scenarios) == 0 {
		return errors.New("no scenarios defined")
	}
	seen := make(map[string]bool, len(f.Scenarios))
	for i, sc := range f.Scenarios {
		if strings.TrimSpace(sc.Name) == "" {
			return fmt.Errorf("scenario %d has no name", i+1)
		}
		if seen[sc.Name] {
			return fmt.Errorf("duplicate scenario %q", sc.Name)
		}
		seen[sc.Name] = true
		if len(sc.Steps) == 0 {
			return fmt.Errorf("scenario %q has no steps", sc.Name)
		}
	}
	return nil
}

// Filter keeps the scenarios whose names are listed. An empty list keeps all.
func (f File) Filter(names ...string) (File, error) {
	if len(names) == 0 {
		return f, nil
	}
	byName := make(map[string]Scenario, len(f.Scenarios))
	for _, sc := range f.Scenarios {
		byName[sc.Name] = sc
	}
	var out File
	for _, n := range names {
		sc, ok := byName[n]
		if !ok {
			return File{}, fmt.Errorf("unknown scenario %q", n)
		}
		out.Scenarios = append(out.Scenarios, sc)
	}
	return out, nil
}

// Load decodes and validates a scenario file. Unknown fields are rejected.
func Load(r io.Reader) (File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("failed to decode scenarios: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, fmt.Errorf("invalid scenarios: %w", err)
	}
	return f, nil
}

// LoadFile loads path, expanding a leading "~". An empty path loads the
// built-in scenarios.
func LoadFile(path string) (File, error) {
	if path == "" {
		return Default()
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to expand scenario path: %w", err)
	}
	fh, err := os.Open(expanded)
	if err != nil {
		return File{}, fmt.Errorf("failed to open scenario file: %w", err)
	}
	defer fh.Close()
	return Load(fh)
}

// Default returns the built-in scenarios.
func Default() (File, error) {
	return Load(bytes.NewReader(defaultScenarios))
}
