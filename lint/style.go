// Style rule sets, loadable from YAML.
//
// A rule set is a named list of regex rules plus a few structural
// limits. The built-in "default" set encodes house style; deployments
// layer their own sets on top via LoadRuleSet.

package lint

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// StyleRule is one checkable style constraint. Pattern is a regex the
// content must NOT match.
type StyleRule struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Pattern     string `yaml:"pattern"`

	re *regexp.Regexp
}

// StyleRuleSet is a named collection of rules.
type StyleRuleSet struct {
	Name            string      `yaml:"name"`
	MaxLineLength   int         `yaml:"max_line_length"`
	MaxHeadingLevel int         `yaml:"max_heading_level"`
	Rules           []StyleRule `yaml:"rules"`
}

// compile prepares the rule regexes. Invalid patterns fail loading, not
// checking.
func (s *StyleRuleSet) compile() error {
	for i := range s.Rules {
		re, err := regexp.Compile(s.Rules[i].Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: bad pattern: %w", s.Rules[i].ID, err)
		}
		s.Rules[i].re = re
	}
	return nil
}

// StyleRegistry holds rule sets by name.
type StyleRegistry struct {
	sets map[string]*StyleRuleSet
}

// NewStyleRegistry returns a registry seeded with the default rule set.
func NewStyleRegistry() *StyleRegistry {
	r := &StyleRegistry{sets: map[string]*StyleRuleSet{}}
	def := defaultRuleSet()
	if err := def.compile(); err != nil {
		// Default patterns are constants; a failure here is a
		// programming error.
		panic(err)
	}
	r.sets[def.Name] = def
	return r
}

// Add registers a rule set, compiling its patterns.
func (r *StyleRegistry) Add(set *StyleRuleSet) error {
	if set.Name == "" {
		return fmt.Errorf("rule set needs a name")
	}
	if err := set.compile(); err != nil {
		return err
	}
	r.sets[set.Name] = set
	return nil
}

// Get returns the named rule set, or nil.
func (r *StyleRegistry) Get(name string) *StyleRuleSet {
	return r.sets[name]
}

// LoadRuleSet reads a YAML rule set from path and registers it.
func (r *StyleRegistry) LoadRuleSet(path string) (*StyleRuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set: %w", err)
	}
	var set StyleRuleSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}
	if err := r.Add(&set); err != nil {
		return nil, err
	}
	return &set, nil
}

func defaultRuleSet() *StyleRuleSet {
	return &StyleRuleSet{
		Name:            "default",
		MaxLineLength:   0,
		MaxHeadingLevel: 6,
		Rules: []StyleRule{
			{
				ID:          "no-first-person",
				Description: "documentation avoids first person",
				Pattern:     `(?i)\b(I|we|our)\b`,
			},
			{
				ID:          "no-exclamation",
				Description: "no exclamation marks in prose",
				Pattern:     `!`,
			},
			{
				ID:          "no-todo-markers",
				Description: "generated content must not contain TODO or FIXME markers",
				Pattern:     `\b(TODO|FIXME|XXX)\b`,
			},
		},
	}
}
