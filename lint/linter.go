// Package lint validates generated candidate content before it can
// become a patch.
//
// Checks run as an ordered pipeline: structural, length, style,
// semantic drift, external references. The pipeline short-circuits on
// the first failure; the returned error names the failing stage so the
// caller can report it programmatically.

package lint

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/richinex/redline/model"
	"github.com/richinex/redline/parser"
)

// Input carries a candidate and everything its checks compare against.
type Input struct {
	// Candidate is the cleaned generated content.
	Candidate string
	// Original is the content being replaced; empty for insertions.
	Original string
	// ContextText is the assembled context window as plain text.
	ContextText string
	// Constraints come from the intent.
	Constraints model.Constraints
	// MinHeadingLevel is the shallowest heading level the candidate may
	// contain without breaking the enclosing section; 0 disables the
	// check.
	MinHeadingLevel int
}

// Linter runs the check pipeline.
type Linter struct {
	styles *StyleRegistry
}

// New creates a linter using the given style registry.
func New(styles *StyleRegistry) *Linter {
	if styles == nil {
		styles = NewStyleRegistry()
	}
	return &Linter{styles: styles}
}

// Check runs all stages in order and returns the first failure, or nil.
func (l *Linter) Check(in Input) error {
	type stage struct {
		name string
		run  func(Input) error
	}
	stages := []stage{
		{"structural", l.checkStructural},
		{"length", l.checkLength},
		{"style", l.checkStyle},
		{"semantic_drift", l.checkDrift},
		{"external_reference", l.checkExternalRefs},
	}
	for _, s := range stages {
		if err := s.run(in); err != nil {
			if ee := model.AsEngineError(err); ee != nil {
				return ee.WithDetail("stage", s.name)
			}
			return err
		}
	}
	return nil
}

// checkStructural verifies the candidate parses under the document
// grammar and respects the enclosing section's nesting.
func (l *Linter) checkStructural(in Input) error {
	tree, err := parser.Parse(in.Candidate)
	if err != nil {
		return model.NewError(model.CodeStructureBreak,
			"candidate content does not parse").
			Wrap(err)
	}
	if in.MinHeadingLevel > 0 {
		var bad *model.Block
		tree.Walk(func(b *model.Block) bool {
			if b.Type == model.BlockHeading && b.Level < in.MinHeadingLevel {
				bad = b
				return false
			}
			return true
		})
		if bad != nil {
			return model.NewError(model.CodeStructureBreak,
				fmt.Sprintf("heading level %d would break out of the enclosing section (minimum %d)",
					bad.Level, in.MinHeadingLevel)).
				WithDetail("heading", bad.HeadingText()).
				WithDetail("level", bad.Level).
				WithDetail("min_level", in.MinHeadingLevel)
		}
	}
	return nil
}

// checkLength enforces max_chars and max_tokens.
func (l *Linter) checkLength(in Input) error {
	c := in.Constraints
	if c.MaxChars > 0 {
		if n := len([]rune(in.Candidate)); n > c.MaxChars {
			return model.NewError(model.CodeConstraintViolation,
				fmt.Sprintf("content is %d characters, limit %d", n, c.MaxChars)).
				WithDetail("chars", n).
				WithDetail("max_chars", c.MaxChars).
				WithSuggestion("regenerate with a tighter length instruction")
		}
	}
	if c.MaxTokens > 0 {
		if n := CountTokens(in.Candidate); n > c.MaxTokens {
			return model.NewError(model.CodeConstraintViolation,
				fmt.Sprintf("content is %d tokens, limit %d", n, c.MaxTokens)).
				WithDetail("tokens", n).
				WithDetail("max_tokens", c.MaxTokens)
		}
	}
	return nil
}

// checkStyle applies the rule set named by the intent, defaulting to
// the built-in set.
func (l *Linter) checkStyle(in Input) error {
	name := in.Constraints.StyleGuide
	if name == "" {
		name = "default"
	}
	set := l.styles.Get(name)
	if set == nil {
		return model.NewError(model.CodeConstraintViolation,
			fmt.Sprintf("unknown style guide %q", name)).
			WithDetail("style_guide", name)
	}

	for _, rule := range set.Rules {
		if loc := rule.re.FindStringIndex(in.Candidate); loc != nil {
			return model.NewError(model.CodeConstraintViolation,
				fmt.Sprintf("style rule %s: %s", rule.ID, rule.Description)).
				WithDetail("rule", rule.ID).
				WithDetail("match", in.Candidate[loc[0]:loc[1]])
		}
	}
	if set.MaxLineLength > 0 {
		for i, line := range strings.Split(in.Candidate, "\n") {
			if len([]rune(line)) > set.MaxLineLength {
				return model.NewError(model.CodeConstraintViolation,
					fmt.Sprintf("line %d exceeds %d characters", i+1, set.MaxLineLength)).
					WithDetail("line", i+1).
					WithDetail("max_line_length", set.MaxLineLength)
			}
		}
	}
	if set.MaxHeadingLevel > 0 {
		tree, err := parser.Parse(in.Candidate)
		if err == nil {
			var bad *model.Block
			tree.Walk(func(b *model.Block) bool {
				if b.Type == model.BlockHeading && b.Level > set.MaxHeadingLevel {
					bad = b
					return false
				}
				return true
			})
			if bad != nil {
				return model.NewError(model.CodeConstraintViolation,
					fmt.Sprintf("heading deeper than level %d", set.MaxHeadingLevel)).
					WithDetail("heading", bad.HeadingText())
			}
		}
	}
	return nil
}

// checkDrift bounds how far the candidate may wander from the original:
// named-entity change rate and keyword overlap, both against the
// original content. Skipped for insertions and when the intent sets no
// bound.
func (l *Linter) checkDrift(in Input) error {
	d := in.Constraints.SemanticDrift
	if d == nil || in.Original == "" {
		return nil
	}

	origEnt := Entities(in.Original)
	newEnt := Entities(in.Candidate)
	changed := 0
	for e := range origEnt {
		if !newEnt[e] {
			changed++
		}
	}
	for e := range newEnt {
		if !origEnt[e] {
			changed++
		}
	}
	denom := len(origEnt)
	if denom == 0 {
		denom = 1
	}
	rate := float64(changed) / float64(denom)
	if d.NERChangeRateMax > 0 && rate > d.NERChangeRateMax {
		return model.NewError(model.CodeConstraintViolation,
			fmt.Sprintf("named entity change rate %.2f exceeds limit %.2f", rate, d.NERChangeRateMax)).
			WithDetail("ner_change_rate", rate).
			WithDetail("ner_change_rate_max", d.NERChangeRateMax)
	}

	origKw := Keywords(in.Original)
	if d.KeywordsOverlapMin > 0 && len(origKw) > 0 {
		newKw := Keywords(in.Candidate)
		kept := 0
		for k := range origKw {
			if newKw[k] {
				kept++
			}
		}
		overlap := float64(kept) / float64(len(origKw))
		if overlap < d.KeywordsOverlapMin {
			return model.NewError(model.CodeConstraintViolation,
				fmt.Sprintf("keyword overlap %.2f below minimum %.2f", overlap, d.KeywordsOverlapMin)).
				WithDetail("keywords_overlap", overlap).
				WithDetail("keywords_overlap_min", d.KeywordsOverlapMin)
		}
	}
	return nil
}

var urlRe = regexp.MustCompile(`https?://[^\s)\]>"']+`)

// checkExternalRefs rejects URLs the context window never mentions.
func (l *Linter) checkExternalRefs(in Input) error {
	if !in.Constraints.NoExternalReference {
		return nil
	}
	for _, url := range urlRe.FindAllString(in.Candidate, -1) {
		if !strings.Contains(in.ContextText, url) && !strings.Contains(in.Original, url) {
			return model.NewError(model.CodeConstraintViolation,
				fmt.Sprintf("content introduces external reference %s", url)).
				WithDetail("url", url).
				WithSuggestion("remove the link or allow external references in the intent")
		}
	}
	return nil
}
