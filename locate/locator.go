// Package locate resolves a target selector to exactly one block in a
// parsed tree. Ambiguity or absence is terminal, never silently
// resolved.
//
// Resolution order for headings: exact path match, then exact
// text+level+occurrence, then text-only (only if unique). Anchors try
// id-derived anchors first, then explicit markers, and must be globally
// unique. Block IDs are exact lookups. Fuzzy matching runs only after
// exact resolution fails, and never for block selectors.

package locate

import (
	"fmt"
	"strings"

	"github.com/richinex/redline/model"
	"github.com/richinex/redline/parser"
)

// Config bounds fuzzy matching. Thresholds are ratios in [0, 1];
// classification happens in integer edit-distance space so boundary
// cases are deterministic.
type Config struct {
	// HighConfidence is the similarity at or above which a single
	// candidate resolves directly.
	HighConfidence float64
	// CandidateFloor is the similarity at or above which a block may
	// appear in the ranked candidate list.
	CandidateFloor float64
	// SearchWindow caps how many blocks fuzzy matching scans.
	SearchWindow int
	// MaxCandidates caps the ranked candidate list.
	MaxCandidates int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		HighConfidence: 0.90,
		CandidateFloor: 0.60,
		SearchWindow:   200,
		MaxCandidates:  5,
	}
}

// Candidate is one fuzzy match with its similarity score.
type Candidate struct {
	Block      *model.Block
	Similarity float64
}

// Locator resolves selectors against block trees.
type Locator struct {
	cfg Config
}

// New creates a locator with the given config.
func New(cfg Config) *Locator {
	if cfg.SearchWindow <= 0 {
		cfg.SearchWindow = DefaultConfig().SearchWindow
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig().MaxCandidates
	}
	return &Locator{cfg: cfg}
}

// Locate resolves sel to exactly one block. On ambiguity the returned
// EngineError carries the candidate list in Details["candidates"].
func (l *Locator) Locate(tree *model.BlockTree, sel model.TargetSelector) (*model.Block, error) {
	if err := sel.Check(); err != nil {
		return nil, model.NewError(model.CodeTargetSelectorInvalid, "malformed selector").
			Wrap(err).
			WithDetail("selector", sel.String())
	}

	switch sel.Kind {
	case model.SelectorHeading:
		return l.locateHeading(tree, sel)
	case model.SelectorAnchor:
		return l.locateAnchor(tree, sel)
	case model.SelectorBlock:
		return l.locateBlock(tree, sel)
	default:
		return nil, model.NewError(model.CodeTargetSelectorInvalid,
			fmt.Sprintf("unknown selector kind %q", sel.Kind))
	}
}

func (l *Locator) locateHeading(tree *model.BlockTree, sel model.TargetSelector) (*model.Block, error) {
	h := sel.Heading

	headings := headingBlocks(tree)

	// 1. Exact path match: ancestor path plus own text.
	if len(h.Path) > 0 {
		var matches []*model.Block
		for _, b := range headings {
			full := append(append([]string{}, b.HeadingPath...), b.HeadingText())
			if equalPath(full, h.Path) {
				matches = append(matches, b)
			}
		}
		if len(matches) == 1 {
			return matches[0], nil
		}
		if len(matches) > 1 {
			return nil, ambiguousError(sel, exactCandidates(matches))
		}
		// Path given but nothing matched: the text rungs below still
		// get their chance before fuzzy matching.
	}

	// 2. Exact text + level + occurrence.
	occurrence := 0
	var textLevel []*model.Block
	for _, b := range headings {
		if b.HeadingText() != h.Text {
			continue
		}
		if h.Level > 0 && b.Level != h.Level {
			continue
		}
		textLevel = append(textLevel, b)
		occurrence++
		if h.Occurrence > 0 && occurrence == h.Occurrence {
			return b, nil
		}
	}
	if h.Occurrence > 0 {
		// Asked for an occurrence that does not exist.
		return l.fuzzyFallback(sel, h.Text, headings)
	}

	// 3. Text-only (plus optional level), only if unique.
	if len(textLevel) == 1 {
		return textLevel[0], nil
	}
	if len(textLevel) > 1 {
		return nil, ambiguousError(sel, exactCandidates(textLevel)).
			WithSuggestion("disambiguate with level, occurrence or path")
	}

	return l.fuzzyFallback(sel, h.Text, headings)
}

func (l *Locator) locateAnchor(tree *model.BlockTree, sel model.TargetSelector) (*model.Block, error) {
	value := sel.Anchor.Value

	// Id-derived anchors (heading slugs) first.
	var derived []*model.Block
	for _, b := range headingBlocks(tree) {
		if parser.Slug(b.HeadingText()) == value {
			derived = append(derived, b)
		}
	}
	if len(derived) == 1 {
		return derived[0], nil
	}
	if len(derived) > 1 {
		return nil, ambiguousError(sel, exactCandidates(derived)).
			WithSuggestion("anchors must be unique per document; target by block_id instead")
	}

	// Then explicit anchor markers.
	var explicit []*model.Block
	tree.Walk(func(b *model.Block) bool {
		if b.Anchor == value {
			explicit = append(explicit, b)
		}
		return true
	})
	if len(explicit) == 1 {
		return explicit[0], nil
	}
	if len(explicit) > 1 {
		return nil, ambiguousError(sel, exactCandidates(explicit)).
			WithSuggestion("anchors must be unique per document; target by block_id instead")
	}

	return l.fuzzyFallback(sel, value, headingBlocks(tree))
}

func (l *Locator) locateBlock(tree *model.BlockTree, sel model.TargetSelector) (*model.Block, error) {
	id := sel.Block.ID
	if !model.ValidBlockID(id) {
		// Malformed ID is a distinct error from "not found".
		return nil, model.NewError(model.CodeTargetSelectorInvalid,
			fmt.Sprintf("malformed block_id %q", id)).
			WithDetail("block_id", id).
			WithDetail("expected_format", fmt.Sprintf("%d lowercase hex characters", model.BlockIDLen))
	}
	if b := tree.ByID(id); b != nil {
		return b, nil
	}
	// IDs are exact by definition: no fuzzy fallback.
	return nil, model.NewError(model.CodeTargetNotFound,
		fmt.Sprintf("no block with id %q", id)).
		WithDetail("block_id", id)
}

// fuzzyFallback runs bounded edit-distance matching of text against
// heading texts. A single candidate at or above the high-confidence
// threshold resolves directly; candidates at or above the floor come
// back ranked; otherwise NotFound.
func (l *Locator) fuzzyFallback(sel model.TargetSelector, text string, blocks []*model.Block) (*model.Block, error) {
	if text == "" {
		return nil, notFoundError(sel)
	}

	var high []Candidate
	var ranked []Candidate
	scanned := 0
	for _, b := range blocks {
		if scanned >= l.cfg.SearchWindow {
			break
		}
		scanned++
		target := b.HeadingText()
		if target == "" {
			continue
		}
		d := levenshtein(strings.ToLower(text), strings.ToLower(target))
		m := max(len([]rune(text)), len([]rune(target)))
		if m == 0 {
			continue
		}
		if !atLeast(d, m, l.cfg.CandidateFloor) {
			continue
		}
		c := Candidate{Block: b, Similarity: 1 - float64(d)/float64(m)}
		ranked = append(ranked, c)
		if atLeast(d, m, l.cfg.HighConfidence) {
			high = append(high, c)
		}
	}

	if len(high) == 1 {
		return high[0].Block, nil
	}
	if len(ranked) == 0 {
		return nil, notFoundError(sel)
	}

	sortCandidates(ranked)
	if len(ranked) > l.cfg.MaxCandidates {
		ranked = ranked[:l.cfg.MaxCandidates]
	}
	return nil, ambiguousError(sel, ranked)
}

// atLeast reports whether similarity 1 - d/m >= threshold, evaluated by
// cross-multiplication in integer space. Thresholds are config values
// with at most three decimal places.
func atLeast(d, m int, threshold float64) bool {
	// 1 - d/m >= t  <=>  d*1000 <= m*(1000 - t*1000)
	scaled := int(threshold*1000 + 0.5)
	return d*1000 <= m*(1000-scaled)
}

// levenshtein computes the edit distance between two strings, by rune.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(min(cur[j-1]+1, prev[j]+1), prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// sortCandidates orders by similarity descending, document order as
// tie-break (stable: blocks arrive in document order).
func sortCandidates(cs []Candidate) {
	// Insertion sort keeps the document-order tie-break stable.
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].Similarity > cs[j-1].Similarity; j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

func headingBlocks(tree *model.BlockTree) []*model.Block {
	var out []*model.Block
	tree.Walk(func(b *model.Block) bool {
		if b.Type == model.BlockHeading {
			out = append(out, b)
		}
		return true
	})
	return out
}

func equalPath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func exactCandidates(blocks []*model.Block) []Candidate {
	out := make([]Candidate, len(blocks))
	for i, b := range blocks {
		out[i] = Candidate{Block: b, Similarity: 1}
	}
	return out
}

func ambiguousError(sel model.TargetSelector, cs []Candidate) *model.EngineError {
	details := make([]map[string]any, len(cs))
	for i, c := range cs {
		details[i] = map[string]any{
			"block_id":     c.Block.ID,
			"block_type":   string(c.Block.Type),
			"heading_path": c.Block.HeadingPath,
			"similarity":   c.Similarity,
		}
		if t := c.Block.HeadingText(); t != "" {
			details[i]["text"] = t
		}
	}
	return model.NewError(model.CodeTargetAmbiguous,
		fmt.Sprintf("selector %s matches %d blocks", sel, len(cs))).
		WithDetail("selector", sel.String()).
		WithDetail("candidates", details)
}

func notFoundError(sel model.TargetSelector) *model.EngineError {
	return model.NewError(model.CodeTargetNotFound,
		fmt.Sprintf("selector %s matches no block", sel)).
		WithDetail("selector", sel.String())
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
