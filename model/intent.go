// Edit intent types: the DSL an orchestrator speaks to the engine.
//
// Selectors are tagged variants. Invalid shapes fail at construction
// (UnmarshalJSON), not at some later pipeline stage.

package model

import (
	"encoding/json"
	"fmt"
)

// IntentType is the kind of edit being requested.
type IntentType string

const (
	IntentInsert    IntentType = "insert"
	IntentUpdate    IntentType = "update"
	IntentDelete    IntentType = "delete"
	IntentRefactor  IntentType = "refactor"
	IntentSummarize IntentType = "summarize"
)

// ActionMode describes how the new content relates to the target block.
type ActionMode string

const (
	ModeBefore      ActionMode = "before"
	ModeAfter       ActionMode = "after"
	ModeAppendChild ActionMode = "append_child"
	ModeReplace     ActionMode = "replace"
	ModeAppend      ActionMode = "append"
	ModePrepend     ActionMode = "prepend"
	ModeRemove      ActionMode = "remove"
	ModeRewrite     ActionMode = "rewrite"
	ModeCondense    ActionMode = "condense"
)

// ContentPolicy describes where the new content comes from.
type ContentPolicy string

const (
	// PolicyGenerate synthesizes content through the content generator.
	PolicyGenerate ContentPolicy = "generate"
	// PolicyVerbatim uses Action.Content as provided, no generation call.
	PolicyVerbatim ContentPolicy = "verbatim"
	// PolicyNone is for delete intents, which carry no content.
	PolicyNone ContentPolicy = "none"
)

// Action pairs a mode with a content policy.
type Action struct {
	Mode          ActionMode    `json:"mode"`
	ContentPolicy ContentPolicy `json:"content_policy"`
	Content       string        `json:"content,omitempty"` // for verbatim policy
}

// SelectorKind tags the TargetSelector variant.
type SelectorKind string

const (
	SelectorHeading SelectorKind = "heading"
	SelectorAnchor  SelectorKind = "anchor"
	SelectorBlock   SelectorKind = "block"
)

// HeadingSelector targets a heading by text, optionally disambiguated by
// level, occurrence (1-based), or the full ancestor path.
type HeadingSelector struct {
	Text       string   `json:"text"`
	Level      int      `json:"level,omitempty"`
	Occurrence int      `json:"occurrence,omitempty"`
	Path       []string `json:"path,omitempty"`
}

// AnchorSelector targets a block by anchor identifier.
type AnchorSelector struct {
	Value string `json:"value"`
}

// BlockSelector targets a block by its exact identifier.
type BlockSelector struct {
	ID string `json:"block_id"`
}

// TargetSelector is a tagged variant: exactly one of Heading, Anchor or
// Block is set, matching Kind.
type TargetSelector struct {
	Kind    SelectorKind     `json:"kind"`
	Heading *HeadingSelector `json:"heading,omitempty"`
	Anchor  *AnchorSelector  `json:"anchor,omitempty"`
	Block   *BlockSelector   `json:"block,omitempty"`
}

// UnmarshalJSON enforces the one-variant invariant at construction time.
func (s *TargetSelector) UnmarshalJSON(data []byte) error {
	// Use an alias to avoid infinite recursion
	type selectorAlias TargetSelector
	aux := (*selectorAlias)(s)
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	return s.Check()
}

// Check validates the tag/payload pairing.
func (s *TargetSelector) Check() error {
	set := 0
	if s.Heading != nil {
		set++
	}
	if s.Anchor != nil {
		set++
	}
	if s.Block != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("target selector must carry exactly one variant, has %d", set)
	}
	switch s.Kind {
	case SelectorHeading:
		if s.Heading == nil {
			return fmt.Errorf("selector kind %q without heading payload", s.Kind)
		}
	case SelectorAnchor:
		if s.Anchor == nil {
			return fmt.Errorf("selector kind %q without anchor payload", s.Kind)
		}
	case SelectorBlock:
		if s.Block == nil {
			return fmt.Errorf("selector kind %q without block payload", s.Kind)
		}
	default:
		return fmt.Errorf("unknown selector kind: %q", s.Kind)
	}
	return nil
}

// String renders the selector for error details and logs.
func (s TargetSelector) String() string {
	switch s.Kind {
	case SelectorHeading:
		if s.Heading == nil {
			return "heading(?)"
		}
		return fmt.Sprintf("heading(%q, level=%d, occurrence=%d)", s.Heading.Text, s.Heading.Level, s.Heading.Occurrence)
	case SelectorAnchor:
		if s.Anchor == nil {
			return "anchor(?)"
		}
		return fmt.Sprintf("anchor(%q)", s.Anchor.Value)
	case SelectorBlock:
		if s.Block == nil {
			return "block(?)"
		}
		return fmt.Sprintf("block(%s)", s.Block.ID)
	default:
		return string(s.Kind)
	}
}

// SemanticDrift holds drift thresholds, both in [0, 1].
type SemanticDrift struct {
	NERChangeRateMax   float64 `json:"ner_change_rate_max"`
	KeywordsOverlapMin float64 `json:"keywords_overlap_min"`
}

// Constraints are quantified, machine-checkable limits on candidate
// content. Every constraint is enforced; none is advisory.
type Constraints struct {
	MaxTokens           int            `json:"max_tokens,omitempty"`
	MaxChars            int            `json:"max_chars,omitempty"`
	StyleGuide          string         `json:"style_guide,omitempty"`
	SemanticDrift       *SemanticDrift `json:"semantic_drift,omitempty"`
	NoExternalReference bool           `json:"no_external_reference,omitempty"`
	PreserveExisting    bool           `json:"preserve_existing,omitempty"`
	AllowedSections     []string       `json:"allowed_sections,omitempty"`
	ForbiddenOperations []string       `json:"forbidden_operations,omitempty"`
}

// EditIntent is a single self-contained edit request.
type EditIntent struct {
	SchemaVersion string         `json:"intent_schema_version"`
	IntentID      string         `json:"intent_id"`
	Type          IntentType     `json:"intent_type"`
	Target        TargetSelector `json:"target"`
	Action        Action         `json:"action"`
	Constraints   Constraints    `json:"constraints"`
	Requester     string         `json:"requester,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}
