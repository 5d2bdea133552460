// Package intent validates edit intents against the versioned DSL
// schema and the intent-type/action compatibility table.
//
// Checks run in a fixed order: schema shape, compatibility table,
// constraint field ranges. The first failing check determines the
// returned error; validation never "mostly passes".

package intent

import (
	"encoding/json"
	"fmt"

	"github.com/richinex/redline/model"
)

// Schema versions the engine accepts: the current version and the
// immediately prior one.
const (
	SchemaVersionCurrent = "2"
	SchemaVersionPrior   = "1"
)

// compatibility is the fixed intent-type x action-mode table. An intent
// whose mode is not listed for its type is rejected before any parsing.
var compatibility = map[model.IntentType]map[model.ActionMode]bool{
	model.IntentInsert: {
		model.ModeBefore:      true,
		model.ModeAfter:       true,
		model.ModeAppendChild: true,
	},
	model.IntentUpdate: {
		model.ModeReplace: true,
		model.ModeAppend:  true,
		model.ModePrepend: true,
	},
	model.IntentDelete: {
		model.ModeRemove: true,
	},
	model.IntentRefactor: {
		model.ModeRewrite: true,
	},
	model.IntentSummarize: {
		model.ModeCondense: true,
		model.ModeReplace:  true,
	},
}

// policies is the fixed intent-type x content-policy table.
var policies = map[model.IntentType]map[model.ContentPolicy]bool{
	model.IntentInsert:    {model.PolicyGenerate: true, model.PolicyVerbatim: true},
	model.IntentUpdate:    {model.PolicyGenerate: true, model.PolicyVerbatim: true},
	model.IntentDelete:    {model.PolicyNone: true},
	model.IntentRefactor:  {model.PolicyGenerate: true},
	model.IntentSummarize: {model.PolicyGenerate: true},
}

// Parse decodes raw JSON into a strongly-typed EditIntent. Shapes that
// do not decode (including selectors with zero or multiple variants)
// fail here with INTENT_SCHEMA_INVALID.
func Parse(raw []byte) (*model.EditIntent, error) {
	var it model.EditIntent
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil, model.NewError(model.CodeIntentSchemaInvalid,
			"intent payload does not decode").
			Wrap(err).
			WithSuggestion("check the intent JSON against the published schema")
	}
	return &it, nil
}

// Validate checks an intent. Returns nil or an EngineError carrying the
// first failing check.
func Validate(it *model.EditIntent) error {
	if err := checkSchema(it); err != nil {
		return err
	}
	if err := checkCompatibility(it); err != nil {
		return err
	}
	return checkConstraints(it.Constraints)
}

// checkSchema validates shape: schema version, required fields, and the
// selector variant invariant.
func checkSchema(it *model.EditIntent) error {
	switch it.SchemaVersion {
	case SchemaVersionCurrent, SchemaVersionPrior:
	default:
		return model.NewError(model.CodeIntentSchemaInvalid,
			fmt.Sprintf("unsupported intent_schema_version %q", it.SchemaVersion)).
			WithDetail("supported_versions", []string{SchemaVersionPrior, SchemaVersionCurrent})
	}
	if it.IntentID == "" {
		return model.NewError(model.CodeIntentSchemaInvalid, "intent_id is required")
	}
	if _, ok := compatibility[it.Type]; !ok {
		return model.NewError(model.CodeIntentSchemaInvalid,
			fmt.Sprintf("unknown intent_type %q", it.Type)).
			WithDetail("intent_type", string(it.Type))
	}
	if err := it.Target.Check(); err != nil {
		return model.NewError(model.CodeIntentSchemaInvalid, "malformed target selector").
			Wrap(err).
			WithDetail("selector", it.Target.String())
	}
	// v1 intents predate the semantic_drift constraint.
	if it.SchemaVersion == SchemaVersionPrior && it.Constraints.SemanticDrift != nil {
		return model.NewError(model.CodeIntentSchemaInvalid,
			"semantic_drift requires intent_schema_version 2").
			WithDetail("intent_schema_version", it.SchemaVersion)
	}
	return nil
}

// checkCompatibility enforces the fixed mode and content-policy tables.
func checkCompatibility(it *model.EditIntent) error {
	if !compatibility[it.Type][it.Action.Mode] {
		return model.NewError(model.CodeIntentTypeIncompatible,
			fmt.Sprintf("intent_type %q does not permit action mode %q", it.Type, it.Action.Mode)).
			WithDetail("intent_type", string(it.Type)).
			WithDetail("action_mode", string(it.Action.Mode)).
			WithDetail("allowed_modes", allowedModes(it.Type)).
			WithSuggestion("pick one of the allowed modes for this intent type")
	}
	policy := it.Action.ContentPolicy
	if policy == "" && it.Type == model.IntentDelete {
		policy = model.PolicyNone
	}
	if !policies[it.Type][policy] {
		return model.NewError(model.CodeIntentTypeIncompatible,
			fmt.Sprintf("intent_type %q does not permit content_policy %q", it.Type, policy)).
			WithDetail("intent_type", string(it.Type)).
			WithDetail("content_policy", string(policy))
	}
	if policy == model.PolicyVerbatim && it.Action.Content == "" {
		return model.NewError(model.CodeIntentTypeIncompatible,
			"verbatim content_policy requires action.content")
	}
	return nil
}

// checkConstraints validates constraint field types and ranges.
func checkConstraints(c model.Constraints) error {
	if c.MaxTokens < 0 {
		return constraintRangeError("max_tokens", c.MaxTokens, "must be >= 0")
	}
	if c.MaxChars < 0 {
		return constraintRangeError("max_chars", c.MaxChars, "must be >= 0")
	}
	if d := c.SemanticDrift; d != nil {
		if d.NERChangeRateMax < 0 || d.NERChangeRateMax > 1 {
			return constraintRangeError("semantic_drift.ner_change_rate_max", d.NERChangeRateMax, "must be in [0, 1]")
		}
		if d.KeywordsOverlapMin < 0 || d.KeywordsOverlapMin > 1 {
			return constraintRangeError("semantic_drift.keywords_overlap_min", d.KeywordsOverlapMin, "must be in [0, 1]")
		}
	}
	for _, op := range c.ForbiddenOperations {
		switch model.Op(op) {
		case model.OpInsert, model.OpUpdate, model.OpDelete, model.OpMove, model.OpReplace:
		default:
			return constraintRangeError("forbidden_operations", op, "unknown operation")
		}
	}
	return nil
}

func constraintRangeError(field string, value any, reason string) error {
	return model.NewError(model.CodeIntentSchemaInvalid,
		fmt.Sprintf("constraint %s %s", field, reason)).
		WithDetail("field", field).
		WithDetail("value", value)
}

func allowedModes(t model.IntentType) []string {
	var out []string
	for _, m := range []model.ActionMode{
		model.ModeBefore, model.ModeAfter, model.ModeAppendChild,
		model.ModeReplace, model.ModeAppend, model.ModePrepend,
		model.ModeRemove, model.ModeRewrite, model.ModeCondense,
	} {
		if compatibility[t][m] {
			out = append(out, string(m))
		}
	}
	return out
}
