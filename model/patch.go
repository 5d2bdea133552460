// Patch representations: semantic, block-structural and line-based.
// All three are owned by the pipeline and never mutated after creation.

package model

import "time"

// Op is a block patch operation type.
type Op string

const (
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpMove    Op = "move"
	OpReplace Op = "replace"
)

// Position says where inserted content lands relative to the target.
type Position string

const (
	PosBefore      Position = "before"
	PosAfter       Position = "after"
	PosAppendChild Position = "append_child"
)

// Operation is one structural change. Required fields vary per op:
// insert needs Position and Content; update/replace need Content;
// delete needs neither; move relocates the Source block to Position
// relative to Target.
type Operation struct {
	Op       Op                `json:"op"`
	Target   TargetSelector    `json:"target_selector"`
	Source   *TargetSelector   `json:"source_selector,omitempty"` // the moved block, move only
	Position Position          `json:"position,omitempty"`
	Content  string            `json:"content,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// BlockPatch is the mandatory structural change representation:
// an ordered list of operations against one document version.
type BlockPatch struct {
	PatchID    string      `json:"patch_id"`
	IntentID   string      `json:"intent_id"`
	DocID      string      `json:"doc_id"`
	VersionID  string      `json:"version_id"`
	Operations []Operation `json:"operations"`
	CreatedAt  time.Time   `json:"created_at"`
}

// SemanticPatch describes the effect of an edit for human review.
type SemanticPatch struct {
	Summary string `json:"summary"`
	Effect  string `json:"effect,omitempty"`
}

// TextPatch is a unified-diff-compatible line patch derived from a
// BlockPatch. Every BlockPatch must convert losslessly; failure to
// convert is terminal, never degraded output.
type TextPatch struct {
	Unified  string `json:"unified"`
	OrigName string `json:"orig_name"`
	NewName  string `json:"new_name"`
}

// Patch bundles the three layers.
type Patch struct {
	Semantic *SemanticPatch `json:"semantic_patch,omitempty"`
	Block    BlockPatch     `json:"block_patch"`
	Text     TextPatch      `json:"text_patch"`
}

// AuditInfo records the generation provenance of a patch.
type AuditInfo struct {
	ModelVersion  string    `json:"model_version"`
	ContextDigest string    `json:"context_digest"`
	GeneratedAt   time.Time `json:"generated_at"`
	GeneratedBy   string    `json:"generated_by"`
}

// PatchResponse is the success payload returned to the orchestrator.
type PatchResponse struct {
	PatchID   string         `json:"patch_id"`
	IntentID  string         `json:"intent_id"`
	Block     BlockPatch     `json:"block_patch"`
	Text      TextPatch      `json:"text_patch"`
	Semantic  *SemanticPatch `json:"semantic_patch,omitempty"`
	Preview   string         `json:"preview,omitempty"`
	AuditInfo AuditInfo      `json:"audit_info"`
}

// ErrorResponse is the failure payload returned to the orchestrator.
type ErrorResponse struct {
	Code        Code           `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}
