// Package model provides domain types shared across packages.
package model

// EditabilityState describes whether a document version accepts edits.
type EditabilityState string

const (
	EditabilityDraft     EditabilityState = "draft"
	EditabilityEditing   EditabilityState = "editing"
	EditabilityPublished EditabilityState = "published"
	EditabilityArchived  EditabilityState = "archived"
)

// DocumentContext identifies the document a pipeline run operates on.
// Immutable once loaded for a given run.
type DocumentContext struct {
	DocID       string           `json:"doc_id"`
	VersionID   string           `json:"version_id"`
	StoragePath string           `json:"storage_path,omitempty"`
	TaskID      string           `json:"task_id,omitempty"`
	Actor       string           `json:"actor"`
	Editability EditabilityState `json:"editability_state"`
}

// Editable reports whether the document state permits mutation.
// Only draft and editing documents may be patched.
func (d DocumentContext) Editable() bool {
	return d.Editability == EditabilityDraft || d.Editability == EditabilityEditing
}
