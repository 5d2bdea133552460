// Package patch turns validated edits into applicable patches.
//
// A block patch is the semantic form: typed operations against block
// selectors. The text form is a plain unified diff derived from it, so
// systems that know nothing about block trees can still apply the
// change. Application is atomic: an operation that cannot be applied
// fails the whole patch.

package patch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/richinex/redline/model"
	"github.com/richinex/redline/parser"
)

// Build assembles a block patch for the resolved target. Content is the
// final validated content for the operation; for delete intents it is
// ignored. createdAt stamps the patch; callers pass their clock so two
// identical runs can produce identical patches.
func Build(it *model.EditIntent, target *model.Block, doc model.DocumentContext, content string, createdAt time.Time) (*model.BlockPatch, error) {
	op, err := buildOperation(it, target, content)
	if err != nil {
		return nil, err
	}
	if err := checkForbidden(it.Constraints, op.Op); err != nil {
		return nil, err
	}

	ops := []model.Operation{op}
	return &model.BlockPatch{
		PatchID:    patchID(it, doc, ops),
		IntentID:   it.IntentID,
		DocID:      doc.DocID,
		VersionID:  doc.VersionID,
		Operations: ops,
		CreatedAt:  createdAt.UTC(),
	}, nil
}

// patchID is content-derived: the same intent producing the same
// operations against the same document version always yields the same
// identifier.
func patchID(it *model.EditIntent, doc model.DocumentContext, ops []model.Operation) string {
	payload, err := json.Marshal(struct {
		IntentID   string            `json:"intent_id"`
		DocID      string            `json:"doc_id"`
		VersionID  string            `json:"version_id"`
		Operations []model.Operation `json:"operations"`
	}{it.IntentID, doc.DocID, doc.VersionID, ops})
	if err != nil {
		// Operations hold only strings and string maps; guard anyway.
		payload = []byte(it.IntentID + "\x00" + doc.DocID + "\x00" + doc.VersionID)
	}
	return model.HashContent(payload)
}

func buildOperation(it *model.EditIntent, target *model.Block, content string) (model.Operation, error) {
	sel := model.TargetSelector{
		Kind:  model.SelectorBlock,
		Block: &model.BlockSelector{ID: target.ID},
	}
	meta := map[string]string{
		"intent_type":       string(it.Type),
		"action_mode":       string(it.Action.Mode),
		"original_selector": it.Target.String(),
	}

	switch it.Type {
	case model.IntentInsert:
		return model.Operation{
			Op:       model.OpInsert,
			Target:   sel,
			Position: positionFor(it.Action.Mode),
			Content:  content,
			Metadata: meta,
		}, nil

	case model.IntentUpdate:
		final := content
		switch it.Action.Mode {
		case model.ModeAppend:
			final = target.Content + "\n\n" + content
		case model.ModePrepend:
			final = content + "\n\n" + target.Content
		}
		meta["old_content"] = target.Content
		return model.Operation{
			Op:       model.OpUpdate,
			Target:   sel,
			Content:  final,
			Metadata: meta,
		}, nil

	case model.IntentDelete:
		meta["old_content"] = target.Content
		return model.Operation{
			Op:       model.OpDelete,
			Target:   sel,
			Metadata: meta,
		}, nil

	case model.IntentRefactor, model.IntentSummarize:
		meta["old_content"] = target.Content
		return model.Operation{
			Op:       model.OpReplace,
			Target:   sel,
			Content:  content,
			Metadata: meta,
		}, nil

	default:
		return model.Operation{}, model.NewError(model.CodeIntentSchemaInvalid,
			fmt.Sprintf("unknown intent_type %q", it.Type))
	}
}

func positionFor(mode model.ActionMode) model.Position {
	switch mode {
	case model.ModeBefore:
		return model.PosBefore
	case model.ModeAfter:
		return model.PosAfter
	default:
		return model.PosAppendChild
	}
}

func checkForbidden(c model.Constraints, op model.Op) error {
	for _, forbidden := range c.ForbiddenOperations {
		if model.Op(forbidden) == op {
			return model.NewError(model.CodeConstraintViolation,
				fmt.Sprintf("operation %q is forbidden by the intent", op)).
				WithDetail("operation", string(op))
		}
	}
	if c.PreserveExisting && (op == model.OpDelete || op == model.OpReplace) {
		return model.NewError(model.CodeConstraintViolation,
			fmt.Sprintf("operation %q would discard existing content but preserve_existing is set", op)).
			WithDetail("operation", string(op))
	}
	return nil
}

// Apply applies a block patch to document text and returns the patched
// text. Either every operation applies or the document is unchanged.
func Apply(docText string, p *model.BlockPatch) (string, error) {
	tree, err := parser.Parse(docText)
	if err != nil {
		return "", err
	}

	for i, op := range p.Operations {
		if err := applyOp(tree, op); err != nil {
			if ee := model.AsEngineError(err); ee != nil {
				return "", ee.WithDetail("operation_index", i)
			}
			return "", err
		}
	}
	return parser.Serialize(tree), nil
}

func applyOp(tree *model.BlockTree, op model.Operation) error {
	target, err := resolve(tree, op.Target)
	if err != nil {
		return err
	}

	switch op.Op {
	case model.OpUpdate, model.OpReplace:
		target.Content = op.Content
		return nil

	case model.OpDelete:
		return removeBlock(tree, target)

	case model.OpInsert:
		return insertBlock(tree, target, op.Position, op.Content)

	case model.OpMove:
		if op.Source == nil {
			return model.NewError(model.CodePatchConversionFailed,
				"move operation needs a source selector")
		}
		moved, err := resolve(tree, *op.Source)
		if err != nil {
			return err
		}
		if err := removeBlock(tree, moved); err != nil {
			return err
		}
		// Re-attach the detached block itself: type, children and the
		// section a heading owns all travel with it.
		return attachBlock(tree, target, op.Position, moved)

	default:
		return model.NewError(model.CodePatchConversionFailed,
			fmt.Sprintf("unknown operation %q", op.Op))
	}
}

func resolve(tree *model.BlockTree, sel model.TargetSelector) (*model.Block, error) {
	if sel.Kind != model.SelectorBlock || sel.Block == nil {
		return nil, model.NewError(model.CodePatchConversionFailed,
			"patch operations must target blocks by id").
			WithDetail("selector", sel.String())
	}
	b := tree.ByID(sel.Block.ID)
	if b == nil {
		return nil, model.NewError(model.CodeVersionMismatch,
			fmt.Sprintf("block %s not present in this document version", sel.Block.ID)).
			WithDetail("block_id", sel.Block.ID).
			WithSuggestion("re-resolve the target against the current version")
	}
	return b, nil
}

func removeBlock(tree *model.BlockTree, target *model.Block) error {
	parent, idx := locateChild(tree, target)
	if parent == nil {
		return model.NewError(model.CodePatchConversionFailed,
			fmt.Sprintf("block %s has no parent", target.ID))
	}
	// The section a heading opens goes with it.
	parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)
	if idx == 0 && len(parent.Children) > 0 {
		// Keep the document's leading blank count stable.
		first := parent.Children[0]
		if parent == tree.Root && first.BlankBefore > target.BlankBefore {
			first.BlankBefore = target.BlankBefore
		}
	}
	return nil
}

func insertBlock(tree *model.BlockTree, target *model.Block, pos model.Position, content string) error {
	return attachBlock(tree, target, pos, &model.Block{
		Type:    model.BlockParagraph,
		Content: content,
	})
}

// attachBlock splices nb, children intact, into the tree at pos
// relative to target.
func attachBlock(tree *model.BlockTree, target *model.Block, pos model.Position, nb *model.Block) error {
	nb.BlankBefore = 1

	switch pos {
	case model.PosAppendChild:
		target.Children = append(target.Children, nb)
		return nil

	case model.PosBefore, model.PosAfter:
		parent, idx := locateChild(tree, target)
		if parent == nil {
			return model.NewError(model.CodePatchConversionFailed,
				fmt.Sprintf("block %s has no parent", target.ID))
		}
		at := idx
		if pos == model.PosAfter {
			at = idx + 1
		}
		if pos == model.PosBefore {
			// Take over the target's leading blank run.
			nb.BlankBefore = target.BlankBefore
			target.BlankBefore = 1
		}
		parent.Children = append(parent.Children, nil)
		copy(parent.Children[at+1:], parent.Children[at:])
		parent.Children[at] = nb
		return nil

	default:
		return model.NewError(model.CodePatchConversionFailed,
			fmt.Sprintf("unknown insert position %q", pos))
	}
}

// locateChild finds target's parent and its index among the siblings.
func locateChild(tree *model.BlockTree, target *model.Block) (*model.Block, int) {
	var parent *model.Block
	var index int
	var visit func(b *model.Block) bool
	visit = func(b *model.Block) bool {
		for i, c := range b.Children {
			if c == target {
				parent, index = b, i
				return false
			}
			if !visit(c) {
				return false
			}
		}
		return true
	}
	visit(tree.Root)
	return parent, index
}
