// Package assemble builds the deterministic context window handed to
// content generation: the target block plus the structural neighborhood
// the policy selects, in document order, with a digest binding the
// generated output to its inputs.

package assemble

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/richinex/redline/model"
)

// Policy selects which blocks around the target join the context
// window.
type Policy struct {
	// AncestorHeadings includes the chain of headings above the target.
	AncestorHeadings bool
	// Siblings includes blocks sharing the target's parent.
	Siblings bool
	// MaxBlocks bounds the window; 0 means unbounded.
	MaxBlocks int
}

// DefaultPolicy includes ancestors and siblings, capped at 64 blocks.
func DefaultPolicy() Policy {
	return Policy{AncestorHeadings: true, Siblings: true, MaxBlocks: 64}
}

// Context is the assembled window. Blocks are in document order and the
// digest covers their serialized content.
type Context struct {
	Target *model.Block
	Blocks []*model.Block
	Digest string
}

// Contains reports whether the window includes the block with id.
func (c *Context) Contains(id string) bool {
	for _, b := range c.Blocks {
		if b.ID == id {
			return true
		}
	}
	return false
}

// Text renders the window as plain text, blocks separated by blank
// lines, for prompt construction.
func (c *Context) Text() string {
	out := ""
	for i, b := range c.Blocks {
		if i > 0 {
			out += "\n\n"
		}
		out += b.Content
	}
	return out
}

// Build assembles the context window for target. The same tree, target
// and policy always produce the same window and digest. Exceeding the
// policy cap fails with CONTEXT_EXCEEDS_LIMIT rather than silently
// truncating.
func Build(tree *model.BlockTree, target *model.Block, pol Policy) (*Context, error) {
	include := map[string]bool{target.ID: true}

	if pol.AncestorHeadings {
		for _, b := range ancestorHeadings(tree, target) {
			include[b.ID] = true
		}
	}
	if pol.Siblings {
		parent := parentOf(tree, target)
		if parent != nil {
			for _, s := range parent.Children {
				include[s.ID] = true
			}
		}
	}

	// Collect in document order so the window is reproducible.
	var window []*model.Block
	tree.Walk(func(b *model.Block) bool {
		if include[b.ID] {
			window = append(window, b)
		}
		return true
	})

	if pol.MaxBlocks > 0 && len(window) > pol.MaxBlocks {
		return nil, model.NewError(model.CodeContextExceedsLimit,
			fmt.Sprintf("context window of %d blocks exceeds limit %d", len(window), pol.MaxBlocks)).
			WithDetail("window_blocks", len(window)).
			WithDetail("max_blocks", pol.MaxBlocks).
			WithSuggestion("narrow the policy or target a smaller section")
	}

	return &Context{
		Target: target,
		Blocks: window,
		Digest: digest(window),
	}, nil
}

// digest hashes the serialized window blocks, NUL-separated so block
// boundaries cannot alias.
func digest(blocks []*model.Block) string {
	h := sha256.New()
	for i, b := range blocks {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(b.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ancestorHeadings returns the target's enclosing heading blocks,
// outermost first. The parent chain is followed by identity, so a
// heading elsewhere in the tree with the same text never substitutes
// for a true ancestor.
func ancestorHeadings(tree *model.BlockTree, target *model.Block) []*model.Block {
	var out []*model.Block
	for b := parentOf(tree, target); b != nil && b != tree.Root; b = parentOf(tree, b) {
		if b.Type == model.BlockHeading {
			out = append(out, b)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// parentOf finds the block whose Children contain target.
func parentOf(tree *model.BlockTree, target *model.Block) *model.Block {
	var parent *model.Block
	var visit func(b *model.Block) bool
	visit = func(b *model.Block) bool {
		for _, c := range b.Children {
			if c == target {
				parent = b
				return false
			}
			if !visit(c) {
				return false
			}
		}
		return true
	}
	visit(tree.Root)
	return parent
}
