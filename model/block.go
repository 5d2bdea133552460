// Block tree types produced by the structural parser.
//
// Block IDs are content-derived: hash(content + structural position),
// truncated. Re-parsing unchanged content yields identical IDs.

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// BlockType classifies a structural unit of the document.
type BlockType string

const (
	BlockDocument      BlockType = "document"
	BlockHeading       BlockType = "heading"
	BlockParagraph     BlockType = "paragraph"
	BlockList          BlockType = "list"
	BlockTable         BlockType = "table"
	BlockCode          BlockType = "code"
	BlockQuote         BlockType = "quote"
	BlockHTML          BlockType = "html"
	BlockThematicBreak BlockType = "thematic_break"
)

// BlockIDLen is the number of hex characters in a block identifier.
const BlockIDLen = 12

// Block is a node of the document's structural tree.
//
// Content holds the exact source lines of the block joined with "\n"
// (markers included). BlankBefore counts the blank lines that precede
// the block in the source, so serialization round-trips byte-exact.
type Block struct {
	ID          string    `json:"block_id"`
	Type        BlockType `json:"block_type"`
	Level       int       `json:"level,omitempty"` // heading level, 0 for non-headings
	HeadingPath []string  `json:"heading_path,omitempty"`
	Anchor      string    `json:"anchor,omitempty"`
	Content     string    `json:"content"`
	BlankBefore int       `json:"blank_before,omitempty"`
	Children    []*Block  `json:"children,omitempty"`
}

// HeadingText returns the heading text with markers and anchor suffix stripped.
// Empty for non-heading blocks.
func (b *Block) HeadingText() string {
	if b.Type != BlockHeading {
		return ""
	}
	text := strings.TrimLeft(b.Content, "#")
	text = strings.TrimSpace(text)
	if i := strings.LastIndex(text, "{#"); i >= 0 && strings.HasSuffix(text, "}") {
		text = strings.TrimSpace(text[:i])
	}
	return text
}

// BlockTree is the parsed structural tree of one document version.
// Treated as immutable once produced; concurrent intents share it read-only.
type BlockTree struct {
	Root *Block `json:"root"`

	// TrailingBlank counts blank lines after the last block; FinalNewline
	// records whether the source ended with a newline. Both are needed for
	// exact round-trips.
	TrailingBlank int  `json:"trailing_blank,omitempty"`
	FinalNewline  bool `json:"final_newline"`
}

// Walk visits every block except the synthetic root in document order.
// Returning false stops the walk.
func (t *BlockTree) Walk(fn func(b *Block) bool) {
	if t.Root == nil {
		return
	}
	var walk func(b *Block) bool
	walk = func(b *Block) bool {
		for _, c := range b.Children {
			if !fn(c) {
				return false
			}
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(t.Root)
}

// Blocks returns all blocks in document order.
func (t *BlockTree) Blocks() []*Block {
	var out []*Block
	t.Walk(func(b *Block) bool {
		out = append(out, b)
		return true
	})
	return out
}

// ByID returns the block with the given ID, or nil.
func (t *BlockTree) ByID(id string) *Block {
	var found *Block
	t.Walk(func(b *Block) bool {
		if b.ID == id {
			found = b
			return false
		}
		return true
	})
	return found
}

// ComputeBlockID derives a stable block identifier from content and the
// slash-joined child-index path from the root. Identical content at the
// same structural position always hashes to the same ID.
func ComputeBlockID(content, structuralPath string) string {
	h := sha256.Sum256([]byte(content + "\x00" + structuralPath))
	return hex.EncodeToString(h[:])[:BlockIDLen]
}

// AssignIDs recomputes every block ID from current content and position.
// Idempotent for unchanged trees.
func (t *BlockTree) AssignIDs() {
	if t.Root == nil {
		return
	}
	var assign func(b *Block, path string)
	assign = func(b *Block, path string) {
		for i, c := range b.Children {
			p := path + strconv.Itoa(i)
			c.ID = ComputeBlockID(c.Content, p)
			assign(c, p+"/")
		}
	}
	assign(t.Root, "")
}

// ValidBlockID reports whether s has the shape of a block identifier:
// exactly BlockIDLen lowercase hex characters.
func ValidBlockID(s string) bool {
	if len(s) != BlockIDLen {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
