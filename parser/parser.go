// Package parser turns raw document text into an ordered tree of typed
// blocks with stable, content-derived identifiers, and serializes trees
// back to source.
//
// The supported grammar is a fixed subset of block-structured markup:
// ATX headings, paragraphs, fenced code, lists, pipe tables, quotes,
// HTML blocks and thematic breaks, separated by empty lines. There is
// no speculative recovery: content that violates the grammar fails with
// PARSE_ERROR.
//
// Round-trip invariant: Serialize(Parse(text)) == text for all
// supported input. Blocks keep their exact source lines; empty-line
// runs are counted per block.

package parser

import (
	"regexp"
	"strings"

	"github.com/richinex/redline/model"
)

// GrammarVersion identifies the supported grammar subset.
const GrammarVersion = "1"

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})(\s+|$)`)
	fenceRe    = regexp.MustCompile("^(```+|~~~+)")
	breakRe    = regexp.MustCompile(`^ {0,3}(-{3,}|\*{3,}|_{3,})\s*$`)
	listRe     = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s`)
	anchorSufRe = regexp.MustCompile(`\{#([A-Za-z0-9_-]+)\}\s*$`)
	htmlIDRe   = regexp.MustCompile(`<a\s+(?:name|id)="([^"]+)"`)
)

// Parse parses raw text into a block tree. The returned tree has IDs
// assigned for every block; parsing identical text yields identical IDs.
func Parse(raw string) (*model.BlockTree, error) {
	tree := &model.BlockTree{
		Root:         &model.Block{Type: model.BlockDocument},
		FinalNewline: strings.HasSuffix(raw, "\n"),
	}
	if raw == "" {
		tree.FinalNewline = false
		return tree, nil
	}

	lines := strings.Split(raw, "\n")
	if tree.FinalNewline {
		lines = lines[:len(lines)-1]
	}

	// Heading stack for structural nesting. Index 0 is the root.
	stack := []frame{{0, tree.Root}}

	blankRun := 0
	i := 0
	for i < len(lines) {
		line := lines[i]
		if line == "" {
			blankRun++
			i++
			continue
		}

		start := i
		var blockType model.BlockType
		level := 0

		switch {
		case headingRe.MatchString(line):
			blockType = model.BlockHeading
			level = len(headingRe.FindStringSubmatch(line)[1])
			i++
		case fenceRe.MatchString(line):
			blockType = model.BlockCode
			marker := fenceRe.FindStringSubmatch(line)[1]
			i++
			closed := false
			for i < len(lines) {
				if isClosingFence(lines[i], marker) {
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, model.NewError(model.CodeParseError,
					"unterminated code fence").
					WithDetail("line", start+1).
					WithDetail("marker", marker)
			}
		case breakRe.MatchString(line):
			blockType = model.BlockThematicBreak
			i++
		case strings.HasPrefix(strings.TrimLeft(line, " "), ">"):
			blockType = model.BlockQuote
			i = consumeWhile(lines, i, func(l string) bool {
				return l != "" && strings.HasPrefix(strings.TrimLeft(l, " "), ">")
			})
		case strings.HasPrefix(strings.TrimLeft(line, " "), "|"):
			blockType = model.BlockTable
			i = consumeWhile(lines, i, func(l string) bool {
				return l != "" && strings.HasPrefix(strings.TrimLeft(l, " "), "|")
			})
		case listRe.MatchString(line):
			blockType = model.BlockList
			i = consumeWhile(lines, i, func(l string) bool { return l != "" })
		case strings.HasPrefix(line, "<"):
			blockType = model.BlockHTML
			i = consumeWhile(lines, i, func(l string) bool { return l != "" })
		default:
			blockType = model.BlockParagraph
			i = consumeWhile(lines, i, func(l string) bool {
				return l != "" && !headingRe.MatchString(l) && !fenceRe.MatchString(l)
			})
		}

		block := &model.Block{
			Type:        blockType,
			Level:       level,
			Content:     strings.Join(lines[start:i], "\n"),
			BlankBefore: blankRun,
		}
		blankRun = 0

		if blockType == model.BlockHeading {
			// Pop frames at or below this heading level.
			for stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			block.HeadingPath = headingPath(stack)
			if m := anchorSufRe.FindStringSubmatch(block.Content); m != nil {
				block.Anchor = m[1]
			}
			parent := stack[len(stack)-1].block
			parent.Children = append(parent.Children, block)
			stack = append(stack, frame{level, block})
		} else {
			if blockType == model.BlockHTML {
				if m := htmlIDRe.FindStringSubmatch(block.Content); m != nil {
					block.Anchor = m[1]
				}
			}
			block.HeadingPath = headingPath(stack)
			parent := stack[len(stack)-1].block
			parent.Children = append(parent.Children, block)
		}
	}

	tree.TrailingBlank = blankRun
	tree.AssignIDs()
	return tree, nil
}

// Serialize reconstructs the exact source text of a tree.
func Serialize(t *model.BlockTree) string {
	var lines []string
	t.Walk(func(b *model.Block) bool {
		for n := 0; n < b.BlankBefore; n++ {
			lines = append(lines, "")
		}
		lines = append(lines, strings.Split(b.Content, "\n")...)
		return true
	})
	for n := 0; n < t.TrailingBlank; n++ {
		lines = append(lines, "")
	}
	out := strings.Join(lines, "\n")
	if t.FinalNewline {
		out += "\n"
	}
	return out
}

// Slug derives a GitHub-style anchor from heading text: lowercased,
// spaces to hyphens, everything else but word characters dropped.
func Slug(heading string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(heading) {
		switch {
		case r == ' ' || r == '\t':
			b.WriteByte('-')
		case r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// consumeWhile advances from i while pred holds, returning the first
// index where it does not.
func consumeWhile(lines []string, i int, pred func(string) bool) int {
	for i < len(lines) && pred(lines[i]) {
		i++
	}
	return i
}

// isClosingFence reports whether line closes a fence opened by marker.
func isClosingFence(line, marker string) bool {
	trimmed := strings.TrimRight(strings.TrimLeft(line, " "), " ")
	if !strings.HasPrefix(trimmed, marker) {
		return false
	}
	rest := strings.TrimLeft(trimmed, string(marker[0]))
	return rest == ""
}

// frame is one open heading scope during tree construction.
type frame struct {
	level int
	block *model.Block
}

// headingPath collects heading texts of the open frames, root excluded.
func headingPath(stack []frame) []string {
	var path []string
	for _, f := range stack[1:] {
		path = append(path, f.block.HeadingText())
	}
	return path
}
