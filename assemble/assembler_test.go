package assemble

import (
	"testing"

	"github.com/richinex/redline/model"
	"github.com/richinex/redline/parser"
)

const sampleDoc = `# Guide

Intro paragraph.

## Usage

First usage paragraph.

Second usage paragraph.

## Changelog

Changelog entry.
`

func mustParse(t *testing.T, src string) *model.BlockTree {
	t.Helper()
	tree, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return tree
}

func findHeading(t *testing.T, tree *model.BlockTree, text string) *model.Block {
	t.Helper()
	var found *model.Block
	tree.Walk(func(b *model.Block) bool {
		if b.Type == model.BlockHeading && b.HeadingText() == text {
			found = b
			return false
		}
		return true
	})
	if found == nil {
		t.Fatalf("heading %q not found", text)
	}
	return found
}

func TestWindowDeterministic(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	target := findHeading(t, tree, "Usage")

	c1, err := Build(tree, target, DefaultPolicy())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	c2, err := Build(tree, target, DefaultPolicy())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if c1.Digest != c2.Digest {
		t.Errorf("digest not deterministic: %s vs %s", c1.Digest, c2.Digest)
	}
	if len(c1.Blocks) != len(c2.Blocks) {
		t.Errorf("window size differs: %d vs %d", len(c1.Blocks), len(c2.Blocks))
	}
}

func TestWindowDocumentOrder(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	target := findHeading(t, tree, "Usage")

	c, err := Build(tree, target, DefaultPolicy())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Blocks must appear in the same order as a full-tree walk.
	pos := map[string]int{}
	i := 0
	tree.Walk(func(b *model.Block) bool {
		pos[b.ID] = i
		i++
		return true
	})
	for j := 1; j < len(c.Blocks); j++ {
		if pos[c.Blocks[j-1].ID] >= pos[c.Blocks[j].ID] {
			t.Fatalf("window out of document order at %d", j)
		}
	}
}

func TestAncestorsIncluded(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	target := findHeading(t, tree, "Usage")
	guide := findHeading(t, tree, "Guide")

	c, err := Build(tree, target, Policy{AncestorHeadings: true})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !c.Contains(guide.ID) {
		t.Error("ancestor heading missing from window")
	}
	if !c.Contains(target.ID) {
		t.Error("target missing from window")
	}
}

func TestAncestorsFollowParentChain(t *testing.T) {
	// Two branches with identical heading texts at the same depths. The
	// window must carry the target's own ancestors, not the same-texted
	// headings from the earlier branch.
	src := `# Guide

## Setup

Early paragraph.

# Guide

## Setup

Target paragraph.
`
	tree := mustParse(t, src)
	var target *model.Block
	tree.Walk(func(b *model.Block) bool {
		if b.Content == "Target paragraph." {
			target = b
			return false
		}
		return true
	})
	if target == nil {
		t.Fatal("target paragraph not found")
	}

	c, err := Build(tree, target, Policy{AncestorHeadings: true})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	setup := parentOf(tree, target)
	guide := parentOf(tree, setup)
	for _, anc := range []*model.Block{setup, guide} {
		if !c.Contains(anc.ID) {
			t.Errorf("true ancestor %q (%s) missing from window", anc.Content, anc.ID)
		}
	}
	early := tree.Root.Children[0]
	if c.Contains(early.ID) || c.Contains(early.Children[0].ID) {
		t.Error("same-texted heading from the earlier branch leaked into window")
	}
}

func TestSiblingsIncluded(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	usage := findHeading(t, tree, "Usage")
	if len(usage.Children) == 0 {
		t.Fatal("expected paragraphs under Usage")
	}
	target := usage.Children[0]

	c, err := Build(tree, target, Policy{Siblings: true})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for _, sib := range usage.Children {
		if !c.Contains(sib.ID) {
			t.Errorf("sibling %s missing from window", sib.ID)
		}
	}
	changelog := findHeading(t, tree, "Changelog")
	if c.Contains(changelog.ID) {
		t.Error("non-sibling section leaked into window")
	}
}

func TestExceedsLimit(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	target := findHeading(t, tree, "Usage")

	_, err := Build(tree, target, Policy{AncestorHeadings: true, Siblings: true, MaxBlocks: 1})
	if model.CodeOf(err) != model.CodeContextExceedsLimit {
		t.Fatalf("error code = %s, want %s", model.CodeOf(err), model.CodeContextExceedsLimit)
	}
}

func TestDigestChangesWithContent(t *testing.T) {
	t1 := mustParse(t, sampleDoc)
	t2 := mustParse(t, sampleDoc+"\nExtra tail paragraph.\n")

	// Target the paragraph under Changelog: the appended paragraph is
	// its sibling, so the window content changes.
	c1, err := Build(t1, findHeading(t, t1, "Changelog").Children[0], DefaultPolicy())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	c2, err := Build(t2, findHeading(t, t2, "Changelog").Children[0], DefaultPolicy())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if c1.Digest == c2.Digest {
		t.Error("digest must change when window content changes")
	}
}

func TestContextText(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	target := findHeading(t, tree, "Usage")

	c, err := Build(tree, target, Policy{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if c.Text() != target.Content {
		t.Errorf("Text() = %q, want target content only", c.Text())
	}
}
