// Prompt construction for the content generator. The prompt is built
// only from the assembled context window and the intent itself; nothing
// outside the window reaches the generator.

package engine

import (
	"fmt"
	"strings"

	"github.com/richinex/redline/assemble"
	"github.com/richinex/redline/llm"
	"github.com/richinex/redline/model"
)

const systemPrompt = `You are a precise technical documentation editor. ` +
	`You receive a fragment of a markdown document and one edit instruction. ` +
	`Return only the markdown for the requested block: no preamble, no code fences, no commentary.`

func buildRequest(it *model.EditIntent, win *assemble.Context) llm.Request {
	var b strings.Builder

	b.WriteString("Document context:\n\n")
	b.WriteString(win.Text())
	b.WriteString("\n\nTarget block:\n\n")
	b.WriteString(win.Target.Content)
	b.WriteString("\n\nInstruction: ")
	b.WriteString(instructionFor(it))
	if it.Reason != "" {
		fmt.Fprintf(&b, "\n\nRationale: %s", it.Reason)
	}
	if lines := constraintLines(it.Constraints); len(lines) > 0 {
		b.WriteString("\n\nConstraints:\n")
		for _, line := range lines {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return llm.Request{System: systemPrompt, Prompt: b.String()}
}

func instructionFor(it *model.EditIntent) string {
	switch it.Type {
	case model.IntentInsert:
		switch it.Action.Mode {
		case model.ModeBefore:
			return "Write a new block to be inserted immediately before the target block."
		case model.ModeAfter:
			return "Write a new block to be inserted immediately after the target block."
		default:
			return "Write a new block to be appended inside the target section."
		}
	case model.IntentUpdate:
		switch it.Action.Mode {
		case model.ModeAppend:
			return "Write additional content to be appended to the target block."
		case model.ModePrepend:
			return "Write additional content to be prepended to the target block."
		default:
			return "Rewrite the target block, preserving its meaning and role in the document."
		}
	case model.IntentRefactor:
		return "Rewrite the target block for clarity and structure without changing what it says."
	case model.IntentSummarize:
		return "Condense the target block into a shorter version that keeps every essential fact."
	default:
		return "Edit the target block as requested."
	}
}

func constraintLines(c model.Constraints) []string {
	var lines []string
	if c.MaxChars > 0 {
		lines = append(lines, fmt.Sprintf("at most %d characters", c.MaxChars))
	}
	if c.MaxTokens > 0 {
		lines = append(lines, fmt.Sprintf("at most %d tokens", c.MaxTokens))
	}
	if c.StyleGuide != "" {
		lines = append(lines, fmt.Sprintf("follow the %q style guide", c.StyleGuide))
	}
	if c.NoExternalReference {
		lines = append(lines, "do not introduce links or URLs that are not already in the context")
	}
	if c.PreserveExisting {
		lines = append(lines, "do not remove existing content")
	}
	return lines
}
