// Package respond normalizes raw model output before validation.
//
// Models often wrap the requested content in markdown code fences or
// surround it with commentary markers. This package strips that framing
// so downstream checks see only the candidate content.
package respond

import (
	"strings"
)

// Clean strips a wrapping code fence from a model response and trims
// surrounding blank lines. Handles patterns like ```markdown\n...\n```
// or ```\n...\n```. Fences inside the content are left alone.
func Clean(response string) string {
	trimmed := strings.TrimSpace(response)

	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	// Only unwrap when the whole response is a single fenced block.
	body := trimmed
	if idx := strings.Index(body, "\n"); idx != -1 {
		body = body[idx+1:]
	} else {
		return trimmed
	}
	if !strings.HasSuffix(body, "```") {
		return trimmed
	}
	body = strings.TrimSuffix(body, "```")
	// A fence opener inside the body means the trailing ``` closes an
	// inner block, not the wrapper.
	if strings.Contains(body, "```") {
		return trimmed
	}
	return strings.TrimSpace(body)
}
