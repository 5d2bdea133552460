// Stub generator - canned, fully deterministic, in-process.
//
// Used by tests and offline runs: the same request always yields the
// same result, with no network access.

package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// StubGenerator implements ContentGenerator with canned responses.
// Responses can be registered per prompt; unregistered prompts get a
// deterministic placeholder derived from the prompt hash.
type StubGenerator struct {
	model string
	cfg   GenerationConfig

	mu        sync.Mutex
	responses map[string]string
	calls     []Request
	fail      error
}

// NewStubGenerator creates a stub reporting the given model version.
func NewStubGenerator(model string) *StubGenerator {
	if model == "" {
		model = "stub-1"
	}
	return &StubGenerator{
		model:     model,
		cfg:       DeterministicConfig(0),
		responses: map[string]string{},
	}
}

// Name returns the generator name.
func (g *StubGenerator) Name() string {
	return "stub"
}

// Config returns the effective decoding configuration.
func (g *StubGenerator) Config() GenerationConfig {
	return g.cfg
}

// Respond registers a canned response for an exact prompt.
func (g *StubGenerator) Respond(prompt, content string) *StubGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses[prompt] = content
	return g
}

// Fail makes every subsequent Generate call return err.
func (g *StubGenerator) Fail(err error) *StubGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = err
	return g
}

// Calls returns the requests seen so far.
func (g *StubGenerator) Calls() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Request, len(g.calls))
	copy(out, g.calls)
	return out
}

// Generate returns the canned response for the prompt, or a
// deterministic placeholder.
func (g *StubGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	g.mu.Lock()
	g.calls = append(g.calls, req)
	fail := g.fail
	content, ok := g.responses[req.Prompt]
	g.mu.Unlock()

	if fail != nil {
		return Result{}, fail
	}
	if !ok {
		sum := sha256.Sum256([]byte(req.Prompt))
		content = fmt.Sprintf("Generated content %s.", hex.EncodeToString(sum[:4]))
	}

	return Result{
		Content:      content,
		ModelVersion: g.model,
		Usage: &TokenUsage{
			PromptTokens:     uint32(len(req.Prompt) / 4),
			CompletionTokens: uint32(len(content) / 4),
			TotalTokens:      uint32((len(req.Prompt) + len(content)) / 4),
		},
	}, nil
}

// Verify StubGenerator implements ContentGenerator
var _ ContentGenerator = (*StubGenerator)(nil)
