// Anthropic generator implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - Determinism via temperature 0 (the Messages API has no seed field)

package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicGenerator implements ContentGenerator for Anthropic Claude.
type AnthropicGenerator struct {
	client anthropic.Client
	model  string
	cfg    GenerationConfig
}

// NewAnthropicGenerator creates a new Anthropic generator.
func NewAnthropicGenerator(apiKey, model string, cfg GenerationConfig) *AnthropicGenerator {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	// No seeded sampling on this API.
	cfg.Seed = -1

	return &AnthropicGenerator{
		client: client,
		model:  model,
		cfg:    cfg,
	}
}

// Name returns the generator name.
func (g *AnthropicGenerator) Name() string {
	return "anthropic"
}

// Config returns the effective decoding configuration.
func (g *AnthropicGenerator) Config() GenerationConfig {
	return g.cfg
}

// Generate produces one completion.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(float64(g.cfg.Temperature)),
		TopP:        anthropic.Float(float64(g.cfg.TopP)),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	message, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("message creation failed: %w", err)
	}

	content := ""
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		}
	}

	var usage *TokenUsage
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		usage = &TokenUsage{
			PromptTokens:     uint32(message.Usage.InputTokens),
			CompletionTokens: uint32(message.Usage.OutputTokens),
			TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}

	modelVersion := string(message.Model)
	if modelVersion == "" {
		modelVersion = g.model
	}

	return Result{Content: content, ModelVersion: modelVersion, Usage: usage}, nil
}

// Verify AnthropicGenerator implements ContentGenerator
var _ ContentGenerator = (*AnthropicGenerator)(nil)
