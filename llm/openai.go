// OpenAI generator implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions API
// - Seeded sampling via the Seed request field

package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator implements ContentGenerator for OpenAI.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	cfg    GenerationConfig
}

// NewOpenAIGenerator creates a new OpenAI generator.
func NewOpenAIGenerator(apiKey, model string, cfg GenerationConfig) *OpenAIGenerator {
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
		cfg:    cfg,
	}
}

// Name returns the generator name.
func (g *OpenAIGenerator) Name() string {
	return "openai"
}

// Config returns the effective decoding configuration.
func (g *OpenAIGenerator) Config() GenerationConfig {
	return g.cfg
}

// Generate produces one completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	seed := int(g.cfg.Seed)
	chatReq := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    buildMessages(req),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		TopP:        g.cfg.TopP,
		Seed:        &seed,
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Result{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	// resp.Model is the fully-qualified version the API actually served.
	modelVersion := resp.Model
	if modelVersion == "" {
		modelVersion = g.model
	}

	return Result{Content: content, ModelVersion: modelVersion, Usage: usage}, nil
}

// buildMessages converts a Request into chat messages.
func buildMessages(req Request) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})
	return msgs
}

// Verify OpenAIGenerator implements ContentGenerator
var _ ContentGenerator = (*OpenAIGenerator)(nil)
