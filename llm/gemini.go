// Google Gemini generator implementation using official
// google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for Gemini API
// - System instruction handling via config
// - Seeded sampling via GenerateContentConfig.Seed

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiGenerator implements ContentGenerator for Google Gemini.
type GeminiGenerator struct {
	client  *genai.Client
	model   string
	cfg     GenerationConfig
	initErr error // Stores client initialization error for deferred reporting
}

// NewGeminiGenerator creates a new Gemini generator.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiGenerator(apiKey, model string, cfg GenerationConfig) *GeminiGenerator {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return &GeminiGenerator{
			client:  nil,
			model:   model,
			cfg:     cfg,
			initErr: fmt.Errorf("failed to initialize Gemini client: %w", err),
		}
	}

	return &GeminiGenerator{
		client: client,
		model:  model,
		cfg:    cfg,
	}
}

// Name returns the generator name.
func (g *GeminiGenerator) Name() string {
	return "gemini"
}

// Config returns the effective decoding configuration.
func (g *GeminiGenerator) Config() GenerationConfig {
	return g.cfg
}

// Generate produces one completion.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	if g.initErr != nil {
		return Result{}, g.initErr
	}
	if g.client == nil {
		return Result{}, fmt.Errorf("gemini client not initialized")
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.cfg.Temperature),
		TopP:            genai.Ptr(g.cfg.TopP),
		Seed:            genai.Ptr(int32(g.cfg.Seed)),
		MaxOutputTokens: int32(g.cfg.MaxTokens),
	}

	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return Result{}, fmt.Errorf("content generation failed: %w", err)
	}

	content := response.Text()
	if content == "" {
		return Result{}, fmt.Errorf("empty response from Gemini")
	}

	var usage *TokenUsage
	if response.UsageMetadata != nil {
		usage = &TokenUsage{
			PromptTokens:     uint32(response.UsageMetadata.PromptTokenCount),
			CompletionTokens: uint32(response.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      uint32(response.UsageMetadata.TotalTokenCount),
		}
	}

	modelVersion := response.ModelVersion
	if modelVersion == "" {
		modelVersion = g.model
	}

	return Result{Content: content, ModelVersion: modelVersion, Usage: usage}, nil
}

// Verify GeminiGenerator implements ContentGenerator
var _ ContentGenerator = (*GeminiGenerator)(nil)
