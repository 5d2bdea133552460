// Package llm provides content generator abstractions.
//
// Content Generator interface - the abstract interface for model-backed
// text generation. Each implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific determinism knobs (seed, top_p)
//
// Generators are configured for reproducibility: temperature 0, top_p
// 1.0, and a fixed seed where the API supports one. The effective
// settings are reported through Config so they can be recorded next to
// every generated patch.

package llm

import (
	"context"
)

// GenerationConfig is the decoding configuration a generator runs with.
type GenerationConfig struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
	// Seed is used where the provider supports seeded sampling; -1
	// means unsupported.
	Seed      int64 `json:"seed"`
	MaxTokens int   `json:"max_tokens"`
}

// DeterministicConfig returns the reproducible decoding settings.
func DeterministicConfig(maxTokens int) GenerationConfig {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return GenerationConfig{
		Temperature: 0,
		TopP:        1.0,
		Seed:        42,
		MaxTokens:   maxTokens,
	}
}

// Request carries everything a generator needs for one completion.
type Request struct {
	// System is the fixed instruction frame.
	System string
	// Prompt is the assembled context plus the edit instruction.
	Prompt string
}

// TokenUsage tracks token consumption for a completion.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// Result is a generator's answer: the raw candidate text plus the
// exact model version that produced it.
type Result struct {
	Content      string
	ModelVersion string
	Usage        *TokenUsage
}

// ContentGenerator defines the abstract interface for text generation.
// Implementations hide provider-specific details while exposing a
// consistent, deterministic completion call.
type ContentGenerator interface {
	// Name returns the generator name (for logging and audit records).
	Name() string

	// Config returns the effective decoding configuration.
	Config() GenerationConfig

	// Generate produces one completion for the request.
	Generate(ctx context.Context, req Request) (Result, error)
}
