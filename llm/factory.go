// Content Generator Factory - builder-first API for creating generators.
//
// Quick Start:
//
//	// Simplest: use defaults, read API key from environment
//	gen, err := llm.GeneratorOpenAI.FromEnv()
//
//	// With custom model
//	gen, err := llm.GeneratorAnthropic.Model(llm.ModelAnthropicClaudeOpus45).FromEnv()
//
//	// Full configuration
//	gen, err := llm.GeneratorGemini.
//	    Model(llm.ModelGeminiFlash3).
//	    MaxTokens(8192).
//	    FromEnv()
//
//	// With explicit API key
//	gen, err := llm.GeneratorOpenAI.APIKey("sk-...")
//
// All generators run with the deterministic decoding configuration.

package llm

import (
	"fmt"
	"os"
	"strings"
)

// GeneratorType represents supported generator backends.
type GeneratorType int

const (
	// GeneratorOpenAI is the OpenAI backend (GPT models).
	GeneratorOpenAI GeneratorType = iota
	// GeneratorAnthropic is the Anthropic backend (Claude models).
	GeneratorAnthropic
	// GeneratorGemini is the Google Gemini backend.
	GeneratorGemini
	// GeneratorStub is the canned in-process backend for tests and
	// offline runs.
	GeneratorStub
)

// String returns the string representation of the generator type.
func (t GeneratorType) String() string {
	switch t {
	case GeneratorOpenAI:
		return "openai"
	case GeneratorAnthropic:
		return "anthropic"
	case GeneratorGemini:
		return "gemini"
	case GeneratorStub:
		return "stub"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable name for this backend's API key.
func (t GeneratorType) EnvVar() string {
	switch t {
	case GeneratorOpenAI:
		return "OPENAI_API_KEY"
	case GeneratorAnthropic:
		return "ANTHROPIC_API_KEY"
	case GeneratorGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// DefaultModel returns the default model for this backend.
func (t GeneratorType) DefaultModel() string {
	switch t {
	case GeneratorOpenAI:
		return ModelOpenAIGPT52
	case GeneratorAnthropic:
		return ModelAnthropicClaudeOpus45
	case GeneratorGemini:
		return ModelGeminiFlash3
	case GeneratorStub:
		return "stub-1"
	default:
		return ""
	}
}

// ParseGeneratorType parses a backend from string (case-insensitive).
func ParseGeneratorType(s string) (GeneratorType, error) {
	switch strings.ToLower(s) {
	case "openai", "gpt":
		return GeneratorOpenAI, nil
	case "anthropic", "claude":
		return GeneratorAnthropic, nil
	case "gemini", "google":
		return GeneratorGemini, nil
	case "stub":
		return GeneratorStub, nil
	default:
		return 0, fmt.Errorf("unknown generator: %s", s)
	}
}

// FromEnv creates a generator with defaults, reading API key from environment.
func (t GeneratorType) FromEnv() (ContentGenerator, error) {
	return NewGeneratorBuilder(t).FromEnv()
}

// Model starts configuring this backend with a specific model.
func (t GeneratorType) Model(model string) *GeneratorBuilder {
	return NewGeneratorBuilder(t).Model(model)
}

// APIKey creates a generator with an explicit API key.
func (t GeneratorType) APIKey(key string) (ContentGenerator, error) {
	return NewGeneratorBuilder(t).APIKey(key)
}

// GeneratorBuilder is a builder for configuring generators.
type GeneratorBuilder struct {
	generatorType GeneratorType
	model         string
	maxTokens     int
}

// NewGeneratorBuilder creates a new builder for the given backend.
func NewGeneratorBuilder(generatorType GeneratorType) *GeneratorBuilder {
	return &GeneratorBuilder{
		generatorType: generatorType,
	}
}

// Model sets the model to use.
func (b *GeneratorBuilder) Model(model string) *GeneratorBuilder {
	b.model = model
	return b
}

// MaxTokens sets maximum tokens for completions.
func (b *GeneratorBuilder) MaxTokens(tokens int) *GeneratorBuilder {
	b.maxTokens = tokens
	return b
}

// FromEnv builds the generator, reading API key from environment.
func (b *GeneratorBuilder) FromEnv() (ContentGenerator, error) {
	if b.generatorType == GeneratorStub {
		return b.build("")
	}
	envVar := b.generatorType.EnvVar()
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %s environment variable not set", b.generatorType, envVar)
	}
	return b.build(apiKey)
}

// APIKey builds the generator with an explicit API key.
func (b *GeneratorBuilder) APIKey(key string) (ContentGenerator, error) {
	return b.build(key)
}

func (b *GeneratorBuilder) build(apiKey string) (ContentGenerator, error) {
	model := b.model
	if model == "" {
		model = b.generatorType.DefaultModel()
	}

	cfg := DeterministicConfig(b.maxTokens)

	switch b.generatorType {
	case GeneratorOpenAI:
		return NewOpenAIGenerator(apiKey, model, cfg), nil
	case GeneratorAnthropic:
		return NewAnthropicGenerator(apiKey, model, cfg), nil
	case GeneratorGemini:
		return NewGeminiGenerator(apiKey, model, cfg), nil
	case GeneratorStub:
		return NewStubGenerator(model), nil
	default:
		return nil, fmt.Errorf("unknown generator type: %v", b.generatorType)
	}
}

// Model identifier constants for all supported backends.

// OpenAI model identifiers (January 2026)
const (
	// ModelOpenAIGPT52 is GPT-5.2: Latest flagship model (December 2025).
	ModelOpenAIGPT52 = "gpt-5.2"
	// ModelOpenAIGPT5 is GPT-5: Previous flagship (August 2025).
	ModelOpenAIGPT5 = "gpt-5"
	// ModelOpenAIGPT4o is GPT-4o: Legacy model.
	ModelOpenAIGPT4o = "gpt-4o"
	// ModelOpenAIGPT4oMini is GPT-4o-mini: Legacy model.
	ModelOpenAIGPT4oMini = "gpt-4o-mini"
)

// Anthropic model identifiers (January 2026)
const (
	// ModelAnthropicClaudeOpus45 is Claude Opus 4.5: Latest flagship.
	ModelAnthropicClaudeOpus45 = "claude-opus-4-5-20251101"
	// ModelAnthropicClaudeSonnet4 is Claude Sonnet 4: Balanced performance.
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	// ModelAnthropicClaudeHaiku4 is Claude Haiku 4: Fast and efficient.
	ModelAnthropicClaudeHaiku4 = "claude-haiku-4-20250514"
)

// Gemini model identifiers (January 2026)
const (
	// ModelGeminiPro3 is Gemini 3 Pro: Advanced reasoning, 1M context window.
	ModelGeminiPro3 = "gemini-3-pro"
	// ModelGeminiFlash3 is Gemini 3 Flash: Speed optimized.
	ModelGeminiFlash3 = "gemini-3-flash"
	// ModelGeminiFlash2 is Gemini 2.0 Flash: Legacy model.
	ModelGeminiFlash2 = "gemini-2.0-flash"
)
