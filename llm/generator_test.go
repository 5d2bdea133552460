package llm

import (
	"context"
	"errors"
	"testing"
)

func TestDeterministicConfig(t *testing.T) {
	cfg := DeterministicConfig(0)
	if cfg.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", cfg.Temperature)
	}
	if cfg.TopP != 1.0 {
		t.Errorf("TopP = %v, want 1.0", cfg.TopP)
	}
	if cfg.Seed != 42 {
		t.Errorf("Seed = %v, want 42", cfg.Seed)
	}
	if cfg.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %v, want default 4096", cfg.MaxTokens)
	}

	if got := DeterministicConfig(512).MaxTokens; got != 512 {
		t.Errorf("MaxTokens = %v, want 512", got)
	}
}

func TestParseGeneratorType(t *testing.T) {
	cases := map[string]GeneratorType{
		"openai":    GeneratorOpenAI,
		"GPT":       GeneratorOpenAI,
		"anthropic": GeneratorAnthropic,
		"claude":    GeneratorAnthropic,
		"gemini":    GeneratorGemini,
		"google":    GeneratorGemini,
		"stub":      GeneratorStub,
	}
	for in, want := range cases {
		got, err := ParseGeneratorType(in)
		if err != nil {
			t.Errorf("ParseGeneratorType(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseGeneratorType(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseGeneratorType("llama"); err == nil {
		t.Error("expected error for unknown generator")
	}
}

func TestStubDeterministic(t *testing.T) {
	g := NewStubGenerator("")
	req := Request{Prompt: "rewrite the section"}

	r1, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	r2, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if r1.Content != r2.Content {
		t.Errorf("stub not deterministic: %q vs %q", r1.Content, r2.Content)
	}
	if r1.ModelVersion != "stub-1" {
		t.Errorf("ModelVersion = %q", r1.ModelVersion)
	}
}

func TestStubCannedResponse(t *testing.T) {
	g := NewStubGenerator("stub-test")
	g.Respond("p1", "canned output")

	r, err := g.Generate(context.Background(), Request{Prompt: "p1"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if r.Content != "canned output" {
		t.Errorf("Content = %q", r.Content)
	}
	if len(g.Calls()) != 1 {
		t.Errorf("Calls() = %d, want 1", len(g.Calls()))
	}
}

func TestStubFail(t *testing.T) {
	boom := errors.New("upstream down")
	g := NewStubGenerator("").Fail(boom)

	_, err := g.Generate(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestStubHonorsCancellation(t *testing.T) {
	g := NewStubGenerator("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, Request{Prompt: "p"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFactoryRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := GeneratorOpenAI.FromEnv(); err == nil {
		t.Error("expected error when API key env var is unset")
	}
}

func TestFactoryStubFromEnv(t *testing.T) {
	g, err := GeneratorStub.FromEnv()
	if err != nil {
		t.Fatalf("stub FromEnv failed: %v", err)
	}
	if g.Name() != "stub" {
		t.Errorf("Name() = %q", g.Name())
	}
	cfg := g.Config()
	if cfg.Temperature != 0 || cfg.TopP != 1.0 {
		t.Errorf("stub not using deterministic config: %+v", cfg)
	}
}
