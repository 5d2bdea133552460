// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Generator-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	Generator GeneratorConfig
	Engine    EngineConfig
	Audit     AuditConfig
}

// GeneratorConfig holds content generator configuration.
type GeneratorConfig struct {
	Backend   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// EngineConfig holds edit pipeline configuration.
type EngineConfig struct {
	// FuzzyHighConfidence and FuzzyCandidateFloor are the target
	// matcher's similarity thresholds.
	FuzzyHighConfidence float64
	FuzzyCandidateFloor float64
	// ContextMaxBlocks bounds the assembled context window.
	ContextMaxBlocks int
	// StyleRulesPath optionally points at a YAML style rule set.
	StyleRulesPath string
}

// AuditConfig holds audit trail configuration.
type AuditConfig struct {
	// DBPath is the SQLite file; empty keeps the trail in memory.
	DBPath        string
	BatchSize     int
	FlushInterval time.Duration
}

// backendInfo holds configuration for a specific generator backend.
type backendInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported backends and their configuration.
var backends = map[string]backendInfo{
	"openai":    {"OPENAI_MODEL", "gpt-5.2", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-opus-4-5-20251101", "ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-3-flash", "GEMINI_API_KEY"},
	"stub":      {"", "stub-1", ""},
}

// Backend aliases map to canonical names.
var backendAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// New creates settings for the specified backend, loading values from
// environment variables. Returns an error if the backend is unknown or
// environment variables contain invalid values.
func New(backend string) (Settings, error) {
	backend = normalizeBackend(backend)

	info, err := getBackendInfo(backend)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvInt("REDLINE_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}

	timeout, err := getEnvDuration("REDLINE_GENERATION_TIMEOUT", 60*time.Second)
	if err != nil {
		return Settings{}, err
	}

	fuzzyHigh, err := getEnvFloat64("REDLINE_FUZZY_HIGH", 0.90)
	if err != nil {
		return Settings{}, err
	}

	fuzzyFloor, err := getEnvFloat64("REDLINE_FUZZY_FLOOR", 0.60)
	if err != nil {
		return Settings{}, err
	}

	contextMax, err := getEnvInt("REDLINE_CONTEXT_MAX_BLOCKS", 64)
	if err != nil {
		return Settings{}, err
	}

	auditBatch, err := getEnvInt("REDLINE_AUDIT_BATCH_SIZE", 32)
	if err != nil {
		return Settings{}, err
	}

	auditFlush, err := getEnvDuration("REDLINE_AUDIT_FLUSH_INTERVAL", 200*time.Millisecond)
	if err != nil {
		return Settings{}, err
	}

	// Get model from environment or use default
	model := info.defaultModel
	if info.modelEnv != "" {
		if val := os.Getenv(info.modelEnv); val != "" {
			model = val
		}
	}

	return Settings{
		Generator: GeneratorConfig{
			Backend:   backend,
			Model:     model,
			MaxTokens: maxTokens,
			Timeout:   timeout,
		},
		Engine: EngineConfig{
			FuzzyHighConfidence: fuzzyHigh,
			FuzzyCandidateFloor: fuzzyFloor,
			ContextMaxBlocks:    contextMax,
			StyleRulesPath:      os.Getenv("REDLINE_STYLE_RULES"),
		},
		Audit: AuditConfig{
			DBPath:        os.Getenv("REDLINE_AUDIT_DB"),
			BatchSize:     auditBatch,
			FlushInterval: auditFlush,
		},
	}, nil
}

// MustNew creates settings for the specified backend.
// Panics if the backend is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(backend string) Settings {
	settings, err := New(backend)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// normalizeBackend converts backend aliases to canonical names.
func normalizeBackend(backend string) string {
	backend = strings.ToLower(backend)
	if canonical, ok := backendAliases[backend]; ok {
		return canonical
	}
	return backend
}

// getBackendInfo returns configuration for a backend.
func getBackendInfo(backend string) (backendInfo, error) {
	info, ok := backends[backend]
	if !ok {
		return backendInfo{}, fmt.Errorf("unknown backend: %q", backend)
	}
	return info, nil
}

// APIKeyFor returns the API key for a backend from environment variables.
func APIKeyFor(backend string) (string, error) {
	backend = normalizeBackend(backend)

	info, err := getBackendInfo(backend)
	if err != nil {
		return "", err
	}
	if info.apiKeyEnv == "" {
		return "", nil
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a backend, checking environment first.
func ModelFor(backend string) (string, error) {
	backend = normalizeBackend(backend)

	info, err := getBackendInfo(backend)
	if err != nil {
		return "", err
	}

	if info.modelEnv != "" {
		if val := os.Getenv(info.modelEnv); val != "" {
			return val, nil
		}
	}
	return info.defaultModel, nil
}

// SupportedBackends returns the list of supported backend names.
func SupportedBackends() []string {
	result := make([]string, 0, len(backends))
	for name := range backends {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
