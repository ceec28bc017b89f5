package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/kolloq/internal/config"
	"github.com/MrWong99/kolloq/pkg/provider/llm"
	llmmock "github.com/MrWong99/kolloq/pkg/provider/llm/mock"
	"github.com/MrWong99/kolloq/pkg/provider/tts"
	ttsmock "github.com/MrWong99/kolloq/pkg/provider/tts/mock"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":9090"
  log_level: debug
  dump_dir: /var/lib/kolloq/dumps
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  stt:
    name: openai
  tts:
    name: openai
  embeddings:
    name: openai
    model: text-embedding-3-small
detection:
  engine: cascade
  fuzzy_threshold: 85
  cosine_threshold: 0.7
  adaptive: true
interview:
  coverage_threshold_percent: 75
llm:
  model: gpt-4o-mini
  temperature: 0.3
  max_tokens: 500
  max_retries: 2
voice:
  voice_id: alloy
  speed_factor: 1.1
  format: mp3
archive:
  postgres_dsn: "postgres://localhost/kolloq"
  embedding_dimensions: 1536
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Detection.FuzzyThreshold != 85 {
		t.Errorf("fuzzy_threshold: got %d, want 85", cfg.Detection.FuzzyThreshold)
	}
	if !cfg.Detection.Adaptive {
		t.Error("adaptive should be true")
	}
	if cfg.Interview.CoverageThresholdPercent != 75 {
		t.Errorf("coverage_threshold_percent: got %v, want 75", cfg.Interview.CoverageThresholdPercent)
	}
	if cfg.Voice.VoiceID != "alloy" {
		t.Errorf("voice_id: got %q, want %q", cfg.Voice.VoiceID, "alloy")
	}
	if cfg.Archive.EmbeddingDimensions != 1536 {
		t.Errorf("embedding_dimensions: got %d, want 1536", cfg.Archive.EmbeddingDimensions)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  unknown_field: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_InvalidDetectionEngine(t *testing.T) {
	t.Parallel()
	yaml := `
detection:
  engine: oracle
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid detection engine, got nil")
	}
	if !strings.Contains(err.Error(), "detection.engine") {
		t.Errorf("error should mention detection.engine, got: %v", err)
	}
}

func TestValidate_ArbiterRequiresLLM(t *testing.T) {
	t.Parallel()
	yaml := `
detection:
  engine: arbiter
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for arbiter without LLM provider, got nil")
	}
	if !strings.Contains(err.Error(), "LLM provider") {
		t.Errorf("error should mention LLM provider, got: %v", err)
	}
}

func TestValidate_ThresholdRanges(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "fuzzy over 100",
			yaml: "detection:\n  fuzzy_threshold: 120\n",
			want: "fuzzy_threshold",
		},
		{
			name: "cosine over 1",
			yaml: "detection:\n  cosine_threshold: 1.5\n",
			want: "cosine_threshold",
		},
		{
			name: "coverage over 100",
			yaml: "interview:\n  coverage_threshold_percent: 150\n",
			want: "coverage_threshold_percent",
		},
		{
			name: "speed factor out of range",
			yaml: "voice:\n  speed_factor: 3.0\n",
			want: "speed_factor",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error should mention %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
detection:
  fuzzy_threshold: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "fuzzy_threshold") {
		t.Errorf("error should mention fuzzy_threshold, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	if len(llmNames) == 0 {
		t.Fatal("ValidProviderNames[\"llm\"] should not be empty")
	}
	found := false
	for _, n := range llmNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"openai\"")
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterLLM("mock", func(entry config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	reg.RegisterTTS("mock", func(entry config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateLLM: unexpected error: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateTTS: unexpected error: %v", err)
	}
}

func TestRegistry_CreateUnregistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM: got %v, want ErrProviderNotRegistered", err)
	}
	_, err = reg.CreateSTT(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: got %v, want ErrProviderNotRegistered", err)
	}
	_, err = reg.CreateEmbeddings(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateEmbeddings: got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_OverwriteRegistration(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	first := &llmmock.Provider{}
	second := &llmmock.Provider{}
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) { return first, nil })
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) { return second, nil })

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != second {
		t.Error("later registration should win")
	}
}
