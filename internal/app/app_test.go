package app

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/MrWong99/kolloq/internal/config"
	"github.com/MrWong99/kolloq/internal/detect"
	embmock "github.com/MrWong99/kolloq/pkg/provider/embeddings/mock"
	llmmock "github.com/MrWong99/kolloq/pkg/provider/llm/mock"
	"github.com/MrWong99/kolloq/pkg/provider/tts"
	ttsmock "github.com/MrWong99/kolloq/pkg/provider/tts/mock"
)

// testConfig returns a minimal valid config bound to an ephemeral port.
func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.ListenAddr = "127.0.0.1:0"
	return cfg
}

func testProviders() *Providers {
	return &Providers{
		LLM:        &llmmock.Provider{},
		Embeddings: &embmock.Provider{},
	}
}

func TestNew_WiresSubsystems(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(), testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.store == nil || a.enricher == nil || a.registry == nil || a.httpSrv == nil {
		t.Fatal("core subsystems not wired")
	}
	if a.cascade == nil {
		t.Fatal("default engine should be the cascade")
	}
	if a.archive != nil {
		t.Fatal("archive should be nil without a DSN")
	}
}

func TestNew_ArbiterEngine(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Detection.Engine = config.EngineArbiter
	a, err := New(context.Background(), cfg, testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := a.detector.(*detect.Arbiter); !ok {
		t.Fatalf("detector = %T, want *detect.Arbiter", a.detector)
	}
	if a.cascade != nil {
		t.Fatal("cascade should not be built for the arbiter engine")
	}
}

func TestApplyConfigChange_LogLevel(t *testing.T) {
	t.Parallel()

	lv := &slog.LevelVar{}
	old := testConfig()
	a, err := New(context.Background(), old, testProviders(), WithLogLevel(lv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	a.ApplyConfigChange(old, updated)

	if lv.Level() != slog.LevelDebug {
		t.Fatalf("level = %v, want debug", lv.Level())
	}
}

func TestApplyConfigChange_CoverageThreshold(t *testing.T) {
	t.Parallel()

	old := testConfig()
	a, err := New(context.Background(), old, testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	updated := testConfig()
	updated.Interview.CoverageThresholdPercent = 55
	a.ApplyConfigChange(old, updated)

	if got, _ := a.coverageThreshold.Load().(float64); got != 55 {
		t.Fatalf("coverage threshold = %v, want 55", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(), testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestTTSChain_BeepWhenUnconfigured(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(), testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audio, err := a.ttsChain().Synthesize(context.Background(), "ciao", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.HasPrefix(audio, []byte("RIFF")) {
		t.Fatalf("expected WAV beep, got prefix %v", audio[:4])
	}
}

func TestTTSChain_FailoverToBeep(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	providers.TTS = &ttsmock.Provider{Err: context.DeadlineExceeded}

	a, err := New(context.Background(), testConfig(), providers)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audio, err := a.ttsChain().Synthesize(context.Background(), "ciao", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.HasPrefix(audio, []byte("RIFF")) {
		t.Fatal("expected the beep fallback to produce WAV audio")
	}
}
