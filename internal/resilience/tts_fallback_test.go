package resilience

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/kolloq/pkg/provider/tts"
	"github.com/MrWong99/kolloq/pkg/provider/tts/beep"
	ttsmock "github.com/MrWong99/kolloq/pkg/provider/tts/mock"
)

func TestTTSFallback_Synthesize_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Provider{Audio: []byte{0xAA, 0xBB}}
	secondary := &ttsmock.Provider{Audio: []byte{0xCC}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	audio, err := fb.Synthesize(context.Background(), "ciao", tts.VoiceProfile{VoiceID: "alloy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(audio, []byte{0xAA, 0xBB}) {
		t.Fatalf("audio = %v, want primary bytes", audio)
	}
	if len(secondary.SynthesizeCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.SynthesizeCalls))
	}
}

func TestTTSFallback_Synthesize_Failover(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("primary down")}
	secondary := &ttsmock.Provider{Audio: []byte{0xCC}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	audio, err := fb.Synthesize(context.Background(), "ciao", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(audio, []byte{0xCC}) {
		t.Fatalf("audio = %v, want secondary bytes", audio)
	}
}

func TestTTSFallback_BeepTerminalNeverFails(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("primary down")}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("beep", beep.New())

	audio, err := fb.Synthesize(context.Background(), "qualunque testo", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audio) == 0 {
		t.Fatal("beep fallback returned no audio")
	}
	// WAV container magic.
	if !bytes.HasPrefix(audio, []byte("RIFF")) {
		t.Fatalf("beep audio should be a WAV file, got prefix %v", audio[:4])
	}
}

func TestTTSFallback_ContentType(t *testing.T) {
	primary := &ttsmock.Provider{MIMEType: "audio/mpeg"}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	if got := fb.ContentType(tts.VoiceProfile{}); got != "audio/mpeg" {
		t.Fatalf("ContentType = %q, want audio/mpeg", got)
	}
}
