package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/kolloq/pkg/provider/stt"
	sttmock "github.com/MrWong99/kolloq/pkg/provider/stt/mock"
)

// transcribeVia runs one transcription through the chain, the way the
// provider wrappers drive it.
func transcribeVia(c *Chain[stt.Provider], audio string) (string, error) {
	return DoFirst(c, func(p stt.Provider) (string, error) {
		return p.Transcribe(context.Background(), []byte(audio), "wav", stt.TranscribeConfig{Language: "it"})
	})
}

func TestChain_UsesPrimaryFirst(t *testing.T) {
	primary := &sttmock.Provider{Text: "risposta dal primario"}
	backup := &sttmock.Provider{Text: "risposta di riserva"}

	c := NewChain[stt.Provider](primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	c.Add("whisper-local", backup)

	text, err := transcribeVia(c, "audio")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "risposta dal primario" {
		t.Fatalf("text = %q, want the primary's transcript", text)
	}
	if len(backup.TranscribeCalls) != 0 {
		t.Fatalf("backup called %d times while the primary is healthy", len(backup.TranscribeCalls))
	}
}

func TestChain_FailsOverToNextBackend(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("quota exceeded")}
	backup := &sttmock.Provider{Text: "risposta di riserva"}

	c := NewChain[stt.Provider](primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	c.Add("whisper-local", backup)

	text, err := transcribeVia(c, "audio")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "risposta di riserva" {
		t.Fatalf("text = %q, want the backup's transcript", text)
	}
	if len(primary.TranscribeCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.TranscribeCalls))
	}
}

func TestChain_Exhausted(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("quota exceeded")}
	backup := &sttmock.Provider{Err: errors.New("model not loaded")}

	c := NewChain[stt.Provider](primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	c.Add("whisper-local", backup)

	_, err := transcribeVia(c, "audio")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}

func TestChain_SkipsOpenBreaker(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("quota exceeded")}
	backup := &sttmock.Provider{Text: "risposta di riserva"}

	c := NewChain[stt.Provider](primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})
	c.Add("whisper-local", backup)

	// Two failures open the primary's breaker.
	for range 2 {
		if _, err := transcribeVia(c, "audio"); err != nil {
			t.Fatalf("unexpected error while backup is healthy: %v", err)
		}
	}

	text, err := transcribeVia(c, "audio")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "risposta di riserva" {
		t.Fatalf("text = %q, want the backup's transcript", text)
	}
	if got := len(primary.TranscribeCalls); got != 2 {
		t.Fatalf("primary called %d times, want 2 (breaker must skip it once open)", got)
	}
}

func TestChain_Primary(t *testing.T) {
	primary := &sttmock.Provider{Text: "primario"}
	c := NewChain[stt.Provider](primary, "whisper", FallbackConfig{})
	c.Add("whisper-local", &sttmock.Provider{Text: "riserva"})

	if c.Primary() != stt.Provider(primary) {
		t.Fatal("Primary() must return the first registered backend")
	}
}

func TestChain_Do_RunsErrorOnlyCalls(t *testing.T) {
	pingErr := errors.New("connection refused")
	var replicaPinged bool

	c := NewChain(func(context.Context) error { return pingErr }, "archive", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	c.Add("archive-replica", func(context.Context) error {
		replicaPinged = true
		return nil
	})

	err := c.Do(func(ping func(context.Context) error) error {
		return ping(context.Background())
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !replicaPinged {
		t.Fatal("replica was never tried after the primary failed")
	}
}

func TestChain_Do_Exhausted(t *testing.T) {
	c := NewChain(func(context.Context) error { return errors.New("down") }, "archive", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	err := c.Do(func(ping func(context.Context) error) error {
		return ping(context.Background())
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}
