// Package tts defines the Provider interface for text-to-speech backends.
//
// Audio is a side channel of the interview surface: handlers return text plus
// a companion URL, and the TTS endpoint synthesises on demand. The interface
// is therefore a one-shot synthesis call. Implementors must be safe for
// concurrent use.
package tts

import "context"

// VoiceProfile selects and shapes the synthesised voice.
type VoiceProfile struct {
	// VoiceID is the backend-specific voice identifier.
	VoiceID string

	// Speed scales speaking rate; 0 means backend default (1.0).
	Speed float64

	// Format is the audio container to produce ("mp3", "wav", ...). Empty
	// means backend default.
	Format string
}

// Provider is the abstraction over any text-to-speech backend.
type Provider interface {
	// Synthesize converts text to audio bytes using the given voice.
	// Returns an error when the backend is unavailable or rejects the input;
	// callers are expected to fall back rather than fail the interview turn.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)

	// ContentType returns the MIME type of audio produced for the given
	// profile (e.g. "audio/mpeg").
	ContentType(voice VoiceProfile) string
}
