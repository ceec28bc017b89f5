// Package stt defines the Provider interface for speech-to-text backends.
//
// Interview answers arrive as complete audio uploads, so the interface is a
// batch transcription call rather than a streaming session. Implementors must
// be safe for concurrent use.
package stt

import "context"

// TranscribeConfig carries optional hints for a transcription request.
type TranscribeConfig struct {
	// Language is an ISO 639-1 hint (e.g. "it"). Empty lets the backend
	// auto-detect.
	Language string

	// Prompt biases the recogniser towards domain vocabulary (e.g. the
	// current question's keywords). Backends without prompt support ignore it.
	Prompt string
}

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe converts a complete audio recording into text. audio holds
	// the raw file bytes; format is the container extension without the dot
	// (e.g. "wav", "mp3", "webm").
	Transcribe(ctx context.Context, audio []byte, format string, cfg TranscribeConfig) (string, error)
}
