// Package beep provides a terminal text-to-speech fallback that returns a
// short static beep instead of synthesised speech. It never fails, which
// makes it a suitable last element of a TTS fallback chain: the candidate
// hears that a prompt was delivered even when every real backend is down.
package beep

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/MrWong99/kolloq/pkg/provider/tts"
)

const (
	sampleRate = 16000
	freqHz     = 880.0
	durationMS = 250
)

// Provider implements tts.Provider with a pre-rendered WAV beep.
type Provider struct {
	wav []byte
}

// New returns a Provider with the beep rendered once up front.
func New() *Provider {
	return &Provider{wav: renderBeep()}
}

// Synthesize ignores text and voice and returns the static beep.
func (p *Provider) Synthesize(_ context.Context, _ string, _ tts.VoiceProfile) ([]byte, error) {
	out := make([]byte, len(p.wav))
	copy(out, p.wav)
	return out, nil
}

// ContentType implements tts.Provider.
func (p *Provider) ContentType(tts.VoiceProfile) string {
	return "audio/wav"
}

// renderBeep produces a mono 16-bit PCM WAV containing a short sine tone
// with a linear fade-out to avoid a click at the end.
func renderBeep() []byte {
	samples := sampleRate * durationMS / 1000
	dataLen := samples * 2

	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], sampleRate*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i := 0; i < samples; i++ {
		fade := 1.0 - float64(i)/float64(samples)
		v := math.Sin(2*math.Pi*freqHz*float64(i)/sampleRate) * fade * 0.6
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return buf
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
