// Package mock provides a test double for the embeddings.Provider interface.
//
// By default the Provider returns deterministic pseudo-embeddings derived
// from the input text, so that identical texts map to identical vectors and
// different texts usually do not. Tests that need exact control can set
// Vectors to pin specific texts to specific embeddings.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/MrWong99/kolloq/pkg/provider/embeddings"
)

// DefaultDimensions is the vector size used when Dims is zero.
const DefaultDimensions = 8

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Vectors pins specific input texts to specific embeddings. Texts not
	// present fall back to the deterministic hash-derived vector.
	Vectors map[string][]float32

	// Dims is the reported dimensionality. Defaults to DefaultDimensions.
	Dims int

	// Err, if non-nil, is returned by Embed and EmbedBatch.
	Err error

	// EmbedCalls records every text passed to Embed, in order.
	EmbedCalls []string

	// EmbedBatchCalls records every slice passed to EmbedBatch, in order.
	EmbedBatchCalls [][]string
}

// Embed records the call and returns the pinned or derived vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vectorFor(text), nil
}

// EmbedBatch records the call and returns one vector per text.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	batch := make([]string, len(texts))
	copy(batch, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, batch)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vectorFor(t)
	}
	return out, nil
}

// Dimensions returns Dims, or DefaultDimensions when unset.
func (p *Provider) Dimensions() int {
	if p.Dims == 0 {
		return DefaultDimensions
	}
	return p.Dims
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return "mock-embeddings"
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
}

// vectorFor returns the pinned vector for text, or a unit-norm vector seeded
// by an FNV hash of the text. Callers must hold p.mu.
func (p *Provider) vectorFor(text string) []float32 {
	if v, ok := p.Vectors[text]; ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}

	dims := p.Dims
	if dims == 0 {
		dims = DefaultDimensions
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, dims)
	var norm float64
	for i := range v {
		// xorshift over the seed for a stable per-dimension value.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		f := float64(int64(seed%2000)-1000) / 1000
		v[i] = float32(f)
		norm += f * f
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)
