// Package embeddings defines the Provider interface for sentence-embedding
// backends.
//
// Embeddings power the cosine tier of the topic-coverage cascade and the
// semantic search over archived answers. All vectors produced by one provider
// instance share a single dimensionality; mixing vectors from providers with
// different dimensions is a caller error.
//
// Implementors must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any embeddings backend.
type Provider interface {
	// Embed returns the embedding vector for a single text. The returned
	// slice has length Dimensions(). Vectors are not guaranteed to be
	// L2-normalised; callers that need unit vectors must normalise.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in input order.
	// Implementations should batch the request when the backend supports it.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of vectors produced by this
	// provider. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the identifier of the underlying model.
	ModelID() string
}
