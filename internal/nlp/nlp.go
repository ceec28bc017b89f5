// Package nlp provides the text primitives the coverage engine is built on:
// normalisation, tokenisation with lemmas, lightweight entity tagging, and
// sentence embeddings with cosine similarity.
//
// The lemmatiser is rule-based (suffix stripping tuned for Italian with an
// English fallback); it trades linguistic completeness for determinism and
// zero external services. Semantic signal beyond lemma overlap comes from the
// embeddings provider.
package nlp

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/MrWong99/kolloq/pkg/provider/embeddings"
)

// Token is a single word of an analysed text.
type Token struct {
	// Surface is the normalised form as it appears in the text.
	Surface string
	// Lemma is the canonical form used for exact-overlap matching.
	Lemma string
}

// Entity is a named-entity candidate found in the text.
type Entity struct {
	// Surface is the entity text as written.
	Surface string
	// Label is a coarse tag: "PROPN" for capitalised names, "NUM" for numbers.
	Label string
}

// Analysis is the result of parsing one text.
type Analysis struct {
	Tokens   []Token
	Entities []Entity
	// Vector is the sentence embedding. All zeros when the text is empty or
	// the embeddings backend failed; callers treat that as "no semantic
	// signal".
	Vector []float32
}

// Service parses free text into tokens, entities, and an embedding vector.
type Service struct {
	embedder embeddings.Provider
	logger   *slog.Logger
}

// NewService returns a Service backed by the given embeddings provider.
// embedder may be nil, in which case every vector is zero and the cosine tier
// of the cascade never fires. logger may be nil, in which case slog.Default()
// is used.
func NewService(embedder embeddings.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		logger:   logger.With("component", "nlp"),
	}
}

// Dimensions returns the embedding dimensionality of the backing provider, or
// zero when no provider is configured.
func (s *Service) Dimensions() int {
	if s.embedder == nil {
		return 0
	}
	return s.embedder.Dimensions()
}

// Parse analyses text. Empty or whitespace-only input yields empty tokens and
// a zero vector without error. An embeddings failure degrades to a zero
// vector; it is logged, never surfaced.
func (s *Service) Parse(ctx context.Context, text string) Analysis {
	normalised := Normalize(text)
	if normalised == "" {
		return Analysis{Vector: make([]float32, s.Dimensions())}
	}

	words := strings.Fields(normalised)
	tokens := make([]Token, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, Token{Surface: w, Lemma: Lemma(w)})
	}

	a := Analysis{
		Tokens:   tokens,
		Entities: tagEntities(text),
	}

	if s.embedder == nil {
		a.Vector = []float32{}
		return a
	}
	vec, err := s.embedder.Embed(ctx, normalised)
	if err != nil {
		s.logger.Warn("embedding failed, continuing without semantic signal",
			"error", err, "text_len", len(text))
		a.Vector = make([]float32, s.embedder.Dimensions())
		return a
	}
	a.Vector = Unit(vec)
	return a
}

// Embed returns the unit-norm embedding of the normalised text, or a zero
// vector on failure.
func (s *Service) Embed(ctx context.Context, text string) []float32 {
	normalised := Normalize(text)
	if normalised == "" || s.embedder == nil {
		return make([]float32, s.Dimensions())
	}
	vec, err := s.embedder.Embed(ctx, normalised)
	if err != nil {
		s.logger.Warn("embedding failed", "error", err)
		return make([]float32, s.embedder.Dimensions())
	}
	return Unit(vec)
}

// LemmaSet returns the deduplicated lemma set of text after normalisation.
func LemmaSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(Normalize(text)) {
		set[Lemma(w)] = struct{}{}
	}
	return set
}

// tagEntities scans the original (un-normalised) text for coarse entity
// candidates: capitalised words that do not open a sentence, and numbers.
func tagEntities(text string) []Entity {
	var out []Entity
	sentenceStart := true
	for _, w := range strings.Fields(text) {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if trimmed == "" {
			continue
		}

		runes := []rune(trimmed)
		switch {
		case unicode.IsDigit(runes[0]):
			out = append(out, Entity{Surface: trimmed, Label: "NUM"})
		case unicode.IsUpper(runes[0]) && !sentenceStart:
			out = append(out, Entity{Surface: trimmed, Label: "PROPN"})
		}

		sentenceStart = strings.ContainsAny(w, ".!?")
	}
	return out
}
