package detect

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MrWong99/kolloq/internal/nlp"
)

// TopicMeta is the matching artefact triple for one subtopic's keywords.
type TopicMeta struct {
	LemmaSet  map[string]struct{}
	FuzzyNorm string
	Vector    []float32
}

// MetaBuilder derives the matching artefacts of a keyword list: the lemma
// set, the fuzzy-norm string, and a unit embedding of that string.
type MetaBuilder struct {
	nlp    *nlp.Service
	logger *slog.Logger
}

// NewMetaBuilder returns a MetaBuilder over the given NLP service.
// logger may be nil, in which case slog.Default() is used.
func NewMetaBuilder(svc *nlp.Service, logger *slog.Logger) *MetaBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetaBuilder{nlp: svc, logger: logger.With("component", "metabuilder")}
}

// Build produces the artefacts for one subtopic's keyword list. It never
// returns an error: when the embedding fails the vector is all zeros and the
// lemma set may be empty, and the coverage engine tolerates both. Build is
// deterministic in its lemma set and fuzzy norm for identical input.
func (b *MetaBuilder) Build(ctx context.Context, keywords []string) TopicMeta {
	fuzzyNorm := FuzzyNorm(keywords)

	lemmas := make(map[string]struct{})
	for _, kw := range keywords {
		for l := range nlp.LemmaSet(kw) {
			lemmas[l] = struct{}{}
		}
	}

	meta := TopicMeta{
		LemmaSet:  lemmas,
		FuzzyNorm: fuzzyNorm,
		Vector:    make([]float32, b.nlp.Dimensions()),
	}
	if fuzzyNorm == "" {
		return meta
	}

	vec := b.nlp.Embed(ctx, fuzzyNorm)
	if nlp.IsZero(vec) {
		b.logger.Warn("keyword embedding unavailable, cosine tier disabled for topic",
			"fuzzy_norm", fuzzyNorm)
		return meta
	}
	meta.Vector = vec
	return meta
}

// FuzzyNorm joins keywords with single spaces after lowercasing, stripping
// diacritics, and collapsing whitespace. Idempotent.
func FuzzyNorm(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if n := nlp.Normalize(kw); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " ")
}
