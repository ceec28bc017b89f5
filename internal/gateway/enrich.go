package gateway

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/MrWong99/kolloq/pkg/provider/llm"
)

// Enrichment is the topic metadata the model produces for one question.
type Enrichment struct {
	PrimaryTopic string     `json:"primary_topic"`
	Subtopics    []string   `json:"subtopics"`
	Keywords     [][]string `json:"keywords"`
}

// Bounds enforced on enrichment results beyond the JSON Schema.
const (
	minSubtopics   = 2
	maxSubtopics   = 8
	maxKeywordsPer = 6
)

// enrichSystemMessage pins the model to schema-only Italian JSON output.
const enrichSystemMessage = "Sei un assistente che restituisce esclusivamente JSON valido, " +
	"esclusivamente in italiano, senza testo aggiuntivo, conforme allo schema."

// enrichSchema validates enrichment replies locally.
var enrichSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"primary_topic": {Type: "string"},
		"subtopics":     {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		"keywords": {
			Type:  "array",
			Items: &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
	},
	Required:             []string{"primary_topic", "subtopics", "keywords"},
	AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
}

// enrichWireSchema is the same schema in the shape backends expect for
// constrained decoding ("additionalProperties": false rather than a
// never-matching subschema).
var enrichWireSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"primary_topic": map[string]any{"type": "string"},
		"subtopics": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"keywords": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	},
	"required":             []any{"primary_topic", "subtopics", "keywords"},
	"additionalProperties": false,
}

// Enrich asks the model for the primary topic, subtopics, and per-subtopic
// keyword lists of one interview question. The result satisfies the
// invariants the rest of the engine assumes: 2..8 unique subtopics, keyword
// lists parallel to them, each list under seven entries, no keyword shared
// between lists. Returns ErrLLMOutputInvalid (wrapped) when the model cannot
// produce a valid result within the retry budget.
func (g *Gateway) Enrich(ctx context.Context, prompt string) (Enrichment, error) {
	msgs := []llm.Message{
		{Role: "system", Content: enrichSystemMessage},
		{Role: "user", Content: fmt.Sprintf(
			"Analizza la seguente domanda di colloquio e individua il tema principale, "+
				"i sotto-argomenti che una risposta completa dovrebbe toccare e, per ogni "+
				"sotto-argomento, una breve lista di parole chiave.\n\nDOMANDA: %q", prompt)},
	}

	var e Enrichment
	err := g.ChatJSON(ctx, msgs, "metadata", enrichSchema, enrichWireSchema, &e, func() error {
		return checkEnrichment(e)
	})
	if err != nil {
		return Enrichment{}, err
	}
	return e, nil
}

// checkEnrichment applies the business rules the schema cannot express.
func checkEnrichment(e Enrichment) error {
	if n := len(e.Subtopics); n < minSubtopics || n > maxSubtopics {
		return fmt.Errorf("subtopics: want %d..%d, got %d", minSubtopics, maxSubtopics, n)
	}

	seen := make(map[string]struct{}, len(e.Subtopics))
	for _, s := range e.Subtopics {
		if _, dup := seen[s]; dup {
			return fmt.Errorf("subtopics: duplicate %q", s)
		}
		seen[s] = struct{}{}
	}

	if len(e.Keywords) != len(e.Subtopics) {
		return fmt.Errorf("keywords: want %d lists, got %d", len(e.Subtopics), len(e.Keywords))
	}

	seenKw := make(map[string]int, len(e.Keywords)*maxKeywordsPer)
	for i, kws := range e.Keywords {
		if len(kws) > maxKeywordsPer {
			return fmt.Errorf("keywords[%d]: at most %d entries, got %d", i, maxKeywordsPer, len(kws))
		}
		for _, kw := range kws {
			if j, dup := seenKw[kw]; dup {
				return fmt.Errorf("keyword %q appears under subtopics %d and %d", kw, j, i)
			}
			seenKw[kw] = i
		}
	}

	return nil
}
