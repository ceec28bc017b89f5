// Package detect decides which of a question's expected subtopics an answer
// has addressed.
//
// Two detectors share one interface. The cascade detector works in three
// ordered tiers: exact lemma overlap, fuzzy token-sort matching against each
// topic's keyword string, and cosine similarity against each topic's
// embedding. A topic covered at an earlier tier is not re-tested later. The
// arbiter detector instead delegates the judgement to an LLM, with phrase-set
// short circuits for "I don't know" style answers.
//
// The choice of detector is configuration; both return the covered name set
// and coverage = 1 - |remaining| / |topics|.
package detect

import "context"

// Topic is the runtime matching view of one subtopic: its name, the raw
// keywords, and the three precomputed matching artefacts. Derived from a
// question's i-th enrichment slot.
type Topic struct {
	// Name is the subtopic name as produced by enrichment.
	Name string

	// Keywords are the raw keyword strings for this subtopic.
	Keywords []string

	// LemmaSet holds the deduplicated lemmas of the keywords.
	LemmaSet map[string]struct{}

	// FuzzyNorm is the normalised space-joined keyword string used for
	// token-sort-ratio matching.
	FuzzyNorm string

	// Vector is the unit-norm embedding of FuzzyNorm. All zeros when the
	// embedding never materialised; the cosine tier skips such topics.
	Vector []float32
}

// Result is what a detector reports for one utterance.
type Result struct {
	// Covered holds the names of the subtopics deemed addressed.
	Covered map[string]struct{}

	// Coverage is 1 - |remaining| / |topics|, in [0, 1].
	Coverage float64
}

// Detector decides topic coverage for one utterance.
//
// focus names the subtopic the current turn is probing (the follow-up target,
// or the first subtopic on a main question). The cascade ignores it; the
// arbiter uses it both for the don't-know short circuit and for its
// asymmetric crediting rule.
type Detector interface {
	Detect(ctx context.Context, utterance string, topics []Topic, focus string) Result
}

// emptyResult is returned for empty utterances or empty topic lists.
func emptyResult() Result {
	return Result{Covered: map[string]struct{}{}, Coverage: 0}
}

// coverageOf computes the coverage fraction for covered out of total topics.
func coverageOf(covered map[string]struct{}, total int) float64 {
	if total == 0 {
		return 0
	}
	remaining := total - len(covered)
	return 1 - float64(remaining)/float64(total)
}
