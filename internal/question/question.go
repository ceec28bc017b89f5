// Package question owns the interview script: importing raw prompts from
// files, the in-memory ordered store, and the background worker that fills
// each question's topic metadata one question at a time, in index order.
package question

import (
	"time"

	"github.com/MrWong99/kolloq/internal/detect"
)

// Question is one scripted prompt plus its enrichment metadata. The five
// metadata slices are parallel: index i describes subtopic i. All of them are
// empty until the background worker has processed the question; readers must
// not assume metadata is ready.
type Question struct {
	// ID is a stable opaque identifier, assigned at load time when missing.
	ID string

	// Prompt is the question text delivered to the candidate.
	Prompt string

	// PrimaryTopic is the overall theme, empty while enrichment is pending
	// or when it failed.
	PrimaryTopic string

	// Subtopics are the facets a complete answer should touch (2..8, unique).
	Subtopics []string

	// Keywords holds one keyword list per subtopic.
	Keywords [][]string

	// LemmaSets holds the deduplicated keyword lemmas per subtopic.
	LemmaSets []map[string]struct{}

	// FuzzyNorms holds the normalised keyword strings per subtopic.
	FuzzyNorms []string

	// Vectors holds unit embeddings per subtopic. A zero vector means the
	// embedding never materialised; the cosine tier skips it.
	Vectors [][]float32
}

// Enriched reports whether metadata has been populated.
func (q *Question) Enriched() bool {
	return len(q.Subtopics) > 0
}

// Topics assembles the runtime matching objects from the parallel metadata
// slices. Returns nil while the question is not yet enriched.
func (q *Question) Topics() []detect.Topic {
	if !q.Enriched() {
		return nil
	}
	topics := make([]detect.Topic, len(q.Subtopics))
	for i, name := range q.Subtopics {
		t := detect.Topic{Name: name}
		if i < len(q.Keywords) {
			t.Keywords = q.Keywords[i]
		}
		if i < len(q.LemmaSets) {
			t.LemmaSet = q.LemmaSets[i]
		}
		if i < len(q.FuzzyNorms) {
			t.FuzzyNorm = q.FuzzyNorms[i]
		}
		if i < len(q.Vectors) {
			t.Vector = q.Vectors[i]
		}
		topics[i] = t
	}
	return topics
}

// clone returns a deep-enough copy for handing out under copy-on-read: the
// slices are shared because the store replaces, never mutates, them.
func (q *Question) clone() Question {
	return *q
}

// Status describes the progress of one enrichment batch.
type Status struct {
	// Total is the number of questions in the current script.
	Total int `json:"total_questions"`

	// Processed counts questions whose enrichment finished (successfully or
	// with empty metadata after a permanent failure).
	Processed int `json:"processed_questions"`

	// InProgress is true from batch start until the last question completes.
	InProgress bool `json:"in_progress"`

	// StartedAt and FinishedAt bound the batch. FinishedAt is zero while the
	// batch runs.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	// LastError describes the most recent per-question failure, if any.
	LastError string `json:"last_error,omitempty"`

	// Ready flags, per question index, whether metadata is populated.
	Ready []bool `json:"ready"`
}

// CompletionPercent is Processed over Total as 0..100.
func (s Status) CompletionPercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return 100 * float64(s.Processed) / float64(s.Total)
}

// ElapsedSeconds is the batch runtime so far, or the final runtime once done.
func (s Status) ElapsedSeconds() float64 {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartedAt).Seconds()
}
