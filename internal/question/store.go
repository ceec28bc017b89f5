package question

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory ordered question list plus the enrichment progress
// record. The interview can begin as soon as LoadScript returns; metadata
// arrives progressively. Fields are replaced atomically under the lock, so
// every read observes a consistent per-question snapshot.
type Store struct {
	mu         sync.RWMutex
	questions  []*Question
	status     Status
	generation uint64

	notify chan struct{}
	logger *slog.Logger
}

// NewStore returns an empty Store.
// logger may be nil, in which case slog.Default() is used.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		notify: make(chan struct{}, 1),
		logger: logger.With("component", "question_store"),
	}
}

// LoadScript replaces the script with the given raw prompts. Blank prompts
// are dropped; every admitted question gets a fresh id. Any in-flight
// enrichment batch becomes stale and its remaining writes are discarded.
// Returns the number of admitted questions.
func (s *Store) LoadScript(prompts []string) int {
	admitted := make([]*Question, 0, len(prompts))
	for _, p := range prompts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		admitted = append(admitted, &Question{
			ID:     uuid.NewString(),
			Prompt: p,
		})
	}

	s.mu.Lock()
	s.generation++
	s.questions = admitted
	s.status = Status{
		Total:      len(admitted),
		InProgress: len(admitted) > 0,
		StartedAt:  time.Now(),
		Ready:      make([]bool, len(admitted)),
	}
	gen := s.generation
	s.mu.Unlock()

	s.logger.Info("script loaded", "questions", len(admitted), "generation", gen)

	if len(admitted) > 0 {
		// Coalescing signal; the worker picks up the latest generation.
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	return len(admitted)
}

// Notify returns the channel signalled after each LoadScript. Consumed by
// the enrichment worker.
func (s *Store) Notify() <-chan struct{} {
	return s.notify
}

// Len returns the number of questions in the current script.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.questions)
}

// At returns a copy of the question at index i.
func (s *Store) At(i int) (Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.questions) {
		return Question{}, false
	}
	return s.questions[i].clone(), true
}

// All returns copies of every question, in script order.
func (s *Store) All() []Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Question, len(s.questions))
	for i, q := range s.questions {
		out[i] = q.clone()
	}
	return out
}

// Generation identifies the current script; enrichment writes carry it so
// that a reload mid-batch invalidates the remaining writes.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Status returns a copy of the progress record.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.Ready = append([]bool(nil), s.status.Ready...)
	return st
}

// SetMetadata publishes the enrichment result for question i, atomically
// updating the question and the progress record. Metadata never regresses:
// empty fields mean the question failed enrichment and stays textual, and a
// later generation's script discards writes from an older batch. ok reports
// whether the write was applied.
func (s *Store) SetMetadata(gen uint64, i int, primaryTopic string, subtopics []string, keywords [][]string, lemmaSets []map[string]struct{}, fuzzyNorms []string, vectors [][]float32, enrichErr error) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || i < 0 || i >= len(s.questions) {
		return false
	}

	q := s.questions[i]
	if enrichErr != nil {
		s.status.LastError = enrichErr.Error()
	} else {
		q.PrimaryTopic = primaryTopic
		q.Subtopics = subtopics
		q.Keywords = keywords
		q.LemmaSets = lemmaSets
		q.FuzzyNorms = fuzzyNorms
		q.Vectors = vectors
		s.status.Ready[i] = true
	}

	s.status.Processed++
	if s.status.Processed >= s.status.Total {
		s.status.InProgress = false
		s.status.FinishedAt = time.Now()
	}
	return true
}
