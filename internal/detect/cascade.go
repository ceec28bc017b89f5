package detect

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/kolloq/internal/nlp"
)

// Cascade is the three-tier coverage detector: exact lemma overlap, fuzzy
// token-sort matching, then cosine similarity. Later tiers only see topics
// the earlier tiers left uncovered, so loosening thresholds can only grow
// the covered set.
type Cascade struct {
	nlp      *nlp.Service
	adaptive bool
	logger   *slog.Logger

	mu         sync.RWMutex
	thresholds Thresholds
}

// CascadeOption configures a Cascade.
type CascadeOption func(*Cascade)

// WithThresholds overrides the fixed fuzzy/cosine cut-offs.
func WithThresholds(t Thresholds) CascadeOption {
	return func(c *Cascade) {
		c.thresholds = t
	}
}

// WithAdaptiveThresholds derives the cut-offs per utterance from its word
// count and the topic count instead of using the fixed values.
func WithAdaptiveThresholds() CascadeOption {
	return func(c *Cascade) {
		c.adaptive = true
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) CascadeOption {
	return func(c *Cascade) {
		c.logger = logger
	}
}

// NewCascade returns a Cascade over the given NLP service.
func NewCascade(svc *nlp.Service, opts ...CascadeOption) *Cascade {
	c := &Cascade{
		nlp:        svc,
		thresholds: DefaultThresholds,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("component", "cascade")
	return c
}

// SetThresholds replaces the fixed cut-offs at runtime; in-flight detections
// keep the values they started with. No effect in adaptive mode.
func (c *Cascade) SetThresholds(t Thresholds) {
	c.mu.Lock()
	c.thresholds = t
	c.mu.Unlock()
}

// Detect implements Detector. The focus subtopic plays no role in the
// cascade; it exists for interface parity with the arbiter.
func (c *Cascade) Detect(ctx context.Context, utterance string, topics []Topic, _ string) Result {
	if strings.TrimSpace(utterance) == "" || len(topics) == 0 {
		return emptyResult()
	}

	normalised := nlp.Normalize(utterance)
	userLemmas := nlp.LemmaSet(utterance)

	c.mu.RLock()
	th := c.thresholds
	c.mu.RUnlock()
	if c.adaptive {
		th = AdaptiveThresholds(len(strings.Fields(normalised)), len(topics))
		c.logger.Debug("adaptive thresholds",
			"fuzzy", th.Fuzzy, "cos", th.Cos,
			"words", len(strings.Fields(normalised)), "topics", len(topics))
	}

	covered := make(map[string]struct{}, len(topics))
	remaining := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		remaining[t.Name] = struct{}{}
	}

	// Tier 1: exact lemma overlap.
	for _, t := range topics {
		if _, ok := remaining[t.Name]; !ok {
			continue
		}
		if intersects(userLemmas, t.LemmaSet) {
			covered[t.Name] = struct{}{}
			delete(remaining, t.Name)
		}
	}

	// Tier 2: fuzzy token-sort ratio against the keyword string.
	for _, t := range topics {
		if _, ok := remaining[t.Name]; !ok {
			continue
		}
		if TokenSortRatio(normalised, t.FuzzyNorm) >= th.Fuzzy {
			covered[t.Name] = struct{}{}
			delete(remaining, t.Name)
		}
	}

	// Tier 3: cosine similarity. The utterance is embedded lazily, only when
	// something is still uncovered.
	if len(remaining) > 0 {
		userVec := c.nlp.Embed(ctx, normalised)
		if !nlp.IsZero(userVec) {
			for _, t := range topics {
				if _, ok := remaining[t.Name]; !ok {
					continue
				}
				if nlp.IsZero(t.Vector) {
					continue
				}
				if nlp.Cosine(userVec, t.Vector) >= th.Cos {
					covered[t.Name] = struct{}{}
					delete(remaining, t.Name)
				}
			}
		}
	}

	return Result{Covered: covered, Coverage: coverageOf(covered, len(topics))}
}

// intersects reports whether a and b share at least one element.
func intersects(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

// Ensure Cascade implements Detector at compile time.
var _ Detector = (*Cascade)(nil)
