package detect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/kolloq/pkg/provider/llm"
)

// Arbiter delegates the coverage judgement to an LLM instead of the lexical
// cascade. It short-circuits evasive answers before spending a model call:
//
//   - A "don't know" or "you already asked that" answer covers exactly the
//     focus subtopic, so the controller will not re-ask it, and reports every
//     other subtopic missing.
//   - Fewer than four words is too little text to arbitrate; every topic is
//     marked covered.
//
// Otherwise the model answers T/F per topic, comma-separated, and a topic is
// credited only when it is flagged T and it is the focus subtopic. The
// asymmetry is deliberate: on an arbitrated turn, credit beyond the probed
// subtopic is more often a false positive than real coverage.
type Arbiter struct {
	provider llm.Provider
	logger   *slog.Logger
}

// minArbiterWords is the word count below which no arbitration happens.
const minArbiterWords = 4

// NewArbiter returns an Arbiter over the given LLM provider.
// logger may be nil, in which case slog.Default() is used.
func NewArbiter(provider llm.Provider, logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{provider: provider, logger: logger.With("component", "arbiter")}
}

// Detect implements Detector.
func (a *Arbiter) Detect(ctx context.Context, utterance string, topics []Topic, focus string) Result {
	if strings.TrimSpace(utterance) == "" || len(topics) == 0 {
		return emptyResult()
	}

	covered := make(map[string]struct{}, len(topics))

	switch {
	case IsDontKnow(utterance) || IsRepeatedQuestionComplaint(utterance):
		for _, t := range topics {
			if t.Name == focus {
				covered[t.Name] = struct{}{}
				break
			}
		}
		a.logger.Debug("evasive answer, crediting focus only", "focus", focus)

	case len(strings.Fields(utterance)) < minArbiterWords:
		for _, t := range topics {
			covered[t.Name] = struct{}{}
		}

	default:
		flags, err := a.arbitrate(ctx, utterance, topics)
		if err != nil {
			a.logger.Warn("arbitration failed, crediting nothing", "error", err)
			break
		}
		for i, t := range topics {
			if i < len(flags) && flags[i] && t.Name == focus {
				covered[t.Name] = struct{}{}
			}
		}
	}

	return Result{Covered: covered, Coverage: coverageOf(covered, len(topics))}
}

// arbitrate asks the model for one T/F flag per topic, in topic order.
func (a *Arbiter) arbitrate(ctx context.Context, utterance string, topics []Topic) ([]bool, error) {
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = t.Name
	}

	prompt := fmt.Sprintf(`Dato il seguente testo:

%q

Dimmi se questo testo riguarda ciascuno dei seguenti topic: %s. Rispondi solo con "T" o "F" separati da una virgola, nello stesso ordine dei topic.

Non aggiungere nient'altro nella risposta.`, utterance, strings.Join(names, ", "))

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("detect: arbitrate: %w", err)
	}

	parts := strings.Split(resp.Content, ",")
	flags := make([]bool, 0, len(parts))
	for _, p := range parts {
		flags = append(flags, strings.EqualFold(strings.TrimSpace(p), "T"))
	}
	if len(flags) != len(topics) {
		a.logger.Warn("arbiter returned wrong flag count",
			"want", len(topics), "got", len(flags), "raw", resp.Content)
	}
	return flags, nil
}

// Ensure Arbiter implements Detector at compile time.
var _ Detector = (*Arbiter)(nil)
