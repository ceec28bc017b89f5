// Package reflection keeps short running interviewer notes: a compact LLM
// summary of the recent exchange, refreshed as the conversation grows. Notes
// feed back into follow-up generation as extra context.
package reflection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/kolloq/internal/gateway"
	"github.com/MrWong99/kolloq/pkg/provider/llm"
)

const (
	// reflectAfterChars is the amount of unreflected transcript that
	// triggers a note refresh.
	reflectAfterChars = 200

	// maxTurns bounds the window handed to the summariser.
	maxTurns = 6

	reflectTimeout   = 10 * time.Second
	reflectTemp      = 0.3
	reflectMaxTokens = 120
)

const reflectSystemPrompt = "Sei l'assistente di un intervistatore HR. " +
	"Riassumi lo scambio seguente in note sintetiche per l'intervistatore, " +
	"massimo due frasi in italiano. Annota i temi toccati dal candidato e il " +
	"suo atteggiamento. Rispondi solo con le note."

type turn struct {
	role string
	text string
}

// Reflector accumulates conversation turns and refreshes the notes once
// enough new material arrives. Safe for concurrent use.
type Reflector struct {
	gw     *gateway.Gateway
	logger *slog.Logger

	mu          sync.Mutex
	turns       []turn
	unreflected int
	notes       string
}

// New builds a Reflector. logger may be nil.
func New(gw *gateway.Gateway, logger *slog.Logger) *Reflector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reflector{
		gw:     gw,
		logger: logger.With("component", "reflection"),
	}
}

// Observe records one conversation turn and, when the unreflected transcript
// has grown past the threshold, refreshes the notes. Summarisation failures
// are logged and skipped; the old notes stay in place.
func (r *Reflector) Observe(ctx context.Context, role, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.turns = append(r.turns, turn{role: role, text: text})
	if len(r.turns) > maxTurns {
		r.turns = r.turns[len(r.turns)-maxTurns:]
	}
	r.unreflected += len([]rune(text))

	if r.unreflected < reflectAfterChars {
		return
	}
	r.unreflected = 0
	r.refreshLocked(ctx)
}

// Notes returns the current interviewer notes, empty until the first
// successful refresh.
func (r *Reflector) Notes() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notes
}

// refreshLocked summarises the turn window. Callers hold r.mu.
func (r *Reflector) refreshLocked(ctx context.Context) {
	var b strings.Builder
	if r.notes != "" {
		fmt.Fprintf(&b, "Note precedenti: %s\n\n", r.notes)
	}
	for _, t := range r.turns {
		fmt.Fprintf(&b, "%s: %s\n", t.role, t.text)
	}

	ctx, cancel := context.WithTimeout(ctx, reflectTimeout)
	defer cancel()

	msgs := []llm.Message{
		{Role: "system", Content: reflectSystemPrompt},
		{Role: "user", Content: b.String()},
	}
	notes, err := r.gw.ChatText(ctx, msgs, reflectTemp, reflectMaxTokens)
	if err != nil {
		r.logger.Warn("note refresh failed, keeping previous notes", "error", err)
		return
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		r.notes = notes
		r.logger.Debug("interviewer notes refreshed", "length", len(notes))
	}
}
