package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/kolloq/pkg/provider/llm"
)

// Follow-up generation limits.
const (
	// FollowUpTimeout bounds one generation call including its single retry.
	FollowUpTimeout = 15 * time.Second

	followUpMaxTokens = 60
	followUpTemp      = 0.7

	minFollowUpLen = 5
	maxFollowUpLen = 120
)

// followUpExamples prime the model with the expected shape.
var followUpExamples = []llm.Message{
	{Role: "system", Content: "Esempio 1 — DOMANDA: Qual è la tua giornata tipo?\n" +
		"RISPOSTA: Di solito mi sveglio alle 7, porto i bambini a scuola e poi lavoro in ufficio.\n" +
		"FOLLOW-UP: Qual è il momento più impegnativo della tua giornata?"},
	{Role: "system", Content: "Esempio 2 — DOMANDA: Che sport pratichi?\n" +
		"RISPOSTA: Mi piace andare a correre due volte a settimana.\n" +
		"FOLLOW-UP: Cosa ti motiva a mantenere questa routine?"},
}

// FollowUp generates one follow-up question that probes the first missing
// subtopic, given the principal question and the candidate's last answer.
// notes, when non-empty, is appended as interviewer context.
//
// The candidate question must be 5..120 characters and end with '?'. One
// corrective retry is attempted; after that, or on any provider error or
// timeout, the deterministic fallback targeting the missing subtopic is
// returned. FollowUp therefore never fails.
func (g *Gateway) FollowUp(ctx context.Context, question, transcript, notes string, missing []string) string {
	target := "aspetto non approfondito"
	missingList := "nessun aspetto specifico"
	if len(missing) > 0 {
		target = missing[0]
		missingList = strings.Join(missing, ", ")
	}

	ctx, cancel := context.WithTimeout(ctx, FollowUpTimeout)
	defer cancel()

	instruction := fmt.Sprintf(
		"Sei un intervistatore HR italiano, cortese e curioso.\n"+
			"L'utente ha appena risposto alla domanda principale. Dalla sua risposta, "+
			"sembra che i seguenti argomenti/aspetti chiave non siano stati toccati o "+
			"approfonditi a sufficienza: %s.\n\n"+
			"Formula UNA sola domanda di follow-up, massimo 25 parole, in italiano colloquiale.\n"+
			"La domanda deve:\n"+
			"1. Terminare con '?'\n"+
			"2. Essere naturale e collegata alla precedente risposta dell'utente.\n"+
			"3. Invitare l'utente ad approfondire specificamente sul subtopic '%s', "+
			"collegandoti se possibile alla risposta precedente.\n"+
			"Evita di chiedere genericamente \"puoi dirmi di più?\". Sii più specifico, "+
			"riferendoti a uno dei temi non trattati.",
		missingList, target)

	msgs := []llm.Message{
		{Role: "system", Content: "Sei un intervistatore HR italiano, cortese e curioso."},
	}
	msgs = append(msgs, followUpExamples...)
	msgs = append(msgs,
		llm.Message{Role: "assistant", Content: question},
		llm.Message{Role: "user", Content: transcript},
	)
	if notes != "" {
		msgs = append(msgs, llm.Message{Role: "assistant", Content: "NOTE: " + notes})
	}
	msgs = append(msgs, llm.Message{Role: "system", Content: instruction})

	for attempt := 0; attempt < 2; attempt++ {
		candidate, err := g.ChatText(ctx, msgs, followUpTemp, followUpMaxTokens)
		if err != nil {
			g.logger.Warn("follow-up generation failed, using fallback",
				"attempt", attempt+1, "error", err)
			break
		}
		if validFollowUp(candidate) {
			return candidate
		}

		g.logger.Debug("follow-up candidate rejected", "candidate", candidate)
		msgs = append(msgs, llm.Message{
			Role:    "system",
			Content: "La precedente risposta non rispettava i requisiti. Riprova generando UNA domanda breve che termini con '?'",
		})
	}

	return FallbackFollowUp(target)
}

// FallbackFollowUp is the deterministic follow-up used when generation fails.
func FallbackFollowUp(missing string) string {
	return fmt.Sprintf("Potresti raccontarmi qualcosa di più su '%s'?", missing)
}

// validFollowUp checks the hard constraints on a generated question.
func validFollowUp(q string) bool {
	n := len([]rune(q))
	return n >= minFollowUpLen && n <= maxFollowUpLen && strings.HasSuffix(q, "?")
}
