package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/kolloq/pkg/provider/llm"
	llmmock "github.com/MrWong99/kolloq/pkg/provider/llm/mock"
)

const validEnrichmentJSON = `{
	"primary_topic": "database",
	"subtopics": ["relazionali", "indici"],
	"keywords": [["sql", "postgres"], ["btree"]]
}`

func TestChatText(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "  ciao mondo \n"},
	}
	g := New(provider)

	got, err := g.ChatText(context.Background(), []llm.Message{{Role: "user", Content: "saluta"}}, 0.5, 40)
	if err != nil {
		t.Fatalf("ChatText: %v", err)
	}
	if got != "ciao mondo" {
		t.Fatalf("content = %q, want trimmed reply", got)
	}

	req := provider.CompleteCalls[0].Req
	if req.Temperature != 0.5 || req.MaxTokens != 40 {
		t.Fatalf("request = %+v, want temperature 0.5 and max tokens 40", req)
	}
}

func TestChatText_ProviderError(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{CompleteErr: errors.New("backend down")}
	g := New(provider)

	if _, err := g.ChatText(context.Background(), nil, 0, 0); err == nil {
		t.Fatal("expected wrapped provider error")
	}
}

func TestChatText_NoProvider(t *testing.T) {
	t.Parallel()

	g := New(nil)
	if _, err := g.ChatText(context.Background(), nil, 0, 0); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestEnrich_Valid(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: validEnrichmentJSON},
	}
	g := New(provider, WithBackoff(0))

	e, err := g.Enrich(context.Background(), "Parlami della tua esperienza con i database.")
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if e.PrimaryTopic != "database" {
		t.Fatalf("primary topic = %q", e.PrimaryTopic)
	}
	if len(e.Subtopics) != 2 || e.Subtopics[0] != "relazionali" {
		t.Fatalf("subtopics = %v", e.Subtopics)
	}
	if len(e.Keywords) != 2 || e.Keywords[1][0] != "btree" {
		t.Fatalf("keywords = %v", e.Keywords)
	}

	req := provider.CompleteCalls[0].Req
	if req.ResponseFormat == nil || req.ResponseFormat.Name != "metadata" {
		t.Fatalf("response format = %+v, want metadata schema", req.ResponseFormat)
	}
}

func TestEnrich_RetriesAfterInvalidJSON(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "non sono JSON"},
			{Content: validEnrichmentJSON},
		},
	}
	g := New(provider, WithBackoff(0))

	if _, err := g.Enrich(context.Background(), "domanda"); err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(provider.CompleteCalls) != 2 {
		t.Fatalf("calls = %d, want 2", len(provider.CompleteCalls))
	}

	// The retry carries a corrective assistant turn on top of the original
	// conversation.
	second := provider.CompleteCalls[1].Req.Messages
	last := second[len(second)-1]
	if last.Role != "assistant" || !strings.Contains(last.Content, "Output non valido") {
		t.Fatalf("last retry message = %+v, want corrective assistant turn", last)
	}
}

func TestEnrich_BusinessRuleRetry(t *testing.T) {
	t.Parallel()

	// Schema-valid but only one subtopic: the business rules reject it and
	// the second, valid reply wins.
	tooFew := `{"primary_topic": "x", "subtopics": ["solo"], "keywords": [["a"]]}`
	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: tooFew},
			{Content: validEnrichmentJSON},
		},
	}
	g := New(provider, WithBackoff(0))

	e, err := g.Enrich(context.Background(), "domanda")
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(e.Subtopics) != 2 {
		t.Fatalf("subtopics = %v, want the second reply", e.Subtopics)
	}
	if len(provider.CompleteCalls) != 2 {
		t.Fatalf("calls = %d, want 2", len(provider.CompleteCalls))
	}
}

func TestEnrich_ExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "mai JSON"},
	}
	g := New(provider, WithBackoff(0), WithMaxRetries(2))

	_, err := g.Enrich(context.Background(), "domanda")
	if !errors.Is(err, ErrLLMOutputInvalid) {
		t.Fatalf("err = %v, want ErrLLMOutputInvalid", err)
	}
	if len(provider.CompleteCalls) != 2 {
		t.Fatalf("calls = %d, want the full budget of 2", len(provider.CompleteCalls))
	}
}

func TestEnrich_ToleratesCodeFences(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "Ecco il risultato:\n```json\n" + validEnrichmentJSON + "\n```",
		},
	}
	g := New(provider, WithBackoff(0))

	e, err := g.Enrich(context.Background(), "domanda")
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if e.PrimaryTopic != "database" {
		t.Fatalf("primary topic = %q", e.PrimaryTopic)
	}
}

func TestCheckEnrichment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		e       Enrichment
		wantErr bool
	}{
		{
			"valid",
			Enrichment{PrimaryTopic: "x", Subtopics: []string{"a", "b"}, Keywords: [][]string{{"k1"}, {"k2"}}},
			false,
		},
		{
			"too few subtopics",
			Enrichment{Subtopics: []string{"a"}, Keywords: [][]string{{"k"}}},
			true,
		},
		{
			"duplicate subtopic",
			Enrichment{Subtopics: []string{"a", "a"}, Keywords: [][]string{{"k1"}, {"k2"}}},
			true,
		},
		{
			"keyword lists not parallel",
			Enrichment{Subtopics: []string{"a", "b"}, Keywords: [][]string{{"k"}}},
			true,
		},
		{
			"keyword shared across lists",
			Enrichment{Subtopics: []string{"a", "b"}, Keywords: [][]string{{"k"}, {"k"}}},
			true,
		},
		{
			"too many keywords in one list",
			Enrichment{
				Subtopics: []string{"a", "b"},
				Keywords:  [][]string{{"1", "2", "3", "4", "5", "6", "7"}, {"k"}},
			},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := checkEnrichment(tt.e)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkEnrichment = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFollowUp_ReturnsGeneratedQuestion(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Come gestisci i rollback in produzione?"},
	}
	g := New(provider)

	got := g.FollowUp(context.Background(), "Parlami del deploy.", "Uso una pipeline CI.", "", []string{"rollback"})
	if got != "Come gestisci i rollback in produzione?" {
		t.Fatalf("follow-up = %q", got)
	}
	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("calls = %d, want 1", len(provider.CompleteCalls))
	}
}

func TestFollowUp_RetriesInvalidThenFallsBack(t *testing.T) {
	t.Parallel()

	// Neither candidate ends with '?', so after the single corrective retry
	// the deterministic fallback wins.
	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "Una frase senza punto interrogativo."},
			{Content: "Ancora niente domanda."},
		},
	}
	g := New(provider)

	got := g.FollowUp(context.Background(), "Parlami del deploy.", "Uso una pipeline CI.", "", []string{"rollback"})
	if got != FallbackFollowUp("rollback") {
		t.Fatalf("follow-up = %q, want fallback", got)
	}
	if len(provider.CompleteCalls) != 2 {
		t.Fatalf("calls = %d, want 2", len(provider.CompleteCalls))
	}
}

func TestFollowUp_ProviderErrorFallsBack(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{CompleteErr: errors.New("backend down")}
	g := New(provider)

	got := g.FollowUp(context.Background(), "Domanda.", "Risposta.", "", []string{"indici"})
	if got != FallbackFollowUp("indici") {
		t.Fatalf("follow-up = %q, want fallback", got)
	}
	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("calls = %d, want 1 before giving up", len(provider.CompleteCalls))
	}
}

func TestFollowUp_NoProviderFallsBack(t *testing.T) {
	t.Parallel()

	g := New(nil)
	got := g.FollowUp(context.Background(), "Domanda.", "Risposta.", "", nil)
	if !strings.Contains(got, "aspetto non approfondito") {
		t.Fatalf("follow-up = %q, want generic fallback target", got)
	}
}

func TestFollowUp_IncludesNotesTurn(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Quale indice useresti qui?"},
	}
	g := New(provider)

	g.FollowUp(context.Background(), "Domanda.", "Risposta.", "Il candidato lavora su Postgres.", []string{"indici"})

	var found bool
	for _, m := range provider.CompleteCalls[0].Req.Messages {
		if m.Role == "assistant" && strings.HasPrefix(m.Content, "NOTE: ") {
			found = true
		}
	}
	if !found {
		t.Fatal("interviewer notes should be passed as an assistant turn")
	}
}
