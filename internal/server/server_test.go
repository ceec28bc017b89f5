package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/kolloq/internal/detect"
	"github.com/MrWong99/kolloq/internal/gateway"
	"github.com/MrWong99/kolloq/internal/interview"
	"github.com/MrWong99/kolloq/internal/question"
	llmmock "github.com/MrWong99/kolloq/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/kolloq/pkg/provider/stt/mock"
	"github.com/MrWong99/kolloq/pkg/provider/tts"
	ttsmock "github.com/MrWong99/kolloq/pkg/provider/tts/mock"
)

// stubDetector covers every remaining topic, or the scripted per-call results
// when set.
type stubDetector struct {
	results []detect.Result
	calls   int
}

func (d *stubDetector) Detect(ctx context.Context, utterance string, topics []detect.Topic, focus string) detect.Result {
	defer func() { d.calls++ }()
	if d.calls < len(d.results) {
		return d.results[d.calls]
	}
	covered := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		covered[t.Name] = struct{}{}
	}
	return detect.Result{Covered: covered, Coverage: 1}
}

// newTestStore loads two enriched questions so detection runs without the
// background worker.
func newTestStore(t *testing.T) *question.Store {
	t.Helper()
	store := question.NewStore(nil)
	store.LoadScript([]string{
		"Parlami della tua esperienza con i database.",
		"Come gestisci il deploy in produzione?",
	})

	gen := store.Generation()
	subtopics := [][]string{
		{"relazionali", "indici"},
		{"pipeline", "rollback"},
	}
	for i, subs := range subtopics {
		keywords := make([][]string, len(subs))
		lemmaSets := make([]map[string]struct{}, len(subs))
		fuzzyNorms := make([]string, len(subs))
		vectors := make([][]float32, len(subs))
		for j, name := range subs {
			keywords[j] = []string{name}
			lemmaSets[j] = map[string]struct{}{name: {}}
			fuzzyNorms[j] = name
			vectors[j] = make([]float32, 4)
		}
		if ok := store.SetMetadata(gen, i, "tema", subs, keywords, lemmaSets, fuzzyNorms, vectors, nil); !ok {
			t.Fatalf("SetMetadata(%d) rejected", i)
		}
	}
	return store
}

func newTestServer(t *testing.T, det detect.Detector, opts ...Option) (*httptest.Server, *question.Store) {
	t.Helper()
	store := newTestStore(t)
	gw := gateway.New(&llmmock.Provider{CompleteErr: errors.New("llm offline")})
	registry := interview.NewRegistry(func(id string) *interview.Controller {
		return interview.NewController(id, store, det, gw)
	}, nil, nil)

	srv := New(store, registry, opts...)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func decodeJSON(t *testing.T, body io.Reader, out any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func startSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/interview/start", "application/json", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d, want 201", resp.StatusCode)
	}
	var out map[string]string
	decodeJSON(t, resp.Body, &out)
	if out["interview_id"] == "" {
		t.Fatal("start returned no interview_id")
	}
	return out["interview_id"]
}

func nextTurn(t *testing.T, ts *httptest.Server, sid string) turnResponse {
	t.Helper()
	resp, err := http.Get(ts.URL + "/interview/next?sid=" + sid)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("next status = %d, want 200", resp.StatusCode)
	}
	var turn turnResponse
	decodeJSON(t, resp.Body, &turn)
	return turn
}

func postAnswer(t *testing.T, ts *httptest.Server, sid, qid, text string) (*http.Response, interview.Result) {
	t.Helper()
	body, _ := json.Marshal(answerRequest{Text: text})
	resp, err := http.Post(ts.URL+"/interview/answer?sid="+sid+"&qid="+qid,
		"application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var res interview.Result
	if resp.StatusCode == http.StatusOK {
		decodeJSON(t, resp.Body, &res)
	}
	return resp, res
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestQuestionsLoad_JSONScript(t *testing.T) {
	ts, store := newTestServer(t, &stubDetector{})

	script, _ := json.Marshal([]string{"Prima domanda?", "Seconda domanda?", "Terza domanda?"})
	body, contentType := multipartBody(t, "file", "script.json", script)

	resp, err := http.Post(ts.URL+"/questions/load", contentType, body)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var out struct {
		Loaded        int    `json:"questions_loaded"`
		FirstQuestion string `json:"first_question"`
	}
	decodeJSON(t, resp.Body, &out)
	if out.Loaded != 3 {
		t.Fatalf("questions_loaded = %d, want 3", out.Loaded)
	}
	if out.FirstQuestion != "Prima domanda?" {
		t.Fatalf("first_question = %q, want the first admitted prompt", out.FirstQuestion)
	}
	if store.Len() != 3 {
		t.Fatalf("store has %d questions, want 3", store.Len())
	}
}

func TestQuestionsLoad_RejectsOversizedUpload(t *testing.T) {
	ts, _ := newTestServer(t, &stubDetector{})

	script := bytes.Repeat([]byte("a"), maxUploadBytes+1)
	body, contentType := multipartBody(t, "file", "script.csv", script)

	resp, err := http.Post(ts.URL+"/questions/load", contentType, body)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
}

func TestQuestionsLoad_UnsupportedFormat(t *testing.T) {
	ts, _ := newTestServer(t, &stubDetector{})

	body, contentType := multipartBody(t, "file", "script.pdf", []byte("%PDF-"))
	resp, err := http.Post(ts.URL+"/questions/load", contentType, body)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestQuestionsStatus(t *testing.T) {
	ts, _ := newTestServer(t, &stubDetector{})

	resp, err := http.Get(ts.URL + "/questions/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Total             int     `json:"total_questions"`
		Processed         int     `json:"processed_questions"`
		InProgress        bool    `json:"in_progress"`
		CompletionPercent float64 `json:"completion_percent"`
	}
	decodeJSON(t, resp.Body, &out)
	if out.Total != 2 || out.Processed != 2 || out.InProgress {
		t.Fatalf("unexpected status: %+v", out)
	}
	if out.CompletionPercent != 100 {
		t.Fatalf("completion = %v, want 100", out.CompletionPercent)
	}
}

func TestInterviewFlow_FullCoverageAdvances(t *testing.T) {
	ts, _ := newTestServer(t, &stubDetector{})
	sid := startSession(t, ts)

	first := nextTurn(t, ts, sid)
	if first.Type != interview.TurnMain {
		t.Fatalf("first turn type = %q, want main", first.Type)
	}
	if !strings.Contains(first.Text, "database") {
		t.Fatalf("first turn text = %q, want the first scripted question", first.Text)
	}

	resp, res := postAnswer(t, ts, sid, first.QuestionID, "Uso indici e database relazionali ogni giorno.")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer status = %d, want 200", resp.StatusCode)
	}
	if res.NeedsFollowUp {
		t.Fatal("full coverage should not need a follow-up")
	}
	if res.CoveragePercent != 100 {
		t.Fatalf("coverage = %v, want 100", res.CoveragePercent)
	}

	second := nextTurn(t, ts, sid)
	if second.Type != interview.TurnMain || !strings.Contains(second.Text, "deploy") {
		t.Fatalf("second turn = %+v, want the deploy question", second)
	}

	if resp, _ := postAnswer(t, ts, sid, second.QuestionID, "Pipeline automatiche con rollback immediato."); resp.StatusCode != http.StatusOK {
		t.Fatalf("second answer status = %d", resp.StatusCode)
	}

	done := nextTurn(t, ts, sid)
	if done.Type != interview.TurnCompletion {
		t.Fatalf("final turn type = %q, want completion", done.Type)
	}
}

func TestInterviewFlow_PartialCoverageFollowsUp(t *testing.T) {
	det := &stubDetector{results: []detect.Result{
		{Covered: map[string]struct{}{"relazionali": {}}, Coverage: 0.5},
	}}
	ts, _ := newTestServer(t, det)
	sid := startSession(t, ts)

	first := nextTurn(t, ts, sid)
	resp, res := postAnswer(t, ts, sid, first.QuestionID, "Uso solo database relazionali.")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer status = %d", resp.StatusCode)
	}
	if !res.NeedsFollowUp {
		t.Fatal("half coverage should trigger a follow-up")
	}
	if len(res.Missing) != 1 || res.Missing[0] != "indici" {
		t.Fatalf("missing = %v, want [indici]", res.Missing)
	}

	probe := nextTurn(t, ts, sid)
	if probe.Type != interview.TurnFollowUp {
		t.Fatalf("turn type = %q, want follow_up", probe.Type)
	}
	if probe.QuestionID != first.QuestionID {
		t.Fatalf("follow-up qid = %q, want %q", probe.QuestionID, first.QuestionID)
	}
	// LLM is offline in this test; the deterministic fallback must name the
	// missing subtopic.
	if !strings.Contains(probe.Text, "indici") {
		t.Fatalf("follow-up text = %q, want it to mention 'indici'", probe.Text)
	}
}

func TestInterviewEnd_ReturnsScore(t *testing.T) {
	ts, _ := newTestServer(t, &stubDetector{})
	sid := startSession(t, ts)

	first := nextTurn(t, ts, sid)
	postAnswer(t, ts, sid, first.QuestionID, "Risposta completa su tutto.")
	second := nextTurn(t, ts, sid)
	postAnswer(t, ts, sid, second.QuestionID, "Altra risposta completa.")

	resp, err := http.Post(ts.URL+"/interview/end?sid="+sid, "application/json", nil)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Score int `json:"score"`
	}
	decodeJSON(t, resp.Body, &out)
	// Two answers at 100% coverage clamp to the score ceiling.
	if out.Score != 95 {
		t.Fatalf("score = %d, want 95", out.Score)
	}
}

func TestInterview_UnknownSession(t *testing.T) {
	ts, _ := newTestServer(t, &stubDetector{})

	resp, err := http.Get(ts.URL + "/interview/next?sid=no-such-session")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestInterview_QuestionMismatch(t *testing.T) {
	ts, _ := newTestServer(t, &stubDetector{})
	sid := startSession(t, ts)
	nextTurn(t, ts, sid)

	resp, _ := postAnswer(t, ts, sid, "wrong-question-id", "Una risposta qualunque.")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestTranscribe_SubmitsTranscript(t *testing.T) {
	sttProv := &sttmock.Provider{Text: "Uso indici e database relazionali."}
	ts, _ := newTestServer(t, &stubDetector{}, WithSTT(sttProv))
	sid := startSession(t, ts)
	nextTurn(t, ts, sid)

	body, contentType := multipartBody(t, "audio", "answer.wav", []byte("RIFFfake"))
	resp, err := http.Post(ts.URL+"/interview/transcribe?sid="+sid, contentType, body)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Transcript      string  `json:"transcript"`
		CoveragePercent float64 `json:"coverage_percent"`
	}
	decodeJSON(t, resp.Body, &out)
	if out.Transcript != sttProv.Text {
		t.Fatalf("transcript = %q, want %q", out.Transcript, sttProv.Text)
	}
	if out.CoveragePercent != 100 {
		t.Fatalf("coverage = %v, want 100", out.CoveragePercent)
	}
	if len(sttProv.TranscribeCalls) != 1 {
		t.Fatalf("stt called %d times, want 1", len(sttProv.TranscribeCalls))
	}
	if got := sttProv.TranscribeCalls[0].Format; got != "wav" {
		t.Fatalf("format = %q, want wav", got)
	}
}

func TestTranscribe_DegradesOnSTTFailure(t *testing.T) {
	sttProv := &sttmock.Provider{Err: errors.New("backend down")}
	det := &stubDetector{results: []detect.Result{{Covered: map[string]struct{}{}}}}
	ts, _ := newTestServer(t, det, WithSTT(sttProv))
	sid := startSession(t, ts)
	nextTurn(t, ts, sid)

	body, contentType := multipartBody(t, "audio", "answer.wav", []byte("RIFFfake"))
	resp, err := http.Post(ts.URL+"/interview/transcribe?sid="+sid, contentType, body)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	defer resp.Body.Close()

	// The interview keeps going on a placeholder transcript.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		Transcript    string `json:"transcript"`
		NeedsFollowUp bool   `json:"needs_followup"`
	}
	decodeJSON(t, resp.Body, &out)
	if out.Transcript != fallbackTranscript {
		t.Fatalf("transcript = %q, want the placeholder", out.Transcript)
	}
	if !out.NeedsFollowUp {
		t.Fatal("a placeholder transcript covers nothing and should trigger a follow-up")
	}
}

func TestSpeak_SynthesisesText(t *testing.T) {
	ttsProv := &ttsmock.Provider{Audio: []byte{1, 2, 3}, MIMEType: "audio/mpeg"}
	ts, _ := newTestServer(t, &stubDetector{}, WithTTS(ttsProv, tts.VoiceProfile{VoiceID: "alloy"}))

	resp, err := http.Get(ts.URL + "/tts/speak?text=ciao")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("content type = %q, want audio/mpeg", ct)
	}
	audio, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(audio, []byte{1, 2, 3}) {
		t.Fatalf("audio = %v", audio)
	}
}

func TestSpeak_NotConfigured(t *testing.T) {
	ts, _ := newTestServer(t, &stubDetector{})

	resp, err := http.Get(ts.URL + "/tts/speak?text=ciao")
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", resp.StatusCode)
	}
}

func TestNext_IncludesSpeakURL(t *testing.T) {
	ttsProv := &ttsmock.Provider{Audio: []byte{1}}
	ts, _ := newTestServer(t, &stubDetector{}, WithTTS(ttsProv, tts.VoiceProfile{}))
	sid := startSession(t, ts)

	turn := nextTurn(t, ts, sid)
	if !strings.HasPrefix(turn.SpeakURL, "/tts/speak?text=") {
		t.Fatalf("speak_url = %q, want a /tts/speak link", turn.SpeakURL)
	}
}

func TestSessions_ListsLive(t *testing.T) {
	ts, _ := newTestServer(t, &stubDetector{})
	sid := startSession(t, ts)

	resp, err := http.Get(ts.URL + "/interview/sessions")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	defer resp.Body.Close()

	var info interview.Info
	decodeJSON(t, resp.Body, &info)
	if info.ActiveSessions != 1 || len(info.IDs) != 1 || info.IDs[0] != sid {
		t.Fatalf("info = %+v, want the one started session", info)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, &stubDetector{})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
