package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/kolloq/internal/archive"
	"github.com/MrWong99/kolloq/internal/interview"
	"github.com/MrWong99/kolloq/internal/question"
	"github.com/MrWong99/kolloq/pkg/provider/stt"
)

// fallbackTranscript stands in for the answer when every STT backend fails.
const fallbackTranscript = "(trascrizione non disponibile)"

type errorResponse struct {
	Error string `json:"error"`
}

// turnResponse is one utterance plus its synthesis side channel.
type turnResponse struct {
	interview.Turn
	SpeakURL string `json:"speak_url,omitempty"`
}

// handleQuestionsLoad accepts a script upload (multipart field "file") and
// replaces the current script. Enrichment starts in the background; the
// response does not wait for it.
func (s *Server) handleQuestionsLoad(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing upload field 'file'")
		return
	}
	defer file.Close()

	prompts, err := question.ReadPrompts(file, header.Filename)
	if err != nil {
		if errors.Is(err, question.ErrImportFormat) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("script import failed", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "script import failed")
		return
	}

	count := s.store.LoadScript(prompts)
	if count == 0 {
		writeError(w, http.StatusBadRequest, "script contains no questions")
		return
	}

	resp := map[string]any{"questions_loaded": count}
	if first, ok := s.store.At(0); ok {
		resp["first_question"] = first.Prompt
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// handleQuestionsStatus reports enrichment progress for the current script.
func (s *Server) handleQuestionsStatus(w http.ResponseWriter, r *http.Request) {
	st := s.store.Status()
	writeJSON(w, http.StatusOK, struct {
		question.Status
		CompletionPercent float64 `json:"completion_percent"`
		ElapsedSeconds    float64 `json:"elapsed_seconds"`
	}{
		Status:            st,
		CompletionPercent: st.CompletionPercent(),
		ElapsedSeconds:    st.ElapsedSeconds(),
	})
}

// handleInterviewStart allocates a fresh session over the current script.
func (s *Server) handleInterviewStart(w http.ResponseWriter, r *http.Request) {
	if s.store.Len() == 0 {
		writeError(w, http.StatusConflict, "no questions loaded")
		return
	}
	id, _ := s.registry.Start(r.Context())
	writeJSON(w, http.StatusCreated, map[string]string{"interview_id": id})
}

// handleInterviewNext returns the next utterance for the session: a scripted
// question, a cached follow-up, or the completion message.
func (s *Server) handleInterviewNext(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}

	turn, err := ctrl.CurrentQuestion(r.Context())
	if err != nil {
		if errors.Is(err, interview.ErrEmptyScript) {
			writeError(w, http.StatusConflict, "no questions loaded")
			return
		}
		s.logger.Error("next question failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not produce next question")
		return
	}

	writeJSON(w, http.StatusOK, turnResponse{Turn: turn, SpeakURL: s.speakURL(turn.Text)})
}

type answerRequest struct {
	Text string `json:"text"`
}

// handleInterviewAnswer evaluates one textual answer against the current
// question.
func (s *Server) handleInterviewAnswer(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be JSON with a 'text' field")
		return
	}

	s.submitAnswer(w, r, ctrl, req.Text, "")
}

// handleInterviewTranscribe accepts an audio answer (multipart field
// "audio"), transcribes it and evaluates the transcript like a textual
// answer.
func (s *Server) handleInterviewTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.stt == nil {
		writeError(w, http.StatusNotImplemented, "speech-to-text is not configured")
		return
	}
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed multipart upload")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing upload field 'audio'")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read audio upload")
		return
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if format == "" {
		format = "wav"
	}

	start := time.Now()
	text, err := s.stt.Transcribe(r.Context(), audio, format, stt.TranscribeConfig{Language: "it"})
	if s.metrics != nil {
		s.metrics.STTDuration.Record(r.Context(), time.Since(start).Seconds())
	}
	if err != nil {
		// The interview keeps going on a dead STT backend; the placeholder
		// covers nothing, so the controller reacts as to an evasive answer.
		s.logger.Warn("transcription failed, using placeholder transcript", "error", err)
		text = fallbackTranscript
	}

	s.submitAnswer(w, r, ctrl, text, text)
}

// submitAnswer runs the shared answer evaluation path. transcript, when
// non-empty, is echoed back so audio callers see what was understood.
func (s *Server) submitAnswer(w http.ResponseWriter, r *http.Request, ctrl *interview.Controller, text, transcript string) {
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "empty answer")
		return
	}

	res, err := ctrl.SubmitAnswer(r.Context(), r.URL.Query().Get("qid"), text)
	if err != nil {
		switch {
		case errors.Is(err, interview.ErrCompleted):
			writeError(w, http.StatusConflict, "interview already completed")
		case errors.Is(err, interview.ErrQuestionMismatch):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, interview.ErrEmptyScript):
			writeError(w, http.StatusConflict, "no questions loaded")
		default:
			s.logger.Error("answer evaluation failed", "error", err)
			writeError(w, http.StatusInternalServerError, "answer evaluation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, struct {
		interview.Result
		Transcript string `json:"transcript,omitempty"`
	}{Result: res, Transcript: transcript})
}

// handleInterviewEnd finishes the session and returns the final score. When
// an archive is configured the interview is persisted before responding;
// archive failures are logged, never surfaced.
func (s *Server) handleInterviewEnd(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}

	score := ctrl.End(r.Context())
	if s.archive != nil {
		if err := s.archive.SaveInterview(r.Context(), s.buildArchiveRecord(ctrl, score)); err != nil {
			s.logger.Warn("interview archive failed", "session_id", ctrl.ID(), "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"interview_id": ctrl.ID(),
		"score":        score,
	})
}

// buildArchiveRecord joins per-question transcripts in script order.
func (s *Server) buildArchiveRecord(ctrl *interview.Controller, score int) archive.Interview {
	answers := ctrl.Answers()
	coverages := ctrl.Coverages()

	iv := archive.Interview{
		SessionID:  ctrl.ID(),
		Score:      score,
		Notes:      ctrl.Notes(),
		StartedAt:  ctrl.StartedAt(),
		FinishedAt: time.Now(),
	}
	for _, q := range s.store.All() {
		transcripts, ok := answers[q.ID]
		if !ok {
			continue
		}
		iv.Answers = append(iv.Answers, archive.Answer{
			QuestionID:      q.ID,
			QuestionPrompt:  q.Prompt,
			Transcript:      strings.Join(transcripts, "\n"),
			CoveragePercent: coverages[q.ID],
		})
	}
	return iv
}

// handleSessions lists the live sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Info())
}

// handleSpeak synthesises the given text with the configured voice. The
// response body is raw audio.
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if s.tts == nil {
		writeError(w, http.StatusNotImplemented, "text-to-speech is not configured")
		return
	}
	text := r.URL.Query().Get("text")
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "missing 'text' query parameter")
		return
	}

	voice := s.voice
	if v := r.URL.Query().Get("voice_id"); v != "" {
		voice.VoiceID = v
	}

	start := time.Now()
	audio, err := s.tts.Synthesize(r.Context(), text, voice)
	if s.metrics != nil {
		s.metrics.TTSDuration.Record(r.Context(), time.Since(start).Seconds())
	}
	if err != nil {
		s.logger.Error("synthesis failed", "error", err)
		writeError(w, http.StatusBadGateway, "synthesis failed")
		return
	}

	w.Header().Set("Content-Type", s.tts.ContentType(voice))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// handleArchiveSearch runs a semantic search over archived answers.
func (s *Server) handleArchiveSearch(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotImplemented, "archive is not configured")
		return
	}
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "missing 'q' query parameter")
		return
	}
	topK := 10
	if k := r.URL.Query().Get("k"); k != "" {
		n, err := strconv.Atoi(k)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "'k' must be a positive integer")
			return
		}
		topK = n
	}

	results, err := s.archive.SearchAnswers(r.Context(), query, topK)
	if err != nil {
		s.logger.Error("archive search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "archive search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// session resolves the sid query parameter to a live controller, writing the
// error response itself when the session cannot be resolved. Sessions are
// only created by /interview/start; an unknown sid is a client error.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*interview.Controller, bool) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		writeError(w, http.StatusBadRequest, "missing 'sid' query parameter")
		return nil, false
	}
	if !s.registry.Has(sid) {
		writeError(w, http.StatusNotFound, "unknown session: "+sid)
		return nil, false
	}
	return s.registry.Get(r.Context(), sid), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
