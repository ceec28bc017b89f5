// Package server exposes the interview engine over HTTP: script upload and
// enrichment status, the per-session interview loop, speech synthesis for
// every delivered utterance, and the operational endpoints.
package server

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/kolloq/internal/archive"
	"github.com/MrWong99/kolloq/internal/health"
	"github.com/MrWong99/kolloq/internal/interview"
	"github.com/MrWong99/kolloq/internal/observe"
	"github.com/MrWong99/kolloq/internal/question"
	"github.com/MrWong99/kolloq/pkg/provider/stt"
	"github.com/MrWong99/kolloq/pkg/provider/tts"
)

// maxUploadBytes bounds script and audio uploads.
const maxUploadBytes = 20 << 20

// Server holds the HTTP surface's collaborators. STT, TTS and the archive are
// optional; their endpoints degrade to 501 when absent.
type Server struct {
	store    *question.Store
	registry *interview.Registry
	archive  *archive.Store
	stt      stt.Provider
	tts      tts.Provider
	voice    tts.VoiceProfile
	health   *health.Handler
	metrics  *observe.Metrics
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithArchive enables interview persistence and answer search.
func WithArchive(a *archive.Store) Option {
	return func(s *Server) { s.archive = a }
}

// WithSTT enables the audio answer endpoint.
func WithSTT(p stt.Provider) Option {
	return func(s *Server) { s.stt = p }
}

// WithTTS enables speech synthesis with the given default voice.
func WithTTS(p tts.Provider, voice tts.VoiceProfile) Option {
	return func(s *Server) {
		s.tts = p
		s.voice = voice
	}
}

// WithHealth sets the liveness/readiness handler.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics enables request instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds a Server around the script store and the session registry.
func New(store *question.Store, registry *interview.Registry, opts ...Option) *Server {
	s := &Server{
		store:    store,
		registry: registry,
		health:   health.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "http")
	return s
}

// Router assembles the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
	}

	r.Post("/questions/load", s.handleQuestionsLoad)
	r.Get("/questions/status", s.handleQuestionsStatus)

	r.Post("/interview/start", s.handleInterviewStart)
	r.Get("/interview/next", s.handleInterviewNext)
	r.Post("/interview/answer", s.handleInterviewAnswer)
	r.Post("/interview/transcribe", s.handleInterviewTranscribe)
	r.Post("/interview/end", s.handleInterviewEnd)
	r.Get("/interview/sessions", s.handleSessions)

	r.Get("/tts/speak", s.handleSpeak)
	r.Get("/archive/search", s.handleArchiveSearch)

	r.Get("/healthz", s.health.Healthz)
	r.Get("/readyz", s.health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// speakURL returns the synthesis side-channel URL for an utterance, or empty
// when no TTS backend is configured.
func (s *Server) speakURL(text string) string {
	if s.tts == nil || text == "" {
		return ""
	}
	return "/tts/speak?text=" + url.QueryEscape(text)
}
