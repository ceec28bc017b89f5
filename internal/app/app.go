// Package app wires all kolloq subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and drives the enrichment worker until the
// context is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithDetector,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kolloq/internal/archive"
	"github.com/MrWong99/kolloq/internal/config"
	"github.com/MrWong99/kolloq/internal/detect"
	"github.com/MrWong99/kolloq/internal/gateway"
	"github.com/MrWong99/kolloq/internal/health"
	"github.com/MrWong99/kolloq/internal/interview"
	"github.com/MrWong99/kolloq/internal/nlp"
	"github.com/MrWong99/kolloq/internal/observe"
	"github.com/MrWong99/kolloq/internal/question"
	"github.com/MrWong99/kolloq/internal/reflection"
	"github.com/MrWong99/kolloq/internal/resilience"
	"github.com/MrWong99/kolloq/internal/server"
	"github.com/MrWong99/kolloq/pkg/provider/embeddings"
	"github.com/MrWong99/kolloq/pkg/provider/llm"
	"github.com/MrWong99/kolloq/pkg/provider/stt"
	"github.com/MrWong99/kolloq/pkg/provider/tts"
	"github.com/MrWong99/kolloq/pkg/provider/tts/beep"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
}

// shutdownTimeout bounds the HTTP server drain during Run teardown.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar
	logger    *slog.Logger

	llm      llm.Provider
	nlpSvc   *nlp.Service
	store    *question.Store
	enricher *question.Enricher
	gw       *gateway.Gateway
	detector detect.Detector
	cascade  *detect.Cascade
	registry *interview.Registry
	archive  *archive.Store
	httpSrv  *http.Server

	// coverageThreshold is read by every new session; config reloads swap it.
	coverageThreshold atomic.Value

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDetector injects a coverage detector instead of building one from
// config.
func WithDetector(d detect.Detector) Option {
	return func(a *App) { a.detector = d }
}

// WithMetrics injects a metrics set instead of the process-global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel attaches the mutable log level var so config reloads can
// retune it.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go, populated via the config registry. Initialisation is
// synchronous; the enrichment worker and the HTTP listener start in Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.coverageThreshold.Store(cfg.Interview.CoverageThresholdPercent)

	a.llm = a.llmChain()
	a.gw = gateway.New(a.llm,
		gateway.WithTemperature(cfg.LLM.Temperature),
		gateway.WithMaxTokens(cfg.LLM.MaxTokens),
		gateway.WithMaxRetries(cfg.LLM.MaxRetries),
	)

	a.initScript()
	a.initDetector()
	a.initSessions()

	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}
	a.initHTTP()

	return a, nil
}

// initScript builds the question store and its enrichment worker.
func (a *App) initScript() {
	a.store = question.NewStore(a.logger)
	svc := a.nlpService()
	builder := detect.NewMetaBuilder(svc, a.logger)
	a.enricher = question.NewEnricher(a.store, a.gw, builder, a.cfg.Server.DumpDir, a.metrics, a.logger)
}

// initDetector builds the configured coverage detector unless one was
// injected.
func (a *App) initDetector() {
	if a.detector != nil {
		return
	}
	if a.cfg.Detection.Engine == config.EngineArbiter {
		a.detector = detect.NewArbiter(a.llm, a.logger)
		return
	}

	cascadeOpts := []detect.CascadeOption{
		detect.WithThresholds(detect.Thresholds{
			Fuzzy: a.cfg.Detection.FuzzyThreshold,
			Cos:   a.cfg.Detection.CosineThreshold,
		}),
		detect.WithLogger(a.logger),
	}
	if a.cfg.Detection.Adaptive {
		cascadeOpts = append(cascadeOpts, detect.WithAdaptiveThresholds())
	}
	a.cascade = detect.NewCascade(a.nlpService(), cascadeOpts...)
	a.detector = a.cascade
}

// initSessions builds the session registry. Each session gets its own
// reflector so interviewer notes never leak across candidates.
func (a *App) initSessions() {
	a.registry = interview.NewRegistry(func(id string) *interview.Controller {
		threshold, _ := a.coverageThreshold.Load().(float64)
		return interview.NewController(id, a.store, a.detector, a.gw,
			interview.WithCoverageThreshold(threshold),
			interview.WithReflector(reflection.New(a.gw, a.logger)),
			interview.WithMetrics(a.metrics),
			interview.WithLogger(a.logger),
		)
	}, a.metrics, a.logger)
}

// initArchive connects the optional PostgreSQL archive.
func (a *App) initArchive(ctx context.Context) error {
	dsn := a.cfg.Archive.PostgresDSN
	if dsn == "" {
		return nil
	}

	dims := a.cfg.Archive.EmbeddingDimensions
	if dims == 0 {
		dims = 1536 // matches OpenAI text-embedding-3-small
	}

	store, err := archive.New(ctx, dsn, dims, a.providers.Embeddings, a.logger)
	if err != nil {
		return err
	}
	a.archive = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initHTTP assembles the router and the http.Server.
func (a *App) initHTTP() {
	hc := health.New()
	if a.archive != nil {
		hc.Add("archive", a.archive.Ping)
	}

	srvOpts := []server.Option{
		server.WithHealth(hc),
		server.WithMetrics(a.metrics),
		server.WithLogger(a.logger),
		server.WithTTS(a.ttsChain(), tts.VoiceProfile{
			VoiceID: a.cfg.Voice.VoiceID,
			Speed:   a.cfg.Voice.SpeedFactor,
			Format:  a.cfg.Voice.Format,
		}),
	}
	if a.providers.STT != nil {
		srvOpts = append(srvOpts, server.WithSTT(a.sttChain()))
	}
	if a.archive != nil {
		srvOpts = append(srvOpts, server.WithArchive(a.archive))
	}

	srv := server.New(a.store, a.registry, srvOpts...)
	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// llmChain wraps the configured LLM backend in a circuit breaker, so a dead
// backend fails fast instead of stalling every enrichment and follow-up call.
func (a *App) llmChain() llm.Provider {
	if a.providers.LLM == nil {
		return nil
	}
	return resilience.NewLLMFallback(a.providers.LLM, a.cfg.Providers.LLM.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "llm"},
	})
}

// sttChain wraps the configured STT backend in a circuit breaker. The final
// degradation (a fixed transcript when every backend fails) lives in the
// transcribe handler.
func (a *App) sttChain() stt.Provider {
	return resilience.NewSTTFallback(a.providers.STT, a.cfg.Providers.STT.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "stt"},
	})
}

// ttsChain wraps the configured TTS backend with the beep synthesiser as a
// terminal fallback, so every utterance produces some audio. With no backend
// configured the beep is all there is.
func (a *App) ttsChain() tts.Provider {
	if a.providers.TTS == nil {
		return beep.New()
	}
	chain := resilience.NewTTSFallback(a.providers.TTS, a.cfg.Providers.TTS.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "tts"},
	})
	chain.AddFallback("beep", beep.New())
	return chain
}

// nlpService builds the shared text analysis service on first use. A nil
// embeddings provider disables the cosine tier but nothing else.
func (a *App) nlpService() *nlp.Service {
	if a.nlpSvc == nil {
		a.nlpSvc = nlp.NewService(a.providers.Embeddings, a.logger)
	}
	return a.nlpSvc
}

// ApplyConfigChange reacts to a hot reload: detection thresholds and the log
// level apply immediately, the coverage threshold applies to new sessions.
// Provider changes require a restart and are deliberately ignored.
func (a *App) ApplyConfigChange(old, new *config.Config) {
	diff := config.Diff(old, new)
	if !diff.Any() {
		return
	}

	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(diff.NewLogLevel))
		a.logger.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.DetectionChanged && a.cascade != nil {
		a.cascade.SetThresholds(detect.Thresholds{
			Fuzzy: diff.NewDetection.FuzzyThreshold,
			Cos:   diff.NewDetection.CosineThreshold,
		})
		a.logger.Info("detection thresholds changed",
			"fuzzy", diff.NewDetection.FuzzyThreshold, "cosine", diff.NewDetection.CosineThreshold)
	}
	if diff.CoverageThresholdChanged {
		a.coverageThreshold.Store(diff.NewCoverageThreshold)
		a.logger.Info("coverage threshold changed", "percent", diff.NewCoverageThreshold)
	}
	if diff.VoiceChanged {
		a.logger.Info("voice change staged; applies after restart", "voice_id", diff.NewVoice.VoiceID)
	}
}

// Run serves HTTP and drives the enrichment worker until ctx is cancelled,
// then drains the server.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.enricher.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		a.logger.Info("http server listening", "addr", a.httpSrv.Addr)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpSrv.Shutdown(drainCtx)
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, the remaining closers
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "error", err)
			}
		}
		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}

// slogLevel maps a config log level to its slog value.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
