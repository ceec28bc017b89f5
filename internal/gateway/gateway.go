// Package gateway wraps the LLM provider with the three calls the interview
// engine needs: schema-constrained JSON chat (question enrichment), plain
// text chat, and follow-up question generation.
//
// ChatJSON enforces correctness in two layers. The JSON Schema is sent to the
// backend for constrained decoding and re-validated locally, then business
// rules are applied to the parsed object. Violations are fed back to the
// model as an assistant turn and the call is retried a bounded number of
// times with a fixed backoff.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/MrWong99/kolloq/pkg/provider/llm"
)

// ErrLLMOutputInvalid is returned when the model fails to produce output
// passing schema and business-rule validation within the retry budget.
var ErrLLMOutputInvalid = errors.New("gateway: llm output invalid")

// ErrNoProvider is returned when no LLM backend is configured. Callers
// degrade: enrichment leaves questions textual, follow-ups fall back to the
// deterministic template.
var ErrNoProvider = errors.New("gateway: no llm provider configured")

// Defaults applied when the corresponding option is not given.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 800
	DefaultMaxRetries  = 3

	// retryBackoff separates ChatJSON attempts.
	retryBackoff = 500 * time.Millisecond
)

// Gateway issues validated LLM calls. Safe for concurrent use.
type Gateway struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
	maxRetries  int
	backoff     time.Duration
	logger      *slog.Logger
}

// Option is a functional option for Gateway.
type Option func(*Gateway)

// WithTemperature sets the sampling temperature for enrichment calls.
func WithTemperature(t float64) Option {
	return func(g *Gateway) { g.temperature = t }
}

// WithMaxTokens caps completion tokens for enrichment calls.
func WithMaxTokens(n int) Option {
	return func(g *Gateway) { g.maxTokens = n }
}

// WithMaxRetries sets the ChatJSON attempt budget.
func WithMaxRetries(n int) Option {
	return func(g *Gateway) { g.maxRetries = n }
}

// WithBackoff overrides the delay between ChatJSON attempts.
func WithBackoff(d time.Duration) Option {
	return func(g *Gateway) { g.backoff = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// New constructs a Gateway over the given provider.
func New(provider llm.Provider, opts ...Option) *Gateway {
	g := &Gateway{
		provider:    provider,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		maxRetries:  DefaultMaxRetries,
		backoff:     retryBackoff,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	g.logger = g.logger.With("component", "gateway")
	return g
}

// ChatText sends messages and returns the raw completion text.
func (g *Gateway) ChatText(ctx context.Context, msgs []llm.Message, temperature float64, maxTokens int) (string, error) {
	if g.provider == nil {
		return "", ErrNoProvider
	}
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gateway: chat: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// ChatJSON sends messages with the given schema attached, parses the reply
// into out, and validates it against the schema and the rules callback.
// rules may be nil. On each failed attempt an assistant turn naming the
// violation is appended and the call retried, up to the configured budget.
func (g *Gateway) ChatJSON(ctx context.Context, msgs []llm.Message, name string, schema *jsonschema.Schema, wire map[string]any, out any, rules func() error) error {
	if g.provider == nil {
		return ErrNoProvider
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("gateway: resolve schema %q: %w", name, err)
	}

	conversation := make([]llm.Message, len(msgs))
	copy(conversation, msgs)

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(g.backoff):
			case <-ctx.Done():
				return fmt.Errorf("gateway: chat json: %w", ctx.Err())
			}
		}

		lastErr = g.chatJSONOnce(ctx, conversation, name, resolved, wire, out, rules)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ctx.Err()) && ctx.Err() != nil {
			return lastErr
		}

		g.logger.Warn("chat json attempt failed",
			"schema", name, "attempt", attempt, "max", g.maxRetries, "error", lastErr)
		conversation = append(conversation, llm.Message{
			Role:    "assistant",
			Content: fmt.Sprintf("Output non valido: %v. Riformatta seguendo ESATTAMENTE lo schema.", lastErr),
		})
	}

	return fmt.Errorf("%w: %s after %d attempts: %v", ErrLLMOutputInvalid, name, g.maxRetries, lastErr)
}

// chatJSONOnce performs a single constrained completion plus validation pass.
func (g *Gateway) chatJSONOnce(ctx context.Context, msgs []llm.Message, name string, resolved *jsonschema.Resolved, wire map[string]any, out any, rules func() error) error {
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    msgs,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		ResponseFormat: &llm.SchemaFormat{
			Name:   name,
			Schema: wire,
		},
	})
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}

	raw := extractJSONObject(resp.Content)

	var generic any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	if err := resolved.Validate(generic); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if rules != nil {
		if err := rules(); err != nil {
			return err
		}
	}
	return nil
}

// extractJSONObject returns the outermost {...} span of s, tolerating models
// that wrap the object in prose or code fences. Falls back to s unchanged.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
