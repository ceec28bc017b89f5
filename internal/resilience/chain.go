package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every backend in a [Chain] failed or was
// skipped because its circuit breaker is open.
var ErrExhausted = errors.New("resilience: every backend failed")

// FallbackConfig is the shared circuit-breaker tuning applied to each backend
// registered in a [Chain]. The breaker name is overwritten per backend.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// backend pairs one provider instance with its own breaker, so a flapping
// primary cannot poison the health accounting of its fallbacks.
type backend[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// Chain orders a primary backend and its fallbacks. Calls go to the first
// backend whose breaker admits them; a failure moves on to the next. The
// provider wrappers in this package ([LLMFallback], [STTFallback],
// [TTSFallback]) build on Chain with their concrete provider interfaces.
//
// Chain is safe for concurrent use once assembled; Add must not race with
// Do or [DoFirst].
type Chain[T any] struct {
	backends []backend[T]
	cfg      FallbackConfig
}

// NewChain builds a chain with primary as its only backend. Fallbacks are
// appended with [Chain.Add].
func NewChain[T any](primary T, name string, cfg FallbackConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(name, primary)
	return c
}

// Add appends a fallback backend. Backends are tried in insertion order.
func (c *Chain[T]) Add(name string, value T) {
	breakerCfg := c.cfg.CircuitBreaker
	breakerCfg.Name = name
	c.backends = append(c.backends, backend[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(breakerCfg),
	})
}

// Primary returns the first backend. Used for static provider metadata
// (model id, MIME type) that must not flip when a fallback takes over.
func (c *Chain[T]) Primary() T {
	return c.backends[0].value
}

// Do runs fn against the first healthy backend.
func (c *Chain[T]) Do(fn func(T) error) error {
	_, err := DoFirst(c, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// DoFirst runs fn against each backend in order until one succeeds and
// returns its result. Open-breaker backends are skipped without calling fn.
// When the chain is exhausted the last error is wrapped in [ErrExhausted].
// A package function rather than a method because methods cannot introduce
// the result type parameter.
func DoFirst[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range c.backends {
		b := &c.backends[i]
		var result R
		err := b.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(b.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("backend skipped, breaker open", "backend", b.name)
		} else {
			slog.Warn("backend failed, falling back", "backend", b.name, "error", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
